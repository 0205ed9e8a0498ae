package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

type fakeTicketSource struct {
	outboxFn func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
}

func (f fakeTicketSource) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	return models.Ticket{}, false, nil
}

func (f fakeTicketSource) GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error) {
	return models.Ticket{}, false, nil
}

func (f fakeTicketSource) GetTicketPosition(ctx context.Context, ticketID string) (models.Ticket, error) {
	return models.Ticket{}, nil
}

func (f fakeTicketSource) ListQueue(ctx context.Context, departmentID string, date time.Time) ([]models.Ticket, error) {
	return nil, nil
}

func (f fakeTicketSource) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	return models.Ticket{}, false, nil
}

func (f fakeTicketSource) ServeTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return models.Ticket{}, false, nil
}

func (f fakeTicketSource) SkipTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return models.Ticket{}, false, nil
}

func (f fakeTicketSource) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return models.Ticket{}, false, nil
}

func (f fakeTicketSource) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return models.Ticket{}, false, nil
}

func (f fakeTicketSource) TransferTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return models.Ticket{}, false, nil
}

func (f fakeTicketSource) SkipStaleCalled(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	return 0, nil
}

func (f fakeTicketSource) GetQueueStats(ctx context.Context, departmentID string, date time.Time) (models.QueueStats, error) {
	return models.QueueStats{}, nil
}

func (f fakeTicketSource) ListDepartments(ctx context.Context) ([]models.Department, error) {
	return nil, nil
}

func (f fakeTicketSource) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, after, limit)
}

type offsetNotifStore struct {
	fakeNotifStore
	offset   time.Time
	updated  *time.Time
	inserted *[]models.Notification
}

func (s offsetNotifStore) GetLastOffset(ctx context.Context) (time.Time, error) {
	return s.offset, nil
}

func (s offsetNotifStore) UpdateOffset(ctx context.Context, value time.Time) error {
	*s.updated = value
	return nil
}

func (s offsetNotifStore) InsertNotification(ctx context.Context, notification models.Notification) (string, error) {
	*s.inserted = append(*s.inserted, notification)
	return notification.NotificationID, nil
}

func outboxEvent(id, eventType string, payload map[string]interface{}, at time.Time) store.OutboxEvent {
	raw, _ := json.Marshal(payload)
	return store.OutboxEvent{EventID: id, Type: eventType, Payload: raw, CreatedAt: at}
}

func TestProducerCalledEventFansOut(t *testing.T) {
	at := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	tickets := fakeTicketSource{
		outboxFn: func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
			return []store.OutboxEvent{outboxEvent("e-1", "ticket.called", map[string]interface{}{
				"patient_id":    "P-001",
				"ticket_id":     "t-1",
				"ticket_number": "CRD-007",
				"counter":       "Loket 2",
			}, at)}, nil
		},
	}
	var inserted []models.Notification
	var updated time.Time
	notifs := offsetNotifStore{updated: &updated, inserted: &inserted}

	producer := NewProducer(tickets, notifs, ProducerConfig{})
	if err := producer.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Called events fan out to push and in_app at high priority.
	if len(inserted) != 2 {
		t.Fatalf("inserted=%d, want 2", len(inserted))
	}
	channels := map[string]bool{}
	for _, n := range inserted {
		channels[n.Channel] = true
		if n.RecipientID != "P-001" {
			t.Fatalf("recipient=%q", n.RecipientID)
		}
		if n.Priority != models.NotifyHigh {
			t.Fatalf("priority=%q, want high", n.Priority)
		}
		if n.Message != "Tiket CRD-007 dipanggil ke loket Loket 2." {
			t.Fatalf("message=%q", n.Message)
		}
	}
	if !channels[models.ChannelPush] || !channels[models.ChannelInApp] {
		t.Fatalf("channels=%v", channels)
	}
	if !updated.Equal(at) {
		t.Fatalf("offset=%v, want %v", updated, at)
	}
}

func TestProducerSkipsEventsWithoutPatient(t *testing.T) {
	at := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	tickets := fakeTicketSource{
		outboxFn: func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
			return []store.OutboxEvent{
				outboxEvent("e-1", "ticket.created", map[string]interface{}{
					"ticket_id": "t-1", "ticket_number": "CRD-007",
				}, at),
				outboxEvent("e-2", "ticket.served", map[string]interface{}{
					"patient_id": "P-001",
				}, at.Add(time.Second)),
			}, nil
		},
	}
	var inserted []models.Notification
	var updated time.Time
	notifs := offsetNotifStore{updated: &updated, inserted: &inserted}

	producer := NewProducer(tickets, notifs, ProducerConfig{})
	if err := producer.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Anonymous tickets and untemplated events produce nothing, but the
	// offset still advances past them.
	if len(inserted) != 0 {
		t.Fatalf("inserted=%d, want 0", len(inserted))
	}
	if !updated.Equal(at.Add(time.Second)) {
		t.Fatalf("offset=%v", updated)
	}
}

func TestProducerRendersNumericPosition(t *testing.T) {
	at := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	tickets := fakeTicketSource{
		outboxFn: func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
			return []store.OutboxEvent{outboxEvent("e-1", "ticket.created", map[string]interface{}{
				"patient_id":     "P-001",
				"ticket_number":  "CRD-007",
				"queue_position": 4,
			}, at)}, nil
		},
	}
	var inserted []models.Notification
	var updated time.Time
	notifs := offsetNotifStore{updated: &updated, inserted: &inserted}

	producer := NewProducer(tickets, notifs, ProducerConfig{})
	if err := producer.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("inserted=%d, want 1", len(inserted))
	}
	if inserted[0].Message != "Tiket CRD-007 dibuat. Posisi Anda: 4." {
		t.Fatalf("message=%q", inserted[0].Message)
	}
	if inserted[0].Channel != models.ChannelInApp {
		t.Fatalf("channel=%q", inserted[0].Channel)
	}
}
