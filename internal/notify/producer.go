package notify

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

// Producer turns queue outbox events into notification rows. It keeps a
// durable offset so a restart resumes where it left off instead of replaying
// the whole outbox.
type Producer struct {
	tickets   store.TicketStore
	notifs    store.NotificationStore
	batchSize int
}

type ProducerConfig struct {
	BatchSize int
}

type payloadData map[string]interface{}

func NewProducer(tickets store.TicketStore, notifs store.NotificationStore, cfg ProducerConfig) *Producer {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Producer{tickets: tickets, notifs: notifs, batchSize: batch}
}

func (p *Producer) Run(ctx context.Context) error {
	last, err := p.notifs.GetLastOffset(ctx)
	if err != nil {
		return err
	}

	events, err := p.tickets.ListOutboxEvents(ctx, last, p.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			log.Printf("notif produce error: event_id=%s err=%v", event.EventID, err)
		}
		last = event.CreatedAt
	}

	if !last.IsZero() {
		if err := p.notifs.UpdateOffset(ctx, last); err != nil {
			return err
		}
	}
	return nil
}

func (p *Producer) processEvent(ctx context.Context, event store.OutboxEvent) error {
	templateID := templateForEvent(event.Type)
	if templateID == "" {
		return nil
	}

	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	patientID := str(payload, "patient_id")
	if patientID == "" {
		return nil
	}

	title, body := renderTemplate(templateID, payload)
	metadata, _ := json.Marshal(map[string]string{
		"event_id":      event.EventID,
		"event_type":    event.Type,
		"ticket_id":     str(payload, "ticket_id"),
		"ticket_number": str(payload, "ticket_number"),
	})

	for _, channel := range channelsForEvent(event.Type) {
		_, err := p.notifs.InsertNotification(ctx, models.Notification{
			RecipientID: patientID,
			Type:        event.Type,
			Channel:     channel,
			Priority:    priorityForEvent(event.Type),
			Title:       title,
			Message:     body,
			Metadata:    metadata,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func templateForEvent(eventType string) string {
	switch eventType {
	case "ticket.created":
		return "ticket_created"
	case "ticket.called":
		return "ticket_called"
	case "ticket.recalled":
		return "ticket_recalled"
	case "ticket.skipped":
		return "ticket_skipped"
	case "ticket.transferred":
		return "ticket_transferred"
	default:
		return ""
	}
}

func channelsForEvent(eventType string) []string {
	switch eventType {
	case "ticket.called", "ticket.recalled":
		return []string{models.ChannelPush, models.ChannelInApp}
	default:
		return []string{models.ChannelInApp}
	}
}

func priorityForEvent(eventType string) string {
	switch eventType {
	case "ticket.called", "ticket.recalled":
		return models.NotifyHigh
	default:
		return models.NotifyNormal
	}
}

func renderTemplate(templateID string, payload payloadData) (title, body string) {
	switch templateID {
	case "ticket_created":
		title = "Nomor antrean terbit"
		body = "Tiket {ticket_number} dibuat. Posisi Anda: {queue_position}."
	case "ticket_called":
		title = "Giliran Anda"
		body = "Tiket {ticket_number} dipanggil ke loket {counter}."
	case "ticket_recalled":
		title = "Panggilan ulang"
		body = "Tiket {ticket_number} dipanggil ulang ke loket {counter}."
	case "ticket_skipped":
		title = "Antrean dilewati"
		body = "Tiket {ticket_number} dilewati. Silakan hubungi petugas."
	case "ticket_transferred":
		title = "Antrean dipindahkan"
		body = "Antrean Anda dipindahkan. Nomor baru: {ticket_number}."
	}
	for _, key := range []string{"ticket_number", "queue_position", "counter"} {
		body = strings.ReplaceAll(body, "{"+key+"}", str(payload, key))
	}
	return title, body
}

func str(payload payloadData, key string) string {
	switch value := payload[key].(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}
