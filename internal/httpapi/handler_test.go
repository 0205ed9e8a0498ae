package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

type fakeStore struct {
	createFn      func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error)
	getTicketFn   func(ctx context.Context, ticketID string) (models.Ticket, bool, error)
	positionFn    func(ctx context.Context, ticketID string) (models.Ticket, error)
	listQueueFn   func(ctx context.Context, departmentID string, date time.Time) ([]models.Ticket, error)
	callFn        func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error)
	serveFn       func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	skipFn        func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	cancelFn      func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	recallFn      func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	transferFn    func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	statsFn       func(ctx context.Context, departmentID string, date time.Time) (models.QueueStats, error)
	departmentsFn func(ctx context.Context) ([]models.Department, error)
	outboxFn      func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)

	bookFn      func(ctx context.Context, input store.BookAppointmentInput) (models.Appointment, bool, error)
	checkinFn   func(ctx context.Context, requestID, appointmentID string) (models.Ticket, error)
	remindersFn func(ctx context.Context, appointmentID string, reminders []models.Reminder) error

	insertNotifFn func(ctx context.Context, notification models.Notification) (string, error)
	getNotifFn    func(ctx context.Context, notificationID string) (models.Notification, bool, error)

	getAlertFn func(ctx context.Context, alertID string) (models.CriticalAlert, bool, error)
	ackFn      func(ctx context.Context, alertID, acknowledgedBy, actionTaken string, at time.Time) error
}

func (f fakeStore) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	if f.createFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error) {
	if f.getTicketFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.getTicketFn(ctx, ticketID)
}

func (f fakeStore) GetTicketPosition(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.positionFn == nil {
		return models.Ticket{}, nil
	}
	return f.positionFn(ctx, ticketID)
}

func (f fakeStore) ListQueue(ctx context.Context, departmentID string, date time.Time) ([]models.Ticket, error) {
	if f.listQueueFn == nil {
		return nil, nil
	}
	return f.listQueueFn(ctx, departmentID, date)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	if f.callFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) ServeTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.serveFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.serveFn(ctx, input)
}

func (f fakeStore) SkipTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.skipFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.skipFn(ctx, input)
}

func (f fakeStore) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.cancelFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.cancelFn(ctx, input)
}

func (f fakeStore) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.recallFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.recallFn(ctx, input)
}

func (f fakeStore) TransferTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.transferFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.transferFn(ctx, input)
}

func (f fakeStore) SkipStaleCalled(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	return 0, nil
}

func (f fakeStore) GetQueueStats(ctx context.Context, departmentID string, date time.Time) (models.QueueStats, error) {
	if f.statsFn == nil {
		return models.QueueStats{}, nil
	}
	return f.statsFn(ctx, departmentID, date)
}

func (f fakeStore) ListDepartments(ctx context.Context) ([]models.Department, error) {
	if f.departmentsFn == nil {
		return nil, nil
	}
	return f.departmentsFn(ctx)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, after, limit)
}

func (f fakeStore) BookAppointment(ctx context.Context, input store.BookAppointmentInput) (models.Appointment, bool, error) {
	if f.bookFn == nil {
		return models.Appointment{}, false, nil
	}
	return f.bookFn(ctx, input)
}

func (f fakeStore) CheckInAppointment(ctx context.Context, requestID, appointmentID string) (models.Ticket, error) {
	if f.checkinFn == nil {
		return models.Ticket{}, nil
	}
	return f.checkinFn(ctx, requestID, appointmentID)
}

func (f fakeStore) CreateReminders(ctx context.Context, appointmentID string, reminders []models.Reminder) error {
	if f.remindersFn == nil {
		return nil
	}
	return f.remindersFn(ctx, appointmentID, reminders)
}

func (f fakeStore) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	return nil, nil
}

func (f fakeStore) MarkReminderSent(ctx context.Context, reminderID string) error { return nil }

func (f fakeStore) MarkReminderFailed(ctx context.Context, reminderID string, maxRetries int, lastError string) (string, error) {
	return "", nil
}

func (f fakeStore) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, bool, error) {
	return models.Appointment{}, false, nil
}

func (f fakeStore) InsertNotification(ctx context.Context, notification models.Notification) (string, error) {
	if f.insertNotifFn == nil {
		return "", nil
	}
	return f.insertNotifFn(ctx, notification)
}

func (f fakeStore) GetNotification(ctx context.Context, notificationID string) (models.Notification, bool, error) {
	if f.getNotifFn == nil {
		return models.Notification{}, false, nil
	}
	return f.getNotifFn(ctx, notificationID)
}

func (f fakeStore) ClaimPending(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	return nil, nil
}

func (f fakeStore) MarkSent(ctx context.Context, notificationID, providerMessageID string, sentAt time.Time) error {
	return nil
}

func (f fakeStore) MarkDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error {
	return nil
}

func (f fakeStore) MarkFailed(ctx context.Context, notificationID, lastError string) (string, error) {
	return "", nil
}

func (f fakeStore) GetContact(ctx context.Context, recipientID string) (models.Contact, error) {
	return models.Contact{}, nil
}

func (f fakeStore) InsertInAppMessage(ctx context.Context, recipientID, title, message string) error {
	return nil
}

func (f fakeStore) GetLastOffset(ctx context.Context) (time.Time, error) { return time.Time{}, nil }

func (f fakeStore) UpdateOffset(ctx context.Context, value time.Time) error { return nil }

func (f fakeStore) CreateAlert(ctx context.Context, alert models.CriticalAlert) (string, error) {
	return "", nil
}

func (f fakeStore) GetAlert(ctx context.Context, alertID string) (models.CriticalAlert, bool, error) {
	if f.getAlertFn == nil {
		return models.CriticalAlert{}, false, nil
	}
	return f.getAlertFn(ctx, alertID)
}

func (f fakeStore) ListUnacknowledged(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error) {
	return nil, nil
}

func (f fakeStore) EscalateAlert(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error) {
	return false, nil
}

func (f fakeStore) AcknowledgeAlert(ctx context.Context, alertID, acknowledgedBy, actionTaken string, at time.Time) error {
	if f.ackFn == nil {
		return nil
	}
	return f.ackFn(ctx, alertID, acknowledgedBy, actionTaken, at)
}

func (f fakeStore) GetAlertRecipients(ctx context.Context, alert models.CriticalAlert, level int) ([]string, error) {
	return nil, nil
}

func newTestHandler(f fakeStore) *Handler {
	return NewHandler(f, f, f, f, Options{})
}

func postJSON(t *testing.T, handler http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const (
	testRequestID = "3e0fdd7c-9a4b-4a9e-95a1-7a57fb1b7ab1"
	testTicketID  = "5b53cc7b-2a40-4a3f-a0c3-0b8a59f0a111"
)

func TestCreateTicket(t *testing.T) {
	var captured store.CreateTicketInput
	handler := newTestHandler(fakeStore{
		createFn: func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
			captured = input
			return models.Ticket{
				TicketID:     testTicketID,
				TicketNumber: "CRD-007",
				DepartmentID: input.DepartmentID,
				Priority:     input.Priority,
				Status:       models.StatusWaiting,
			}, true, nil
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/tickets", map[string]string{
		"request_id":    testRequestID,
		"patient_id":    "P-001",
		"department_id": "CRD",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if captured.Priority != models.PriorityNormal {
		t.Fatalf("priority=%q, want default normal", captured.Priority)
	}

	var ticket models.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.TicketNumber != "CRD-007" {
		t.Fatalf("ticket_number=%q", ticket.TicketNumber)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	handler := newTestHandler(fakeStore{}).Routes()

	cases := []struct {
		name    string
		payload map[string]string
	}{
		{"missing patient", map[string]string{"request_id": testRequestID, "department_id": "CRD"}},
		{"bad request id", map[string]string{"request_id": "nope", "patient_id": "P-001", "department_id": "CRD"}},
		{"bad priority", map[string]string{"request_id": testRequestID, "patient_id": "P-001", "department_id": "CRD", "priority": "vip"}},
	}
	for _, tt := range cases {
		rec := postJSON(t, handler, "/api/tickets", tt.payload)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d, want 400", tt.name, rec.Code)
		}
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	handler := newTestHandler(fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, store.ErrNoTicket
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/tickets/actions/call-next", map[string]string{
		"request_id":    testRequestID,
		"department_id": "CRD",
		"counter":       "Loket 2",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409, body=%s", rec.Code, rec.Body.String())
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != "queue_empty" {
		t.Fatalf("code=%q, want queue_empty", resp.Error.Code)
	}
}

func TestServeInvalidState(t *testing.T) {
	handler := newTestHandler(fakeStore{
		serveFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, store.ErrInvalidState
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/tickets/"+testTicketID+"/actions/serve", map[string]string{
		"request_id": testRequestID,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409", rec.Code)
	}
}

func TestTransferRequiresTargetDepartment(t *testing.T) {
	handler := newTestHandler(fakeStore{}).Routes()

	rec := postJSON(t, handler, "/api/tickets/"+testTicketID+"/actions/transfer", map[string]string{
		"request_id": testRequestID,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	handler := newTestHandler(fakeStore{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+testTicketID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestSendNotification(t *testing.T) {
	var captured models.Notification
	handler := newTestHandler(fakeStore{
		insertNotifFn: func(ctx context.Context, notification models.Notification) (string, error) {
			captured = notification
			return "6c13f7a8-1f06-4a63-b44e-3e3cb90f4a55", nil
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/notifications", map[string]interface{}{
		"recipient_id": "D-001",
		"type":         "lab_result",
		"channel":      "sms",
		"message":      "Hasil lab sudah tersedia",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	if captured.Priority != models.NotifyNormal {
		t.Fatalf("priority=%q, want default normal", captured.Priority)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["notification_id"] == "" {
		t.Fatal("missing notification_id")
	}
}

func TestSendNotificationUnknownChannel(t *testing.T) {
	handler := newTestHandler(fakeStore{}).Routes()

	rec := postJSON(t, handler, "/api/notifications", map[string]interface{}{
		"recipient_id": "D-001",
		"type":         "lab_result",
		"channel":      "pigeon",
		"message":      "halo",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestAcknowledgeAlertConflict(t *testing.T) {
	alertID := "9f0ed5d4-53dd-4b6e-a3a7-0f4f4b2ce0b2"
	handler := newTestHandler(fakeStore{
		ackFn: func(ctx context.Context, id, by, action string, at time.Time) error {
			return store.ErrAlertAcknowledged
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/alerts/"+alertID+"/acknowledge", map[string]string{
		"acknowledged_by": "dr-rahma",
		"action_taken":    "repeat order",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409, body=%s", rec.Code, rec.Body.String())
	}
}
