package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rebekz/simrs/internal/models"
)

type CreateTicketInput struct {
	RequestID    string
	PatientID    string
	DepartmentID string
	Priority     string
	IssuedAt     time.Time
}

type CallNextInput struct {
	RequestID    string
	DepartmentID string
	Counter      string
	CalledAt     time.Time
}

type TicketActionInput struct {
	RequestID      string
	TicketID       string
	Counter        string
	ToDepartmentID string
	Reason         string
	OccurredAt     time.Time
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, bool, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error)
	GetTicketPosition(ctx context.Context, ticketID string) (models.Ticket, error)
	ListQueue(ctx context.Context, departmentID string, date time.Time) ([]models.Ticket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, bool, error)
	ServeTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	SkipTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	CancelTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	RecallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	TransferTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	SkipStaleCalled(ctx context.Context, grace time.Duration, batchSize int) (int, error)
	GetQueueStats(ctx context.Context, departmentID string, date time.Time) (models.QueueStats, error)
	ListDepartments(ctx context.Context) ([]models.Department, error)
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
}

type BookAppointmentInput struct {
	RequestID       string
	PatientID       string
	DepartmentID    string
	AppointmentType string
	ScheduledAt     time.Time
}

type AppointmentStore interface {
	BookAppointment(ctx context.Context, input BookAppointmentInput) (models.Appointment, bool, error)
	CheckInAppointment(ctx context.Context, requestID, appointmentID string) (models.Ticket, error)
	CreateReminders(ctx context.Context, appointmentID string, reminders []models.Reminder) error
	ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error)
	MarkReminderSent(ctx context.Context, reminderID string) error
	MarkReminderFailed(ctx context.Context, reminderID string, maxRetries int, lastError string) (string, error)
	GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, bool, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, notification models.Notification) (string, error)
	GetNotification(ctx context.Context, notificationID string) (models.Notification, bool, error)
	ClaimPending(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, notificationID, providerMessageID string, sentAt time.Time) error
	MarkDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error
	MarkFailed(ctx context.Context, notificationID, lastError string) (string, error)
	GetContact(ctx context.Context, recipientID string) (models.Contact, error)
	InsertInAppMessage(ctx context.Context, recipientID, title, message string) error
	GetLastOffset(ctx context.Context) (time.Time, error)
	UpdateOffset(ctx context.Context, value time.Time) error
}

// EscalatableAlert pairs an open alert with the send time of its original
// notification, which is what the escalation ladder ages against.
type EscalatableAlert struct {
	models.CriticalAlert
	SentAt time.Time
}

type AlertStore interface {
	CreateAlert(ctx context.Context, alert models.CriticalAlert) (string, error)
	GetAlert(ctx context.Context, alertID string) (models.CriticalAlert, bool, error)
	ListUnacknowledged(ctx context.Context, sentBefore time.Time) ([]EscalatableAlert, error)
	EscalateAlert(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error)
	AcknowledgeAlert(ctx context.Context, alertID, acknowledgedBy, actionTaken string, at time.Time) error
	GetAlertRecipients(ctx context.Context, alert models.CriticalAlert, level int) ([]string, error)
}

type IntegrationStore interface {
	InsertHL7Message(ctx context.Context, message models.HL7Message) error
	MarkHL7Processed(ctx context.Context, messageID, ackCode string, at time.Time) error
	MarkHL7Failed(ctx context.Context, messageID, lastError string) error
	InsertTransmission(ctx context.Context, transmission models.BPJSTransmission) error
	ClaimPendingTransmissions(ctx context.Context, limit int) ([]models.BPJSTransmission, error)
	CompleteTransmission(ctx context.Context, transmissionID string, at time.Time) error
	FailTransmission(ctx context.Context, transmissionID string, maxRetries int, lastError string) (string, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
