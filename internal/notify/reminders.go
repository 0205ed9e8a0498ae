package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

// ReminderWorker promotes due appointment reminders into notification rows.
// The dispatcher handles actual delivery; a reminder is "sent" once its
// notification is queued.
type ReminderWorker struct {
	appointments store.AppointmentStore
	notifs       store.NotificationStore
	batchSize    int
	maxRetries   int
	now          func() time.Time
}

type ReminderConfig struct {
	BatchSize  int
	MaxRetries int
}

func NewReminderWorker(appointments store.AppointmentStore, notifs store.NotificationStore, cfg ReminderConfig) *ReminderWorker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReminderWorker{
		appointments: appointments,
		notifs:       notifs,
		batchSize:    batch,
		maxRetries:   maxRetries,
		now:          time.Now,
	}
}

func (w *ReminderWorker) Run(ctx context.Context) error {
	reminders, err := w.appointments.ClaimDueReminders(ctx, w.now().UTC(), w.batchSize)
	if err != nil {
		return err
	}

	for _, reminder := range reminders {
		if err := w.processReminder(ctx, reminder); err != nil {
			status, failErr := w.appointments.MarkReminderFailed(ctx, reminder.ReminderID, w.maxRetries, err.Error())
			if failErr != nil {
				log.Printf("reminder fail error: reminder_id=%s err=%v", reminder.ReminderID, failErr)
				continue
			}
			if status == models.ReminderFailed {
				log.Printf("reminder exhausted retries: reminder_id=%s appointment_id=%s",
					reminder.ReminderID, reminder.AppointmentID)
			}
			continue
		}
		if err := w.appointments.MarkReminderSent(ctx, reminder.ReminderID); err != nil {
			log.Printf("reminder mark sent error: reminder_id=%s err=%v", reminder.ReminderID, err)
		}
	}
	return nil
}

func (w *ReminderWorker) processReminder(ctx context.Context, reminder models.Reminder) error {
	appointment, found, err := w.appointments.GetAppointment(ctx, reminder.AppointmentID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("appointment %s not found", reminder.AppointmentID)
	}
	if appointment.Status == models.AppointmentCancelled {
		return nil
	}

	metadata, _ := json.Marshal(map[string]string{
		"appointment_id":     appointment.AppointmentID,
		"appointment_number": appointment.AppointmentNumber,
		"reminder_id":        reminder.ReminderID,
	})
	_, err = w.notifs.InsertNotification(ctx, models.Notification{
		RecipientID: appointment.PatientID,
		Type:        "appointment_reminder",
		Channel:     reminder.Channel,
		Priority:    models.NotifyNormal,
		Title:       "Pengingat janji temu",
		Message: fmt.Sprintf("Janji temu %s dijadwalkan pada %s.",
			appointment.AppointmentNumber, appointment.ScheduledAt.Format("02 Jan 2006 15:04")),
		Metadata: metadata,
	})
	return err
}
