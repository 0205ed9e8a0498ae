package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

const appointmentNumberPad = 5

func (s *Store) BookAppointment(ctx context.Context, input store.BookAppointmentInput) (models.Appointment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Appointment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findAppointmentByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Appointment{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Appointment{}, false, err
		}
		return existing, false, nil
	}

	if _, err = lookupDepartment(ctx, tx, input.DepartmentID); err != nil {
		return models.Appointment{}, false, err
	}

	bookingDate := input.ScheduledAt.UTC().Truncate(24 * time.Hour)
	seq, err := nextAppointmentNumber(ctx, tx, bookingDate)
	if err != nil {
		return models.Appointment{}, false, err
	}
	number := fmt.Sprintf("APT-%s-%0*d", bookingDate.Format("20060102"), appointmentNumberPad, seq)

	appointment := models.Appointment{
		AppointmentID:     uuid.NewString(),
		AppointmentNumber: number,
		PatientID:         input.PatientID,
		DepartmentID:      input.DepartmentID,
		AppointmentType:   input.AppointmentType,
		ScheduledAt:       input.ScheduledAt.UTC(),
		Status:            models.AppointmentScheduled,
		RequestID:         input.RequestID,
		CreatedAt:         time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			appointment_id, request_id, appointment_number, patient_id, department_id,
			appointment_type, scheduled_at, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (request_id) DO NOTHING
	`, appointment.AppointmentID, appointment.RequestID, appointment.AppointmentNumber,
		appointment.PatientID, appointment.DepartmentID, appointment.AppointmentType,
		appointment.ScheduledAt, appointment.Status, appointment.CreatedAt)
	if err != nil {
		return models.Appointment{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Appointment{}, false, err
	}
	return appointment, true, nil
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT appointment_id, request_id, appointment_number, patient_id, department_id,
			appointment_type, scheduled_at, status, created_at
		FROM appointments
		WHERE appointment_id = $1
	`, appointmentID)
	appointment, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, false, store.ErrAppointmentNotFound
		}
		return models.Appointment{}, false, err
	}
	return appointment, true, nil
}

func (s *Store) CheckInAppointment(ctx context.Context, requestID, appointmentID string) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTicketByRequestID(ctx, tx, requestID)
	if err != nil {
		return models.Ticket{}, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, err
		}
		return existing, nil
	}

	var patientID, departmentID string
	row := tx.QueryRow(ctx, `
		SELECT patient_id, department_id
		FROM appointments
		WHERE appointment_id = $1 AND status = 'scheduled'
		FOR UPDATE
	`, appointmentID)
	if err = row.Scan(&patientID, &departmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrAppointmentNotFound
		}
		return models.Ticket{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'checked_in'
		WHERE appointment_id = $1
	`, appointmentID)
	if err != nil {
		return models.Ticket{}, err
	}

	issuedAt := time.Now().UTC()
	queueDate := issuedAt.Truncate(24 * time.Hour)
	dept, err := lookupDepartment(ctx, tx, departmentID)
	if err != nil {
		return models.Ticket{}, err
	}
	seq, err := nextTicketNumber(ctx, tx, departmentID, queueDate)
	if err != nil {
		return models.Ticket{}, err
	}

	var ahead int
	row = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE department_id = $1 AND queue_date = $2 AND status = 'waiting'
	`, departmentID, queueDate)
	if err = row.Scan(&ahead); err != nil {
		return models.Ticket{}, err
	}

	avgMinutes := dept.AvgServiceMinutes
	if avgMinutes <= 0 {
		avgMinutes = s.defaultWaitMins
	}

	ticket := models.Ticket{
		TicketID:             uuid.NewString(),
		TicketNumber:         fmt.Sprintf("%s-%0*d", dept.Prefix, ticketNumberPad, seq),
		DepartmentID:         departmentID,
		QueueDate:            queueDate,
		PatientID:            patientID,
		Priority:             models.PriorityNormal,
		Status:               models.StatusWaiting,
		QueuePosition:        ahead + 1,
		PeopleAhead:          ahead,
		EstimatedWaitMinutes: ahead * avgMinutes,
		RequestID:            requestID,
		IssuedAt:             issuedAt,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (
			ticket_id, request_id, ticket_number, department_id, queue_date, patient_id,
			priority, status, queue_position, issued_at, appointment_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, ticket.TicketID, ticket.RequestID, ticket.TicketNumber, ticket.DepartmentID, ticket.QueueDate,
		ticket.PatientID, ticket.Priority, ticket.Status, ticket.QueuePosition, ticket.IssuedAt, appointmentID)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.created", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CreateReminders(ctx context.Context, appointmentID string, reminders []models.Reminder) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, reminder := range reminders {
		reminderID := reminder.ReminderID
		if reminderID == "" {
			reminderID = uuid.NewString()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_reminders (
				reminder_id, appointment_id, channel, offset_minutes, scheduled_at, status, retry_count, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,0,$7)
			ON CONFLICT (appointment_id, channel, offset_minutes) DO NOTHING
		`, reminderID, appointmentID, reminder.Channel, reminder.OffsetMinutes, reminder.ScheduledAt,
			models.ReminderPending, time.Now().UTC())
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT reminder_id
			FROM appointment_reminders
			WHERE status = 'pending' AND scheduled_at <= $1
			ORDER BY scheduled_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE appointment_reminders
		SET status = 'sending'
		FROM due
		WHERE appointment_reminders.reminder_id = due.reminder_id
		RETURNING appointment_reminders.reminder_id, appointment_reminders.appointment_id,
			appointment_reminders.channel, appointment_reminders.offset_minutes,
			appointment_reminders.scheduled_at, appointment_reminders.status,
			appointment_reminders.retry_count, appointment_reminders.created_at
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		var reminder models.Reminder
		if err := rows.Scan(&reminder.ReminderID, &reminder.AppointmentID, &reminder.Channel,
			&reminder.OffsetMinutes, &reminder.ScheduledAt, &reminder.Status,
			&reminder.RetryCount, &reminder.CreatedAt); err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reminders, nil
}

func (s *Store) MarkReminderSent(ctx context.Context, reminderID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = 'sent'
		WHERE reminder_id = $1
	`, reminderID)
	return err
}

// MarkReminderFailed re-queues the reminder until retry_count reaches
// maxRetries, then the row goes terminally failed. Returns the new status.
func (s *Store) MarkReminderFailed(ctx context.Context, reminderID string, maxRetries int, lastError string) (string, error) {
	var status string
	row := s.pool.QueryRow(ctx, `
		UPDATE appointment_reminders
		SET retry_count = retry_count + 1,
			last_error = $2,
			status = CASE WHEN retry_count + 1 < $3 THEN 'pending' ELSE 'failed' END
		WHERE reminder_id = $1
		RETURNING status
	`, reminderID, lastError, maxRetries)
	if err := row.Scan(&status); err != nil {
		return "", err
	}
	return status, nil
}

func scanAppointment(row rowScanner) (models.Appointment, error) {
	var appointment models.Appointment
	if err := row.Scan(&appointment.AppointmentID, &appointment.RequestID, &appointment.AppointmentNumber,
		&appointment.PatientID, &appointment.DepartmentID, &appointment.AppointmentType,
		&appointment.ScheduledAt, &appointment.Status, &appointment.CreatedAt); err != nil {
		return models.Appointment{}, err
	}
	return appointment, nil
}

func findAppointmentByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Appointment, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT appointment_id, request_id, appointment_number, patient_id, department_id,
			appointment_type, scheduled_at, status, created_at
		FROM appointments
		WHERE request_id = $1
	`, requestID)
	appointment, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, false, nil
		}
		return models.Appointment{}, false, err
	}
	return appointment, true, nil
}

func nextAppointmentNumber(ctx context.Context, tx pgx.Tx, bookingDate time.Time) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO appointment_sequences (booking_date, next_number)
		VALUES ($1, 1)
		ON CONFLICT (booking_date)
		DO UPDATE SET next_number = appointment_sequences.next_number + 1
		RETURNING next_number
	`, bookingDate)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}
