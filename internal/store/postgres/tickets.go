package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

const ticketNumberPad = 3

const ticketColumns = `ticket_id, ticket_number, department_id, queue_date, patient_id, priority, status,
	queue_position, serving_counter, request_id, issued_at, called_at, service_started_at, service_completed_at, cancelled_at`

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTicketByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}
	queueDate := issuedAt.Truncate(24 * time.Hour)

	dept, err := lookupDepartment(ctx, tx, input.DepartmentID)
	if err != nil {
		return models.Ticket{}, false, err
	}

	seq, err := nextTicketNumber(ctx, tx, input.DepartmentID, queueDate)
	if err != nil {
		return models.Ticket{}, false, err
	}
	formattedNumber := fmt.Sprintf("%s-%0*d", dept.Prefix, ticketNumberPad, seq)

	var ahead int
	row := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE department_id = $1 AND queue_date = $2 AND status = 'waiting'
	`, input.DepartmentID, queueDate)
	if err = row.Scan(&ahead); err != nil {
		return models.Ticket{}, false, err
	}

	avgMinutes := dept.AvgServiceMinutes
	if avgMinutes <= 0 {
		avgMinutes = s.defaultWaitMins
	}

	ticket := models.Ticket{
		TicketID:             uuid.NewString(),
		TicketNumber:         formattedNumber,
		DepartmentID:         input.DepartmentID,
		QueueDate:            queueDate,
		PatientID:            input.PatientID,
		Priority:             input.Priority,
		Status:               models.StatusWaiting,
		QueuePosition:        ahead + 1,
		PeopleAhead:          ahead,
		EstimatedWaitMinutes: ahead * avgMinutes,
		RequestID:            input.RequestID,
		IssuedAt:             issuedAt,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (
			ticket_id, request_id, ticket_number, department_id, queue_date, patient_id,
			priority, status, queue_position, issued_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (request_id) DO NOTHING
	`, ticket.TicketID, ticket.RequestID, ticket.TicketNumber, ticket.DepartmentID, ticket.QueueDate,
		ticket.PatientID, ticket.Priority, ticket.Status, ticket.QueuePosition, ticket.IssuedAt)
	if err != nil {
		return models.Ticket{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.created", ticket); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}

	return ticket, true, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, store.ErrTicketNotFound
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) GetTicketPosition(ctx context.Context, ticketID string) (models.Ticket, error) {
	ticket, _, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.Status != models.StatusWaiting {
		ticket.PeopleAhead = 0
		ticket.EstimatedWaitMinutes = 0
		return ticket, nil
	}

	var ahead int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE department_id = $1 AND queue_date = $2 AND status = 'waiting'
			AND (
				CASE priority WHEN 'urgent' THEN 2 WHEN 'prioritized' THEN 1 ELSE 0 END >
				CASE $3 WHEN 'urgent' THEN 2 WHEN 'prioritized' THEN 1 ELSE 0 END
				OR (priority = $3 AND queue_position < $4)
			)
	`, ticket.DepartmentID, ticket.QueueDate, ticket.Priority, ticket.QueuePosition)
	if err := row.Scan(&ahead); err != nil {
		return models.Ticket{}, err
	}

	avgMinutes, err := departmentServiceMinutes(ctx, s.pool, ticket.DepartmentID, s.defaultWaitMins)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.PeopleAhead = ahead
	ticket.EstimatedWaitMinutes = ahead * avgMinutes
	return ticket, nil
}

func (s *Store) ListQueue(ctx context.Context, departmentID string, date time.Time) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE department_id = $1 AND queue_date = $2 AND status IN ('waiting', 'called')
		ORDER BY CASE priority WHEN 'urgent' THEN 2 WHEN 'prioritized' THEN 1 ELSE 0 END DESC,
			queue_position ASC
	`, departmentID, date.Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "call_next", input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrNoTicket
		}
		return existing, false, nil
	}

	if _, err = lookupDepartment(ctx, tx, input.DepartmentID); err != nil {
		return models.Ticket{}, false, err
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	queueDate := calledAt.Truncate(24 * time.Hour)

	var ticket models.Ticket
	row := tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT ticket_id
			FROM tickets
			WHERE department_id = $1 AND queue_date = $2 AND status = 'waiting'
			ORDER BY CASE priority WHEN 'urgent' THEN 2 WHEN 'prioritized' THEN 1 ELSE 0 END DESC,
				queue_position ASC, issued_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'called',
			serving_counter = $3,
			called_at = $4
		FROM next_ticket
		WHERE tickets.ticket_id = next_ticket.ticket_id
		RETURNING tickets.ticket_id, tickets.ticket_number, tickets.department_id, tickets.queue_date,
			tickets.patient_id, tickets.priority, tickets.status, tickets.queue_position,
			tickets.serving_counter, tickets.request_id, tickets.issued_at, tickets.called_at,
			tickets.service_started_at, tickets.service_completed_at, tickets.cancelled_at
	`, input.DepartmentID, queueDate, input.Counter, calledAt)

	ticket, err = scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, ""); err != nil {
				return models.Ticket{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Ticket{}, false, err
			}
			return models.Ticket{}, false, store.ErrNoTicket
		}
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, "ticket.called", ticket); err != nil {
		return models.Ticket{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}

	return ticket, true, nil
}

func (s *Store) ServeTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.updateTicketStatus(ctx, input, "serve", models.StatusCalled, models.StatusServed, "ticket.served", "service_started_at")
}

func (s *Store) SkipTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.updateTicketStatus(ctx, input, "skip", models.StatusCalled, models.StatusSkipped, "ticket.skipped", "")
}

func (s *Store) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.updateTicketStatus(ctx, input, "cancel", models.StatusWaiting, models.StatusCancelled, "ticket.cancelled", "cancelled_at")
}

func (s *Store) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "recall", input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, input.TicketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, store.ErrTicketNotFound
		}
		return models.Ticket{}, false, err
	}
	if ticket.Status != models.StatusCalled {
		err = store.ErrInvalidState
		return models.Ticket{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO queue_recalls (recall_id, ticket_id, counter, recalled_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), ticket.TicketID, nullIfEmpty(input.Counter), occurredAt)
	if err != nil {
		return models.Ticket{}, false, err
	}

	ticket.RequestID = input.RequestID
	if err = insertActionRequest(ctx, tx, "recall", input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, "ticket.recalled", ticket); err != nil {
		return models.Ticket{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) TransferTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "transfer", input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	dept, err := lookupDepartment(ctx, tx, input.ToDepartmentID)
	if err != nil {
		return models.Ticket{}, false, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
		FOR UPDATE
	`, input.TicketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, store.ErrTicketNotFound
		}
		return models.Ticket{}, false, err
	}
	if !store.ValidTransition("transfer", ticket.Status) {
		err = store.ErrInvalidState
		return models.Ticket{}, false, err
	}

	fromDepartmentID := ticket.DepartmentID
	seq, err := nextTicketNumber(ctx, tx, input.ToDepartmentID, ticket.QueueDate)
	if err != nil {
		return models.Ticket{}, false, err
	}
	newNumber := fmt.Sprintf("%s-%0*d", dept.Prefix, ticketNumberPad, seq)

	var ahead int
	row = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE department_id = $1 AND queue_date = $2 AND status = 'waiting'
	`, input.ToDepartmentID, ticket.QueueDate)
	if err = row.Scan(&ahead); err != nil {
		return models.Ticket{}, false, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets
		SET department_id = $2,
			ticket_number = $3,
			status = 'waiting',
			queue_position = $4,
			serving_counter = NULL,
			called_at = NULL
		WHERE ticket_id = $1
	`, ticket.TicketID, input.ToDepartmentID, newNumber, ahead+1)
	if err != nil {
		return models.Ticket{}, false, err
	}

	ticket.DepartmentID = input.ToDepartmentID
	ticket.TicketNumber = newNumber
	ticket.Status = models.StatusWaiting
	ticket.QueuePosition = ahead + 1
	ticket.PeopleAhead = ahead
	ticket.ServingCounter = nil
	ticket.CalledAt = nil
	ticket.RequestID = input.RequestID

	if err = insertActionRequest(ctx, tx, "transfer", input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertTransferEvent(ctx, tx, ticket, fromDepartmentID, input.Reason); err != nil {
		return models.Ticket{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) updateTicketStatus(ctx context.Context, input store.TicketActionInput, action, fromStatus, toStatus, eventType, stampColumn string) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query := `
		UPDATE tickets
		SET status = $2
		WHERE ticket_id = $1 AND status = $3
		RETURNING ` + ticketColumns
	args := []interface{}{input.TicketID, toStatus, fromStatus}
	if stampColumn != "" {
		query = `
			UPDATE tickets
			SET status = $2,
				` + stampColumn + ` = $4
			WHERE ticket_id = $1 AND status = $3
			RETURNING ` + ticketColumns
		args = append(args, occurredAt)
	}

	row := tx.QueryRow(ctx, query, args...)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_, exists, stateErr := loadTicketStatus(ctx, tx, input.TicketID)
			if stateErr != nil {
				err = stateErr
				return models.Ticket{}, false, err
			}
			if !exists {
				err = store.ErrTicketNotFound
				return models.Ticket{}, false, err
			}
			err = store.ErrInvalidState
			return models.Ticket{}, false, err
		}
		return models.Ticket{}, false, err
	}

	ticket.RequestID = input.RequestID
	if err = insertActionRequest(ctx, tx, action, input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, eventType, ticket); err != nil {
		return models.Ticket{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) SkipStaleCalled(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cutoff := time.Now().UTC().Add(-grace)
	rows, err := tx.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE status = 'called' AND called_at <= $1
		ORDER BY called_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var stale []models.Ticket
	for rows.Next() {
		ticket, scanErr := scanTicket(rows)
		if scanErr != nil {
			err = scanErr
			return 0, err
		}
		stale = append(stale, ticket)
	}
	if err = rows.Err(); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		if err = tx.Commit(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}

	processed := 0
	for i := range stale {
		_, err = tx.Exec(ctx, `
			UPDATE tickets
			SET status = 'skipped'
			WHERE ticket_id = $1
		`, stale[i].TicketID)
		if err != nil {
			return 0, err
		}
		stale[i].Status = models.StatusSkipped
		if err = insertOutboxEvent(ctx, tx, "ticket.skipped", stale[i]); err != nil {
			return 0, err
		}
		processed++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return processed, nil
}

func (s *Store) GetQueueStats(ctx context.Context, departmentID string, date time.Time) (models.QueueStats, error) {
	queueDate := date.Truncate(24 * time.Hour)
	stats := models.QueueStats{DepartmentID: departmentID, QueueDate: queueDate}
	row := s.pool.QueryRow(ctx, `
		SELECT
			SUM(CASE WHEN status = 'waiting' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'called' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'served' THEN 1 ELSE 0 END)
		FROM tickets
		WHERE department_id = $1 AND queue_date = $2
	`, departmentID, queueDate)
	var waiting, called, served sql.NullInt64
	if err := row.Scan(&waiting, &called, &served); err != nil {
		return models.QueueStats{}, err
	}
	stats.Waiting = int(waiting.Int64)
	stats.Called = int(called.Int64)
	stats.ServedToday = int(served.Int64)

	avgMinutes, err := departmentServiceMinutes(ctx, s.pool, departmentID, s.defaultWaitMins)
	if err != nil {
		return models.QueueStats{}, err
	}
	stats.EstimatedWaitMinutes = stats.Waiting * avgMinutes
	return stats, nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Department, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT department_id, name, prefix, avg_service_minutes, active
		FROM departments
		WHERE active = TRUE
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []models.Department
	for rows.Next() {
		var dept models.Department
		if err := rows.Scan(&dept.DepartmentID, &dept.Name, &dept.Prefix, &dept.AvgServiceMinutes, &dept.Active); err != nil {
			return nil, err
		}
		departments = append(departments, dept)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return departments, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var ticket models.Ticket
	var counterNull sql.NullString
	var calledAtNull, startedAtNull, completedAtNull, cancelledAtNull sql.NullTime
	if err := row.Scan(&ticket.TicketID, &ticket.TicketNumber, &ticket.DepartmentID, &ticket.QueueDate,
		&ticket.PatientID, &ticket.Priority, &ticket.Status, &ticket.QueuePosition, &counterNull,
		&ticket.RequestID, &ticket.IssuedAt, &calledAtNull, &startedAtNull, &completedAtNull, &cancelledAtNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.ServingCounter = nullStringPtr(counterNull)
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.ServiceStartedAt = nullTimePtr(startedAtNull)
	ticket.ServiceCompletedAt = nullTimePtr(completedAtNull)
	ticket.CancelledAt = nullTimePtr(cancelledAtNull)
	return ticket, nil
}

func findTicketByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Ticket, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE request_id = $1
	`, requestID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func loadTicketStatus(ctx context.Context, tx pgx.Tx, ticketID string) (string, bool, error) {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return status, true, nil
}

func lookupDepartment(ctx context.Context, q queryRower, departmentID string) (models.Department, error) {
	var dept models.Department
	row := q.QueryRow(ctx, `
		SELECT department_id, name, prefix, avg_service_minutes, active
		FROM departments
		WHERE department_id = $1 AND active = TRUE
	`, departmentID)
	if err := row.Scan(&dept.DepartmentID, &dept.Name, &dept.Prefix, &dept.AvgServiceMinutes, &dept.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Department{}, store.ErrDepartmentNotFound
		}
		return models.Department{}, err
	}
	return dept, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func departmentServiceMinutes(ctx context.Context, q queryRower, departmentID string, fallback int) (int, error) {
	var minutes int
	row := q.QueryRow(ctx, `
		SELECT avg_service_minutes
		FROM departments
		WHERE department_id = $1
	`, departmentID)
	if err := row.Scan(&minutes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fallback, nil
		}
		return 0, err
	}
	if minutes <= 0 {
		return fallback, nil
	}
	return minutes, nil
}

func nextTicketNumber(ctx context.Context, tx pgx.Tx, departmentID string, queueDate time.Time) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (department_id, queue_date, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (department_id, queue_date)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, departmentID, queueDate)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Ticket, bool, bool, error) {
	var ticketIDNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT ticket_id
		FROM action_requests
		WHERE action = $1 AND request_id = $2
	`, action, requestID)
	if err := row.Scan(&ticketIDNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, false, nil
		}
		return models.Ticket{}, false, false, err
	}
	if !ticketIDNull.Valid || ticketIDNull.String == "" {
		return models.Ticket{}, true, true, nil
	}

	row = tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketIDNull.String)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, true, true, nil
		}
		return models.Ticket{}, false, false, err
	}
	return ticket, true, false, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, ticketID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (action, request_id, ticket_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (action, request_id) DO NOTHING
	`, action, requestID, nullIfEmpty(ticketID), time.Now().UTC())
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket) error {
	payload := map[string]interface{}{
		"ticket_id":      ticket.TicketID,
		"ticket_number":  ticket.TicketNumber,
		"department_id":  ticket.DepartmentID,
		"patient_id":     ticket.PatientID,
		"priority":       ticket.Priority,
		"status":         ticket.Status,
		"queue_position": ticket.QueuePosition,
		"counter":        ticket.ServingCounter,
		"request_id":     ticket.RequestID,
		"issued_at":      ticket.IssuedAt,
		"called_at":      ticket.CalledAt,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}

func insertTransferEvent(ctx context.Context, tx pgx.Tx, ticket models.Ticket, fromDepartmentID, reason string) error {
	payload := map[string]interface{}{
		"ticket_id":          ticket.TicketID,
		"ticket_number":      ticket.TicketNumber,
		"department_id":      ticket.DepartmentID,
		"patient_id":         ticket.PatientID,
		"status":             ticket.Status,
		"from_department_id": fromDepartmentID,
		"to_department_id":   ticket.DepartmentID,
		"reason":             reason,
		"request_id":         ticket.RequestID,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), "ticket.transferred", payloadJSON, time.Now().UTC())
	return err
}
