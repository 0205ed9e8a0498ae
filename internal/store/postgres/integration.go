package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rebekz/simrs/internal/models"
)

func (s *Store) InsertHL7Message(ctx context.Context, message models.HL7Message) error {
	messageID := message.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hl7_messages (
			message_id, message_type, message_control_id, sending_app, sending_facility,
			patient_id, raw_message, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (message_control_id) DO NOTHING
	`, messageID, message.MessageType, message.MessageControlID, message.SendingApp,
		message.SendingFacility, nullIfEmpty(message.PatientID), message.RawMessage,
		models.HL7Pending, time.Now().UTC())
	return err
}

func (s *Store) MarkHL7Processed(ctx context.Context, messageID, ackCode string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hl7_messages
		SET status = 'processed',
			ack_code = $2,
			processed_at = $3
		WHERE message_id = $1
	`, messageID, ackCode, at)
	return err
}

func (s *Store) MarkHL7Failed(ctx context.Context, messageID, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hl7_messages
		SET status = 'failed',
			last_error = $2
		WHERE message_id = $1
	`, messageID, lastError)
	return err
}

func (s *Store) InsertTransmission(ctx context.Context, transmission models.BPJSTransmission) error {
	transmissionID := transmission.TransmissionID
	if transmissionID == "" {
		transmissionID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bpjs_transmissions (transmission_id, ticket_id, kind, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
	`, transmissionID, transmission.TicketID, transmission.Kind, models.TransmissionPending, time.Now().UTC())
	return err
}

func (s *Store) ClaimPendingTransmissions(ctx context.Context, limit int) ([]models.BPJSTransmission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT transmission_id
			FROM bpjs_transmissions
			WHERE status = 'pending'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		UPDATE bpjs_transmissions
		SET status = 'running'
		FROM due
		WHERE bpjs_transmissions.transmission_id = due.transmission_id
		RETURNING bpjs_transmissions.transmission_id, bpjs_transmissions.ticket_id,
			bpjs_transmissions.kind, bpjs_transmissions.status, bpjs_transmissions.retry_count,
			bpjs_transmissions.created_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transmissions []models.BPJSTransmission
	for rows.Next() {
		var transmission models.BPJSTransmission
		if err := rows.Scan(&transmission.TransmissionID, &transmission.TicketID, &transmission.Kind,
			&transmission.Status, &transmission.RetryCount, &transmission.CreatedAt); err != nil {
			return nil, err
		}
		transmissions = append(transmissions, transmission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transmissions, nil
}

func (s *Store) CompleteTransmission(ctx context.Context, transmissionID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bpjs_transmissions
		SET status = 'completed',
			completed_at = $2
		WHERE transmission_id = $1
	`, transmissionID, at)
	return err
}

func (s *Store) FailTransmission(ctx context.Context, transmissionID string, maxRetries int, lastError string) (string, error) {
	var status string
	row := s.pool.QueryRow(ctx, `
		UPDATE bpjs_transmissions
		SET retry_count = retry_count + 1,
			last_error = $2,
			status = CASE WHEN retry_count + 1 < $3 THEN 'pending' ELSE 'failed' END
		WHERE transmission_id = $1
		RETURNING status
	`, transmissionID, lastError, maxRetries)
	if err := row.Scan(&status); err != nil {
		return "", err
	}
	return status, nil
}
