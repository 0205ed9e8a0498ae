package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

const alertColumns = `alert_id, notification_id, patient_id, physician_id, department_id, summary,
	escalation_level, acknowledged, acknowledged_by, action_taken, acknowledged_at, escalated_at, created_at`

func (s *Store) CreateAlert(ctx context.Context, alert models.CriticalAlert) (string, error) {
	alertID := alert.AlertID
	if alertID == "" {
		alertID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO critical_alerts (
			alert_id, notification_id, patient_id, physician_id, department_id, summary,
			escalation_level, acknowledged, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,0,FALSE,$7)
	`, alertID, alert.NotificationID, alert.PatientID, alert.PhysicianID, alert.DepartmentID,
		alert.Summary, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return alertID, nil
}

func (s *Store) GetAlert(ctx context.Context, alertID string) (models.CriticalAlert, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM critical_alerts
		WHERE alert_id = $1
	`, alertID)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CriticalAlert{}, false, store.ErrAlertNotFound
		}
		return models.CriticalAlert{}, false, err
	}
	return alert, true, nil
}

// ListUnacknowledged returns open critical alerts whose notification was sent
// before the cutoff, joined so the engine can age them against sent_at.
func (s *Store) ListUnacknowledged(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.alert_id, a.notification_id, a.patient_id, a.physician_id, a.department_id, a.summary,
			a.escalation_level, a.acknowledged, a.acknowledged_by, a.action_taken,
			a.acknowledged_at, a.escalated_at, COALESCE(n.sent_at, a.created_at)
		FROM critical_alerts a
		JOIN notifications n ON n.notification_id = a.notification_id
		WHERE a.acknowledged = FALSE
			AND a.escalation_level < $1
			AND n.status IN ('sent', 'delivered')
			AND COALESCE(n.sent_at, a.created_at) <= $2
		ORDER BY COALESCE(n.sent_at, a.created_at) ASC
	`, models.MaxEscalationLevel, sentBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []store.EscalatableAlert
	for rows.Next() {
		var alert store.EscalatableAlert
		var acknowledgedBy, actionTaken sql.NullString
		var acknowledgedAt, escalatedAt sql.NullTime
		if err := rows.Scan(&alert.AlertID, &alert.NotificationID, &alert.PatientID, &alert.PhysicianID,
			&alert.DepartmentID, &alert.Summary, &alert.EscalationLevel, &alert.Acknowledged,
			&acknowledgedBy, &actionTaken, &acknowledgedAt, &escalatedAt, &alert.SentAt); err != nil {
			return nil, err
		}
		alert.AcknowledgedBy = acknowledgedBy.String
		alert.ActionTaken = actionTaken.String
		alert.AcknowledgedAt = nullTimePtr(acknowledgedAt)
		alert.EscalatedAt = nullTimePtr(escalatedAt)
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// EscalateAlert bumps the level by exactly one step and only while the alert
// is still unacknowledged, so the level stays monotonic under concurrent
// monitors. Returns false when the guard did not match.
func (s *Store) EscalateAlert(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error) {
	if toLevel < 1 || toLevel > models.MaxEscalationLevel {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE critical_alerts
		SET escalation_level = $2,
			escalated_at = $3
		WHERE alert_id = $1 AND acknowledged = FALSE AND escalation_level = $2 - 1
	`, alertID, toLevel, escalatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) AcknowledgeAlert(ctx context.Context, alertID, acknowledgedBy, actionTaken string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE critical_alerts
		SET acknowledged = TRUE,
			acknowledged_by = $2,
			action_taken = $3,
			acknowledged_at = $4
		WHERE alert_id = $1 AND acknowledged = FALSE
	`, alertID, acknowledgedBy, actionTaken, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		_, found, err := s.GetAlert(ctx, alertID)
		if err != nil && !errors.Is(err, store.ErrAlertNotFound) {
			return err
		}
		if !found {
			return store.ErrAlertNotFound
		}
		return store.ErrAlertAcknowledged
	}
	return nil
}

// GetAlertRecipients resolves who a given ladder level notifies: the ordering
// physician again at level 1, department heads at level 2, chief of staff at 3.
func (s *Store) GetAlertRecipients(ctx context.Context, alert models.CriticalAlert, level int) ([]string, error) {
	switch level {
	case 1:
		return []string{alert.PhysicianID}, nil
	case 2:
		return s.listStaffByRole(ctx, "department_head", alert.DepartmentID)
	case 3:
		return s.listStaffByRole(ctx, "chief_of_staff", "")
	default:
		return nil, nil
	}
}

func (s *Store) listStaffByRole(ctx context.Context, role, departmentID string) ([]string, error) {
	query := `
		SELECT staff_id
		FROM staff_roles
		WHERE role = $1
	`
	args := []interface{}{role}
	if departmentID != "" {
		query += " AND department_id = $2"
		args = append(args, departmentID)
	}
	query += " ORDER BY staff_id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []string
	for rows.Next() {
		var staffID string
		if err := rows.Scan(&staffID); err != nil {
			return nil, err
		}
		staff = append(staff, staffID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return staff, nil
}

func scanAlert(row rowScanner) (models.CriticalAlert, error) {
	var alert models.CriticalAlert
	var acknowledgedBy, actionTaken sql.NullString
	var acknowledgedAt, escalatedAt sql.NullTime
	if err := row.Scan(&alert.AlertID, &alert.NotificationID, &alert.PatientID, &alert.PhysicianID,
		&alert.DepartmentID, &alert.Summary, &alert.EscalationLevel, &alert.Acknowledged,
		&acknowledgedBy, &actionTaken, &acknowledgedAt, &escalatedAt, &alert.CreatedAt); err != nil {
		return models.CriticalAlert{}, err
	}
	alert.AcknowledgedBy = acknowledgedBy.String
	alert.ActionTaken = actionTaken.String
	alert.AcknowledgedAt = nullTimePtr(acknowledgedAt)
	alert.EscalatedAt = nullTimePtr(escalatedAt)
	return alert, nil
}
