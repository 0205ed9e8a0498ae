package models

import "time"

// CriticalAlert tracks an unacknowledged critical result through the
// escalation ladder. Level only moves up and stops once acknowledged.
type CriticalAlert struct {
	AlertID         string     `json:"alert_id"`
	NotificationID  string     `json:"notification_id"`
	PatientID       string     `json:"patient_id"`
	PhysicianID     string     `json:"physician_id"`
	DepartmentID    string     `json:"department_id"`
	Summary         string     `json:"summary"`
	EscalationLevel int        `json:"escalation_level"`
	Acknowledged    bool       `json:"acknowledged"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	ActionTaken     string     `json:"action_taken,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	EscalatedAt     *time.Time `json:"escalated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

const MaxEscalationLevel = 3
