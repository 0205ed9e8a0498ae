package models

import "time"

type Appointment struct {
	AppointmentID     string    `json:"appointment_id"`
	AppointmentNumber string    `json:"appointment_number"`
	PatientID         string    `json:"patient_id"`
	DepartmentID      string    `json:"department_id"`
	AppointmentType   string    `json:"appointment_type"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	Status            string    `json:"status"`
	RequestID         string    `json:"request_id"`
	CreatedAt         time.Time `json:"created_at"`
}

const (
	AppointmentScheduled = "scheduled"
	AppointmentCheckedIn = "checked_in"
	AppointmentCancelled = "cancelled"
)

type Reminder struct {
	ReminderID    string    `json:"reminder_id"`
	AppointmentID string    `json:"appointment_id"`
	Channel       string    `json:"channel"`
	OffsetMinutes int       `json:"offset_minutes"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Status        string    `json:"status"`
	RetryCount    int       `json:"retry_count"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	ReminderPending = "pending"
	ReminderSent    = "sent"
	ReminderFailed  = "failed"
)
