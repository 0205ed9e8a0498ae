package models

import "time"

type HL7Message struct {
	MessageID        string     `json:"message_id"`
	MessageType      string     `json:"message_type"`
	MessageControlID string     `json:"message_control_id"`
	SendingApp       string     `json:"sending_app"`
	SendingFacility  string     `json:"sending_facility"`
	PatientID        string     `json:"patient_id,omitempty"`
	RawMessage       []byte     `json:"raw_message"`
	Status           string     `json:"status"`
	AckCode          string     `json:"ack_code,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

const (
	HL7Pending   = "pending"
	HL7Processed = "processed"
	HL7Failed    = "failed"
)

type BPJSTransmission struct {
	TransmissionID string     `json:"transmission_id"`
	TicketID       string     `json:"ticket_id"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	RetryCount     int        `json:"retry_count"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

const (
	TransmissionPending   = "pending"
	TransmissionRunning   = "running"
	TransmissionCompleted = "completed"
	TransmissionFailed    = "failed"
)
