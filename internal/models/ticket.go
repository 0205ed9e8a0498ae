package models

import "time"

type Ticket struct {
	TicketID             string     `json:"ticket_id"`
	TicketNumber         string     `json:"ticket_number"`
	DepartmentID         string     `json:"department_id"`
	QueueDate            time.Time  `json:"queue_date"`
	PatientID            string     `json:"patient_id"`
	Priority             string     `json:"priority"`
	Status               string     `json:"status"`
	QueuePosition        int        `json:"queue_position"`
	PeopleAhead          int        `json:"people_ahead"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	ServingCounter       *string    `json:"serving_counter,omitempty"`
	RequestID            string     `json:"request_id"`
	IssuedAt             time.Time  `json:"issued_at"`
	CalledAt             *time.Time `json:"called_at,omitempty"`
	ServiceStartedAt     *time.Time `json:"service_started_at,omitempty"`
	ServiceCompletedAt   *time.Time `json:"service_completed_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusServed    = "served"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

const (
	PriorityNormal      = "normal"
	PriorityPrioritized = "prioritized"
	PriorityUrgent      = "urgent"
)

func ValidPriority(value string) bool {
	switch value {
	case PriorityNormal, PriorityPrioritized, PriorityUrgent:
		return true
	default:
		return false
	}
}

// PriorityRank orders call-next selection: urgent > prioritized > normal.
func PriorityRank(value string) int {
	switch value {
	case PriorityUrgent:
		return 2
	case PriorityPrioritized:
		return 1
	default:
		return 0
	}
}

type Department struct {
	DepartmentID      string `json:"department_id"`
	Name              string `json:"name"`
	Prefix            string `json:"prefix"`
	AvgServiceMinutes int    `json:"avg_service_minutes"`
	Active            bool   `json:"active"`
}

type QueueStats struct {
	DepartmentID         string    `json:"department_id"`
	QueueDate            time.Time `json:"queue_date"`
	Waiting              int       `json:"waiting"`
	Called               int       `json:"called"`
	ServedToday          int       `json:"served_today"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
}
