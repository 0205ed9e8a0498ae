package store

import "errors"

var (
	ErrDepartmentNotFound   = errors.New("department not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrNoTicket             = errors.New("no ticket available")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrInvalidState         = errors.New("invalid ticket state")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrAlertNotFound        = errors.New("alert not found")
	ErrAlertAcknowledged    = errors.New("alert already acknowledged")
	ErrContactNotFound      = errors.New("recipient contact not found")
)
