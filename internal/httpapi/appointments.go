package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

type bookAppointmentRequest struct {
	RequestID       string `json:"request_id"`
	PatientID       string `json:"patient_id"`
	DepartmentID    string `json:"department_id"`
	AppointmentType string `json:"appointment_type"`
	ScheduledAt     string `json:"scheduled_at"`
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req bookAppointmentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.AppointmentType = strings.TrimSpace(req.AppointmentType)

	if req.RequestID == "" || req.PatientID == "" || req.DepartmentID == "" || req.ScheduledAt == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, patient_id, department_id, and scheduled_at are required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "scheduled_at must be RFC3339 timestamp")
		return
	}
	if scheduledAt.Before(time.Now().UTC()) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "scheduled_at must be in the future")
		return
	}
	if req.AppointmentType == "" {
		req.AppointmentType = "outpatient"
	}

	appointment, _, err := h.appointments.BookAppointment(r.Context(), store.BookAppointmentInput{
		RequestID:       req.RequestID,
		PatientID:       req.PatientID,
		DepartmentID:    req.DepartmentID,
		AppointmentType: req.AppointmentType,
		ScheduledAt:     scheduledAt.UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	// Reminder rows are best-effort at booking time; the appointment is
	// already committed.
	if err := h.createReminders(r, appointment); err != nil {
		log.Printf("create reminders error: appointment_id=%s err=%v", appointment.AppointmentID, err)
	}
	writeJSON(w, http.StatusOK, appointment)
}

func (h *Handler) createReminders(r *http.Request, appointment models.Appointment) error {
	var reminders []models.Reminder
	for _, offset := range h.reminderOffsets {
		at := appointment.ScheduledAt.Add(-time.Duration(offset) * time.Minute)
		if at.Before(time.Now().UTC()) {
			continue
		}
		for _, channel := range []string{models.ChannelSMS, models.ChannelWhatsApp} {
			reminders = append(reminders, models.Reminder{
				AppointmentID: appointment.AppointmentID,
				Channel:       channel,
				OffsetMinutes: offset,
				ScheduledAt:   at,
				Status:        models.ReminderPending,
			})
		}
	}
	if len(reminders) == 0 {
		return nil
	}
	return h.appointments.CreateReminders(r.Context(), appointment.AppointmentID, reminders)
}

func (h *Handler) handleAppointmentCheckin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RequestID     string `json:"request_id"`
		AppointmentID string `json:"appointment_id"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.RequestID == "" || req.AppointmentID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and appointment_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.AppointmentID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and appointment_id must be UUIDs")
		return
	}

	ticket, err := h.appointments.CheckInAppointment(r.Context(), req.RequestID, req.AppointmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	h.refreshStats(r, ticket.DepartmentID, ticket.QueueDate)
	writeJSON(w, http.StatusOK, ticket)
}
