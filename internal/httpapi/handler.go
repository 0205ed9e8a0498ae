package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/stats"
	"github.com/rebekz/simrs/internal/store"
)

type Handler struct {
	tickets      store.TicketStore
	appointments store.AppointmentStore
	notifs       store.NotificationStore
	alerts       store.AlertStore
	statsCache   *stats.Cache
	reminderOffsets []int
}

type Options struct {
	// ReminderOffsetMinutes are the lead times for appointment reminders,
	// largest first, e.g. 1440 and 120.
	ReminderOffsetMinutes []int
	StatsCache            *stats.Cache
}

func NewHandler(tickets store.TicketStore, appointments store.AppointmentStore, notifs store.NotificationStore, alerts store.AlertStore, options Options) *Handler {
	offsets := options.ReminderOffsetMinutes
	if len(offsets) == 0 {
		offsets = []int{24 * 60, 2 * 60}
	}
	return &Handler{
		tickets:         tickets,
		appointments:    appointments,
		notifs:          notifs,
		alerts:          alerts,
		statsCache:      options.StatsCache,
		reminderOffsets: offsets,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tickets/", h.handleTicketSubpaths)
	mux.HandleFunc("/api/queue", h.handleQueueSnapshot)
	mux.HandleFunc("/api/queue/stats", h.handleQueueStats)
	mux.HandleFunc("/api/departments", h.handleDepartments)
	mux.HandleFunc("/api/appointments", h.handleAppointments)
	mux.HandleFunc("/api/appointments/checkin", h.handleAppointmentCheckin)
	mux.HandleFunc("/api/notifications", h.handleNotifications)
	mux.HandleFunc("/api/notifications/", h.handleNotificationByID)
	mux.HandleFunc("/api/alerts/", h.handleAlertSubpaths)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTicketRequest struct {
	RequestID    string `json:"request_id"`
	PatientID    string `json:"patient_id"`
	DepartmentID string `json:"department_id"`
	Priority     string `json:"priority"`
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.Priority = strings.TrimSpace(req.Priority)

	if req.RequestID == "" || req.PatientID == "" || req.DepartmentID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, patient_id, and department_id are required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !models.ValidPriority(req.Priority) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "priority must be normal, prioritized, or urgent")
		return
	}

	ticket, _, err := h.tickets.CreateTicket(r.Context(), store.CreateTicketInput{
		RequestID:    req.RequestID,
		PatientID:    req.PatientID,
		DepartmentID: req.DepartmentID,
		Priority:     req.Priority,
		IssuedAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	h.refreshStats(r, ticket.DepartmentID, ticket.QueueDate)
	writeJSON(w, http.StatusOK, ticket)
}

type callNextRequest struct {
	RequestID    string `json:"request_id"`
	DepartmentID string `json:"department_id"`
	Counter      string `json:"counter"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.Counter = strings.TrimSpace(req.Counter)

	if req.RequestID == "" || req.DepartmentID == "" || req.Counter == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, department_id, and counter are required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	ticket, _, err := h.tickets.CallNext(r.Context(), store.CallNextInput{
		RequestID:    req.RequestID,
		DepartmentID: req.DepartmentID,
		Counter:      req.Counter,
		CalledAt:     time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNoTicket) {
			writeError(w, req.RequestID, http.StatusConflict, "queue_empty", "no waiting tickets")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	h.refreshStats(r, ticket.DepartmentID, ticket.QueueDate)
	writeJSON(w, http.StatusOK, ticket)
}

// handleTicketSubpaths routes /api/tickets/{id}, /api/tickets/{id}/position,
// and /api/tickets/{id}/actions/{action}.
func (h *Handler) handleTicketSubpaths(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	ticketID := parts[0]
	if !isValidUUID(ticketID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleGetTicket(w, r, ticketID)
	case len(parts) == 2 && parts[1] == "position":
		h.handleTicketPosition(w, r, ticketID)
	case len(parts) == 3 && parts[1] == "actions":
		h.handleTicketAction(w, r, ticketID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ticket, found, err := h.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		writeError(w, "", http.StatusNotFound, "ticket_not_found", "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketPosition(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ticket, err := h.tickets.GetTicketPosition(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var apply func(r *http.Request, input store.TicketActionInput) (models.Ticket, bool, error)
	switch action {
	case "serve":
		apply = func(r *http.Request, input store.TicketActionInput) (models.Ticket, bool, error) {
			return h.tickets.ServeTicket(r.Context(), input)
		}
	case "skip":
		apply = func(r *http.Request, input store.TicketActionInput) (models.Ticket, bool, error) {
			return h.tickets.SkipTicket(r.Context(), input)
		}
	case "cancel":
		apply = func(r *http.Request, input store.TicketActionInput) (models.Ticket, bool, error) {
			return h.tickets.CancelTicket(r.Context(), input)
		}
	case "recall":
		apply = func(r *http.Request, input store.TicketActionInput) (models.Ticket, bool, error) {
			return h.tickets.RecallTicket(r.Context(), input)
		}
	case "transfer":
		apply = func(r *http.Request, input store.TicketActionInput) (models.Ticket, bool, error) {
			return h.tickets.TransferTicket(r.Context(), input)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req ticketActionRequest
	if !decodeActionRequest(w, r, &req) {
		return
	}
	if action == "transfer" && req.ToDepartmentID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "to_department_id is required")
		return
	}

	ticket, _, err := apply(r, store.TicketActionInput{
		RequestID:      req.RequestID,
		TicketID:       ticketID,
		Counter:        req.Counter,
		ToDepartmentID: req.ToDepartmentID,
		Reason:         req.Reason,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	h.refreshStats(r, ticket.DepartmentID, ticket.QueueDate)
	writeJSON(w, http.StatusOK, ticket)
}

type ticketActionRequest struct {
	RequestID      string `json:"request_id"`
	Counter        string `json:"counter"`
	ToDepartmentID string `json:"to_department_id"`
	Reason         string `json:"reason"`
}

func decodeActionRequest(w http.ResponseWriter, r *http.Request, req *ticketActionRequest) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Counter = strings.TrimSpace(req.Counter)
	req.ToDepartmentID = strings.TrimSpace(req.ToDepartmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.RequestID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "request_id is required")
		return false
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return false
	}
	return true
}

func (h *Handler) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	departmentID, date, ok := queueQuery(w, r)
	if !ok {
		return
	}
	tickets, err := h.tickets.ListQueue(r.Context(), departmentID, date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	departmentID, date, ok := queueQuery(w, r)
	if !ok {
		return
	}

	// Cache miss or cache trouble both fall through to the store.
	if h.statsCache != nil {
		if snapshot, err := h.statsCache.Get(r.Context(), departmentID, date); err == nil {
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}

	snapshot, err := h.tickets.GetQueueStats(r.Context(), departmentID, date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if h.statsCache != nil {
		h.statsCache.PutBestEffort(r.Context(), snapshot)
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func queueQuery(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	departmentID := strings.TrimSpace(r.URL.Query().Get("department_id"))
	if departmentID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "department_id is required")
		return "", time.Time{}, false
	}
	date := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return "", time.Time{}, false
		}
		date = parsed
	}
	return departmentID, date, true
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	departments, err := h.tickets.ListDepartments(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.tickets.ListOutboxEvents(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) refreshStats(r *http.Request, departmentID string, date time.Time) {
	if h.statsCache == nil {
		return
	}
	snapshot, err := h.tickets.GetQueueStats(r.Context(), departmentID, date)
	if err != nil {
		return
	}
	h.statsCache.PutBestEffort(r.Context(), snapshot)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrDepartmentNotFound):
		return http.StatusNotFound, "department_not_found", "department not found"
	case errors.Is(err, store.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "patient not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "appointment not found"
	case errors.Is(err, store.ErrNotificationNotFound):
		return http.StatusNotFound, "notification_not_found", "notification not found"
	case errors.Is(err, store.ErrAlertNotFound):
		return http.StatusNotFound, "alert_not_found", "alert not found"
	case errors.Is(err, store.ErrContactNotFound):
		return http.StatusNotFound, "contact_not_found", "recipient contact not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrAlertAcknowledged):
		return http.StatusConflict, "already_acknowledged", "alert is already acknowledged"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
