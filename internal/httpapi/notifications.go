package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rebekz/simrs/internal/models"
)

type sendNotificationRequest struct {
	RecipientID string            `json:"recipient_id"`
	Type        string            `json:"type"`
	Channel     string            `json:"channel"`
	Priority    string            `json:"priority"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata"`
	ScheduledAt string            `json:"scheduled_at"`
}

func validChannel(value string) bool {
	switch value {
	case models.ChannelSMS, models.ChannelEmail, models.ChannelPush, models.ChannelWhatsApp, models.ChannelInApp:
		return true
	default:
		return false
	}
}

func validNotifyPriority(value string) bool {
	switch value {
	case models.NotifyUrgent, models.NotifyHigh, models.NotifyNormal, models.NotifyLow:
		return true
	default:
		return false
	}
}

// handleNotifications accepts a notification and returns its id immediately;
// delivery happens in the dispatch worker.
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req sendNotificationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RecipientID = strings.TrimSpace(req.RecipientID)
	req.Type = strings.TrimSpace(req.Type)
	req.Channel = strings.TrimSpace(req.Channel)
	req.Priority = strings.TrimSpace(req.Priority)

	if req.RecipientID == "" || req.Type == "" || req.Channel == "" || req.Message == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "recipient_id, type, channel, and message are required")
		return
	}
	if !validChannel(req.Channel) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "unknown channel")
		return
	}
	if req.Priority == "" {
		req.Priority = models.NotifyNormal
	}
	if !validNotifyPriority(req.Priority) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "priority must be urgent, high, normal, or low")
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "scheduled_at must be RFC3339 timestamp")
			return
		}
		scheduledAt = parsed.UTC()
	}

	var metadata json.RawMessage
	if len(req.Metadata) > 0 {
		metadata, _ = json.Marshal(req.Metadata)
	}

	notificationID, err := h.notifs.InsertNotification(r.Context(), models.Notification{
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Channel:     req.Channel,
		Priority:    req.Priority,
		Title:       req.Title,
		Message:     req.Message,
		Metadata:    metadata,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"notification_id": notificationID})
}

func (h *Handler) handleNotificationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	notificationID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/notifications/"), "/")
	if !isValidUUID(notificationID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "notification_id must be a UUID")
		return
	}

	notification, found, err := h.notifs.GetNotification(r.Context(), notificationID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		writeError(w, "", http.StatusNotFound, "notification_not_found", "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, notification)
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
	ActionTaken    string `json:"action_taken"`
}

// handleAlertSubpaths routes /api/alerts/{id} and /api/alerts/{id}/acknowledge.
func (h *Handler) handleAlertSubpaths(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	alertID := parts[0]
	if !isValidUUID(alertID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "alert_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleGetAlert(w, r, alertID)
	case len(parts) == 2 && parts[1] == "acknowledge":
		h.handleAcknowledgeAlert(w, r, alertID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	alert, found, err := h.alerts.GetAlert(r.Context(), alertID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		writeError(w, "", http.StatusNotFound, "alert_not_found", "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req acknowledgeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.AcknowledgedBy = strings.TrimSpace(req.AcknowledgedBy)
	req.ActionTaken = strings.TrimSpace(req.ActionTaken)
	if req.AcknowledgedBy == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "acknowledged_by is required")
		return
	}

	if err := h.alerts.AcknowledgeAlert(r.Context(), alertID, req.AcknowledgedBy, req.ActionTaken, time.Now().UTC()); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	alert, _, err := h.alerts.GetAlert(r.Context(), alertID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
