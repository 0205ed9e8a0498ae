package models

import (
	"encoding/json"
	"time"
)

type Notification struct {
	NotificationID    string          `json:"notification_id"`
	RecipientID       string          `json:"recipient_id"`
	Type              string          `json:"type"`
	Channel           string          `json:"channel"`
	Priority          string          `json:"priority"`
	Status            string          `json:"status"`
	Title             string          `json:"title"`
	Message           string          `json:"message"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	ScheduledAt       time.Time       `json:"scheduled_at"`
	RetryCount        int             `json:"retry_count"`
	MaxRetries        int             `json:"max_retries"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	LastError         string          `json:"last_error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
}

const (
	NotificationPending    = "pending"
	NotificationDispatched = "dispatched"
	NotificationSent       = "sent"
	NotificationDelivered  = "delivered"
	NotificationFailed     = "failed"
)

const (
	ChannelSMS      = "sms"
	ChannelEmail    = "email"
	ChannelPush     = "push"
	ChannelWhatsApp = "whatsapp"
	ChannelInApp    = "in_app"
)

const (
	NotifyUrgent = "urgent"
	NotifyHigh   = "high"
	NotifyNormal = "normal"
	NotifyLow    = "low"
)

const TypeCriticalAlert = "critical_alert"

// NotifyPriorityRank orders dispatch: urgent before high before normal before low.
func NotifyPriorityRank(value string) int {
	switch value {
	case NotifyUrgent:
		return 3
	case NotifyHigh:
		return 2
	case NotifyNormal:
		return 1
	default:
		return 0
	}
}

type Contact struct {
	RecipientID string `json:"recipient_id"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	DeviceToken string `json:"device_token,omitempty"`
	WhatsApp    string `json:"whatsapp,omitempty"`
}
