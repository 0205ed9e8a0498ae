package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

// Dispatcher drains the pending notification queue and hands each row to the
// provider registered for its channel.
type Dispatcher struct {
	store     store.NotificationStore
	registry  *Registry
	batchSize int
	now       func() time.Time
}

type DispatcherConfig struct {
	BatchSize int
}

func NewDispatcher(store store.NotificationStore, registry *Registry, cfg DispatcherConfig) *Dispatcher {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Dispatcher{
		store:     store,
		registry:  registry,
		batchSize: batch,
		now:       time.Now,
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	notifications, err := d.store.ClaimPending(ctx, d.now().UTC(), d.batchSize)
	if err != nil {
		return err
	}

	for _, notification := range notifications {
		if err := d.dispatch(ctx, notification); err != nil {
			log.Printf("dispatch error: notification_id=%s err=%v", notification.NotificationID, err)
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, notification models.Notification) error {
	provider, ok := d.registry.Resolve(notification.Channel)
	if !ok {
		return d.fail(ctx, notification, fmt.Sprintf("no provider for channel %s", notification.Channel))
	}

	recipient, err := d.recipientAddress(ctx, notification)
	if err != nil {
		return d.fail(ctx, notification, err.Error())
	}
	if !provider.ValidateRecipient(recipient) {
		return d.fail(ctx, notification, fmt.Sprintf("invalid %s recipient", notification.Channel))
	}

	msg := Message{
		Recipient: recipient,
		Subject:   notification.Title,
		Body:      notification.Message,
		Metadata:  metadataMap(notification.Metadata),
	}
	result, sendErr := provider.Send(ctx, msg)
	if sendErr != nil || !result.Success {
		reason := result.Error
		if reason == "" && sendErr != nil {
			reason = sendErr.Error()
		}
		return d.fail(ctx, notification, reason)
	}
	return d.store.MarkSent(ctx, notification.NotificationID, result.MessageID, d.now().UTC())
}

func (d *Dispatcher) fail(ctx context.Context, notification models.Notification, reason string) error {
	status, err := d.store.MarkFailed(ctx, notification.NotificationID, reason)
	if err != nil {
		return err
	}
	if status == models.NotificationFailed {
		log.Printf("notification exhausted retries: notification_id=%s channel=%s reason=%s",
			notification.NotificationID, notification.Channel, reason)
	}
	return nil
}

// recipientAddress picks the contact field for the channel. In-app messages
// address the recipient directly.
func (d *Dispatcher) recipientAddress(ctx context.Context, notification models.Notification) (string, error) {
	if notification.Channel == models.ChannelInApp {
		return notification.RecipientID, nil
	}

	contact, err := d.store.GetContact(ctx, notification.RecipientID)
	if err != nil {
		return "", err
	}
	switch notification.Channel {
	case models.ChannelSMS:
		if contact.Phone == "" {
			return "", fmt.Errorf("no phone on file for %s", notification.RecipientID)
		}
		return contact.Phone, nil
	case models.ChannelEmail:
		if contact.Email == "" {
			return "", fmt.Errorf("no email on file for %s", notification.RecipientID)
		}
		return contact.Email, nil
	case models.ChannelPush:
		if contact.DeviceToken == "" {
			return "", fmt.Errorf("no device token on file for %s", notification.RecipientID)
		}
		return contact.DeviceToken, nil
	case models.ChannelWhatsApp:
		whatsapp := contact.WhatsApp
		if whatsapp == "" {
			whatsapp = contact.Phone
		}
		if whatsapp == "" {
			return "", fmt.Errorf("no whatsapp number on file for %s", notification.RecipientID)
		}
		return whatsapp, nil
	default:
		return "", fmt.Errorf("unknown channel %s", notification.Channel)
	}
}

func metadataMap(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	out := make(map[string]string, len(decoded))
	for key, value := range decoded {
		if text, ok := value.(string); ok {
			out[key] = text
		} else {
			out[key] = fmt.Sprintf("%v", value)
		}
	}
	return out
}

// Start runs a worker loop on a fixed interval until the context is done.
func Start(ctx context.Context, interval time.Duration, name string, run func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := run(ctx); err != nil {
				log.Printf("%s worker error: %v", name, err)
			}
		}
	}
}
