package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

const notificationColumns = `notification_id, recipient_id, type, channel, priority, status, title, message,
	metadata, scheduled_at, retry_count, max_retries, provider_message_id, last_error, created_at, sent_at, delivered_at`

func (s *Store) InsertNotification(ctx context.Context, notification models.Notification) (string, error) {
	notificationID := notification.NotificationID
	if notificationID == "" {
		notificationID = uuid.NewString()
	}
	scheduledAt := notification.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}
	maxRetries := notification.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	priority := notification.Priority
	if priority == "" {
		priority = models.NotifyNormal
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			notification_id, recipient_id, type, channel, priority, status, title, message,
			metadata, scheduled_at, retry_count, max_retries, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,$11,$12)
	`, notificationID, notification.RecipientID, notification.Type, notification.Channel, priority,
		models.NotificationPending, notification.Title, notification.Message,
		nullIfEmpty(string(notification.Metadata)), scheduledAt, maxRetries, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return notificationID, nil
}

func (s *Store) GetNotification(ctx context.Context, notificationID string) (models.Notification, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE notification_id = $1
	`, notificationID)
	notification, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, false, store.ErrNotificationNotFound
		}
		return models.Notification{}, false, err
	}
	return notification, true, nil
}

// ClaimPending moves due pending rows to dispatched so concurrent workers
// never pick up the same notification twice.
func (s *Store) ClaimPending(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT notification_id
			FROM notifications
			WHERE status = 'pending' AND scheduled_at <= $1
			ORDER BY CASE priority WHEN 'urgent' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END DESC,
				created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE notifications
		SET status = 'dispatched'
		FROM due
		WHERE notifications.notification_id = due.notification_id
		RETURNING notifications.notification_id, notifications.recipient_id, notifications.type,
			notifications.channel, notifications.priority, notifications.status, notifications.title,
			notifications.message, notifications.metadata, notifications.scheduled_at,
			notifications.retry_count, notifications.max_retries, notifications.provider_message_id,
			notifications.last_error, notifications.created_at, notifications.sent_at, notifications.delivered_at
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *Store) MarkSent(ctx context.Context, notificationID, providerMessageID string, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'sent',
			provider_message_id = $2,
			sent_at = $3
		WHERE notification_id = $1
	`, notificationID, nullIfEmpty(providerMessageID), sentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotificationNotFound
	}
	return nil
}

func (s *Store) MarkDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'delivered',
			delivered_at = $2
		WHERE notification_id = $1 AND status = 'sent'
	`, notificationID, deliveredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotificationNotFound
	}
	return nil
}

// MarkFailed re-queues until retry_count reaches max_retries, then the row is
// terminally failed. Returns the resulting status.
func (s *Store) MarkFailed(ctx context.Context, notificationID, lastError string) (string, error) {
	var status string
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET retry_count = retry_count + 1,
			last_error = $2,
			status = CASE WHEN retry_count + 1 < max_retries THEN 'pending' ELSE 'failed' END
		WHERE notification_id = $1
		RETURNING status
	`, notificationID, lastError)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotificationNotFound
		}
		return "", err
	}
	return status, nil
}

func (s *Store) GetContact(ctx context.Context, recipientID string) (models.Contact, error) {
	var contact models.Contact
	var phone, email, deviceToken, whatsapp sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT recipient_id, phone, email, device_token, whatsapp
		FROM recipient_contacts
		WHERE recipient_id = $1
	`, recipientID)
	if err := row.Scan(&contact.RecipientID, &phone, &email, &deviceToken, &whatsapp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Contact{}, store.ErrContactNotFound
		}
		return models.Contact{}, err
	}
	contact.Phone = phone.String
	contact.Email = email.String
	contact.DeviceToken = deviceToken.String
	contact.WhatsApp = whatsapp.String
	return contact, nil
}

func (s *Store) InsertInAppMessage(ctx context.Context, recipientID, title, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inapp_messages (message_id, recipient_id, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`, uuid.NewString(), recipientID, title, message, time.Now().UTC())
	return err
}

func (s *Store) GetLastOffset(ctx context.Context) (time.Time, error) {
	var value time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time
		FROM notification_offsets
		WHERE id = 1
	`)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return value, nil
}

func (s *Store) UpdateOffset(ctx context.Context, value time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_offsets (id, last_event_time)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_event_time = EXCLUDED.last_event_time
	`, value)
	return err
}

func scanNotification(row rowScanner) (models.Notification, error) {
	var notification models.Notification
	var metadata, providerMessageID, lastError sql.NullString
	var sentAt, deliveredAt sql.NullTime
	if err := row.Scan(&notification.NotificationID, &notification.RecipientID, &notification.Type,
		&notification.Channel, &notification.Priority, &notification.Status, &notification.Title,
		&notification.Message, &metadata, &notification.ScheduledAt, &notification.RetryCount,
		&notification.MaxRetries, &providerMessageID, &lastError, &notification.CreatedAt,
		&sentAt, &deliveredAt); err != nil {
		return models.Notification{}, err
	}
	if metadata.Valid {
		notification.Metadata = []byte(metadata.String)
	}
	notification.ProviderMessageID = providerMessageID.String
	notification.LastError = lastError.String
	notification.SentAt = nullTimePtr(sentAt)
	notification.DeliveredAt = nullTimePtr(deliveredAt)
	return notification, nil
}
