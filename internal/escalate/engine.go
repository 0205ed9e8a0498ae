package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

// levelDelays is the escalation ladder: how long an alert may sit
// unacknowledged before it moves to each level.
var levelDelays = [models.MaxEscalationLevel]time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// Engine walks unacknowledged critical alerts up the escalation ladder.
// Acknowledgment stops an alert cold; levels only ever increase, one step
// per pass.
type Engine struct {
	alerts    store.AlertStore
	notifs    store.NotificationStore
	batchSize int
	now       func() time.Time
}

type Config struct {
	BatchSize int
}

func New(alerts store.AlertStore, notifs store.NotificationStore, cfg Config) *Engine {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Engine{
		alerts:    alerts,
		notifs:    notifs,
		batchSize: batch,
		now:       time.Now,
	}
}

func (e *Engine) Run(ctx context.Context) error {
	now := e.now().UTC()
	candidates, err := e.alerts.ListUnacknowledged(ctx, now.Add(-levelDelays[0]))
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		if err := e.escalate(ctx, candidate, now); err != nil {
			log.Printf("escalate error: alert_id=%s err=%v", candidate.AlertID, err)
		}
	}
	return nil
}

func (e *Engine) escalate(ctx context.Context, candidate store.EscalatableAlert, now time.Time) error {
	nextLevel := candidate.EscalationLevel + 1
	if nextLevel > models.MaxEscalationLevel {
		return nil
	}
	if now.Sub(candidate.SentAt) < levelDelays[nextLevel-1] {
		return nil
	}

	// The level guard in the store makes this a no-op if another worker or an
	// acknowledgment got there first.
	moved, err := e.alerts.EscalateAlert(ctx, candidate.AlertID, nextLevel, now)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	recipients, err := e.alerts.GetAlertRecipients(ctx, candidate.CriticalAlert, nextLevel)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		log.Printf("escalation has no recipients: alert_id=%s level=%d", candidate.AlertID, nextLevel)
		return nil
	}

	metadata, _ := json.Marshal(map[string]string{
		"alert_id":         candidate.AlertID,
		"patient_id":       candidate.PatientID,
		"escalation_level": fmt.Sprintf("%d", nextLevel),
	})
	title := fmt.Sprintf("ESKALASI L%d: nilai kritis belum ditindaklanjuti", nextLevel)
	body := fmt.Sprintf("Hasil kritis pasien %s belum dikonfirmasi. %s", candidate.PatientID, candidate.Summary)

	for _, recipient := range recipients {
		for _, channel := range channelsForLevel(nextLevel) {
			_, err := e.notifs.InsertNotification(ctx, models.Notification{
				RecipientID: recipient,
				Type:        models.TypeCriticalAlert,
				Channel:     channel,
				Priority:    models.NotifyUrgent,
				Title:       title,
				Message:     body,
				Metadata:    metadata,
			})
			if err != nil {
				return err
			}
		}
	}

	log.Printf("alert escalated: alert_id=%s level=%d recipients=%d",
		candidate.AlertID, nextLevel, len(recipients))
	return nil
}

// channelsForLevel: the first escalation re-pages the physician on SMS and
// push; department heads and the chief of staff also get email.
func channelsForLevel(level int) []string {
	if level >= 2 {
		return []string{models.ChannelSMS, models.ChannelPush, models.ChannelEmail}
	}
	return []string{models.ChannelSMS, models.ChannelPush}
}
