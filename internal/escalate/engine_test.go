package escalate

import (
	"context"
	"testing"
	"time"

	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

type fakeAlertStore struct {
	listFn       func(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error)
	escalateFn   func(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error)
	recipientsFn func(ctx context.Context, alert models.CriticalAlert, level int) ([]string, error)
}

func (f fakeAlertStore) CreateAlert(ctx context.Context, alert models.CriticalAlert) (string, error) {
	return "", nil
}

func (f fakeAlertStore) GetAlert(ctx context.Context, alertID string) (models.CriticalAlert, bool, error) {
	return models.CriticalAlert{}, false, nil
}

func (f fakeAlertStore) ListUnacknowledged(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, sentBefore)
}

func (f fakeAlertStore) EscalateAlert(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error) {
	if f.escalateFn == nil {
		return true, nil
	}
	return f.escalateFn(ctx, alertID, toLevel, escalatedAt)
}

func (f fakeAlertStore) AcknowledgeAlert(ctx context.Context, alertID, acknowledgedBy, actionTaken string, at time.Time) error {
	return nil
}

func (f fakeAlertStore) GetAlertRecipients(ctx context.Context, alert models.CriticalAlert, level int) ([]string, error) {
	if f.recipientsFn == nil {
		return nil, nil
	}
	return f.recipientsFn(ctx, alert, level)
}

type fakeNotifSink struct {
	inserted []models.Notification
}

func (f *fakeNotifSink) InsertNotification(ctx context.Context, notification models.Notification) (string, error) {
	f.inserted = append(f.inserted, notification)
	return notification.NotificationID, nil
}

func (f *fakeNotifSink) GetNotification(ctx context.Context, notificationID string) (models.Notification, bool, error) {
	return models.Notification{}, false, nil
}

func (f *fakeNotifSink) ClaimPending(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	return nil, nil
}

func (f *fakeNotifSink) MarkSent(ctx context.Context, notificationID, providerMessageID string, sentAt time.Time) error {
	return nil
}

func (f *fakeNotifSink) MarkDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error {
	return nil
}

func (f *fakeNotifSink) MarkFailed(ctx context.Context, notificationID, lastError string) (string, error) {
	return "", nil
}

func (f *fakeNotifSink) GetContact(ctx context.Context, recipientID string) (models.Contact, error) {
	return models.Contact{}, nil
}

func (f *fakeNotifSink) InsertInAppMessage(ctx context.Context, recipientID, title, message string) error {
	return nil
}

func (f *fakeNotifSink) GetLastOffset(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (f *fakeNotifSink) UpdateOffset(ctx context.Context, value time.Time) error { return nil }

func alertAt(level int, age time.Duration, now time.Time) store.EscalatableAlert {
	return store.EscalatableAlert{
		CriticalAlert: models.CriticalAlert{
			AlertID:         "a-1",
			PatientID:       "P-001",
			PhysicianID:     "D-001",
			DepartmentID:    "CRD",
			Summary:         "Kalium 6.8 mmol/L [HH]",
			EscalationLevel: level,
		},
		SentAt: now.Add(-age),
	}
}

func TestEscalateLevelOneNotifiesPhysician(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	var escalatedTo int
	alerts := fakeAlertStore{
		listFn: func(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error) {
			return []store.EscalatableAlert{alertAt(0, 6*time.Minute, now)}, nil
		},
		escalateFn: func(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error) {
			escalatedTo = toLevel
			return true, nil
		},
		recipientsFn: func(ctx context.Context, alert models.CriticalAlert, level int) ([]string, error) {
			return []string{alert.PhysicianID}, nil
		},
	}
	sink := &fakeNotifSink{}

	engine := New(alerts, sink, Config{})
	engine.now = func() time.Time { return now }
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if escalatedTo != 1 {
		t.Fatalf("escalated to level %d, want 1", escalatedTo)
	}
	if len(sink.inserted) != 2 {
		t.Fatalf("inserted %d notifications, want 2 (sms+push)", len(sink.inserted))
	}
	channels := map[string]bool{}
	for _, n := range sink.inserted {
		channels[n.Channel] = true
		if n.RecipientID != "D-001" {
			t.Fatalf("recipient=%q, want physician", n.RecipientID)
		}
		if n.Priority != models.NotifyUrgent {
			t.Fatalf("priority=%q, want urgent", n.Priority)
		}
	}
	if !channels[models.ChannelSMS] || !channels[models.ChannelPush] || channels[models.ChannelEmail] {
		t.Fatalf("channels=%v, want sms+push only", channels)
	}
}

func TestEscalateLevelTwoAddsEmail(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	alerts := fakeAlertStore{
		listFn: func(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error) {
			return []store.EscalatableAlert{alertAt(1, 20*time.Minute, now)}, nil
		},
		recipientsFn: func(ctx context.Context, alert models.CriticalAlert, level int) ([]string, error) {
			return []string{"head-1", "head-2"}, nil
		},
	}
	sink := &fakeNotifSink{}

	engine := New(alerts, sink, Config{})
	engine.now = func() time.Time { return now }
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Two heads, three channels each.
	if len(sink.inserted) != 6 {
		t.Fatalf("inserted %d notifications, want 6", len(sink.inserted))
	}
	var emails int
	for _, n := range sink.inserted {
		if n.Channel == models.ChannelEmail {
			emails++
		}
	}
	if emails != 2 {
		t.Fatalf("emails=%d, want 2", emails)
	}
}

func TestEscalateWaitsForLadderDelay(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	alerts := fakeAlertStore{
		listFn: func(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error) {
			// Level 1 escalates at 15 minutes; 10 is too early.
			return []store.EscalatableAlert{alertAt(1, 10*time.Minute, now)}, nil
		},
		escalateFn: func(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error) {
			t.Fatalf("unexpected escalation to level %d", toLevel)
			return false, nil
		},
	}
	sink := &fakeNotifSink{}

	engine := New(alerts, sink, Config{})
	engine.now = func() time.Time { return now }
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.inserted) != 0 {
		t.Fatalf("inserted %d notifications, want 0", len(sink.inserted))
	}
}

func TestEscalateStopsAtMaxLevel(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	alerts := fakeAlertStore{
		listFn: func(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error) {
			return []store.EscalatableAlert{alertAt(models.MaxEscalationLevel, 2*time.Hour, now)}, nil
		},
		escalateFn: func(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error) {
			t.Fatalf("unexpected escalation past max level")
			return false, nil
		},
	}
	sink := &fakeNotifSink{}

	engine := New(alerts, sink, Config{})
	engine.now = func() time.Time { return now }
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.inserted) != 0 {
		t.Fatalf("inserted %d notifications, want 0", len(sink.inserted))
	}
}

func TestEscalateSkipsWhenGuardLoses(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	alerts := fakeAlertStore{
		listFn: func(ctx context.Context, sentBefore time.Time) ([]store.EscalatableAlert, error) {
			return []store.EscalatableAlert{alertAt(0, 6*time.Minute, now)}, nil
		},
		escalateFn: func(ctx context.Context, alertID string, toLevel int, escalatedAt time.Time) (bool, error) {
			// Another worker or an acknowledgment won the race.
			return false, nil
		},
		recipientsFn: func(ctx context.Context, alert models.CriticalAlert, level int) ([]string, error) {
			t.Fatal("recipients should not be resolved when the guard loses")
			return nil, nil
		},
	}
	sink := &fakeNotifSink{}

	engine := New(alerts, sink, Config{})
	engine.now = func() time.Time { return now }
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.inserted) != 0 {
		t.Fatalf("inserted %d notifications, want 0", len(sink.inserted))
	}
}
