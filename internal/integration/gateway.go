package integration

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rebekz/simrs/internal/hl7"
	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

const maxHL7Bytes = 1 << 20

// criticalFlags are the OBX-8 abnormal flags that open a critical alert.
var criticalFlags = map[string]bool{"HH": true, "LL": true, "AA": true}

// Gateway receives HL7 v2 messages over HTTP, persists them, opens critical
// alerts for flagged ORU results, and answers with an ACK or NAK.
type Gateway struct {
	integrations store.IntegrationStore
	alerts       store.AlertStore
	notifs       store.NotificationStore
	now          func() time.Time
}

func NewGateway(integrations store.IntegrationStore, alerts store.AlertStore, notifs store.NotificationStore) *Gateway {
	return &Gateway{
		integrations: integrations,
		alerts:       alerts,
		notifs:       notifs,
		now:          time.Now,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxHL7Bytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ack := g.Handle(r.Context(), string(raw))
	w.Header().Set("Content-Type", "x-application/hl7-v2+er7")
	_, _ = w.Write([]byte(ack))
}

// Handle processes one raw message and returns the acknowledgment to send
// back. Parse failures produce an AR NAK; processing failures an AE NAK.
func (g *Gateway) Handle(ctx context.Context, raw string) string {
	now := g.now().UTC()
	msg, err := hl7.Parse(raw)
	if err != nil {
		return hl7.BuildAck(hl7.Message{}, hl7.AckReject, err.Error(), now)
	}

	record := models.HL7Message{
		MessageID:        uuid.NewString(),
		MessageType:      msg.MessageType(),
		MessageControlID: msg.ControlID(),
		SendingApp:       msg.SendingApp(),
		SendingFacility:  msg.SendingFacility(),
		PatientID:        patientID(msg),
		RawMessage:       []byte(raw),
		Status:           models.HL7Pending,
		CreatedAt:        now,
	}
	if err := g.integrations.InsertHL7Message(ctx, record); err != nil {
		return hl7.BuildAck(msg, hl7.AckError, "persist failed", now)
	}

	if err := g.process(ctx, msg); err != nil {
		if markErr := g.integrations.MarkHL7Failed(ctx, record.MessageID, err.Error()); markErr != nil {
			log.Printf("hl7 mark failed error: message_id=%s err=%v", record.MessageID, markErr)
		}
		return hl7.BuildAck(msg, hl7.AckError, err.Error(), now)
	}

	if err := g.integrations.MarkHL7Processed(ctx, record.MessageID, hl7.AckAccept, now); err != nil {
		log.Printf("hl7 mark processed error: message_id=%s err=%v", record.MessageID, err)
	}
	return hl7.BuildAck(msg, hl7.AckAccept, "", now)
}

func (g *Gateway) process(ctx context.Context, msg hl7.Message) error {
	if strings.HasPrefix(msg.MessageType(), "ORU") {
		return g.processResults(ctx, msg)
	}
	// ADT and order messages are persisted for audit only.
	return nil
}

// processResults opens one critical alert per flagged OBX and pages the
// ordering physician immediately.
func (g *Gateway) processResults(ctx context.Context, msg hl7.Message) error {
	patient := patientID(msg)
	physician := orderingPhysician(msg)
	now := g.now().UTC()

	for _, obx := range msg.AllSegments("OBX") {
		flag := obx.Field(8)
		if !criticalFlags[flag] {
			continue
		}
		summary := hl7.Component(obx.Field(3), 2)
		if summary == "" {
			summary = hl7.Component(obx.Field(3), 1)
		}
		value := obx.Field(5)
		units := hl7.Component(obx.Field(6), 1)

		notificationID, err := g.notifs.InsertNotification(ctx, models.Notification{
			RecipientID: physician,
			Type:        models.TypeCriticalAlert,
			Channel:     models.ChannelSMS,
			Priority:    models.NotifyUrgent,
			Title:       "Nilai kritis",
			Message:     criticalSummary(summary, value, units, flag),
			ScheduledAt: now,
		})
		if err != nil {
			return err
		}

		_, err = g.alerts.CreateAlert(ctx, models.CriticalAlert{
			AlertID:        uuid.NewString(),
			NotificationID: notificationID,
			PatientID:      patient,
			PhysicianID:    physician,
			DepartmentID:   departmentID(msg),
			Summary:        criticalSummary(summary, value, units, flag),
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func criticalSummary(test, value, units, flag string) string {
	parts := []string{test, value}
	if units != "" {
		parts = append(parts, units)
	}
	return strings.Join(parts, " ") + " [" + flag + "]"
}

func patientID(msg hl7.Message) string {
	pid, ok := msg.Segment("PID")
	if !ok {
		return ""
	}
	return hl7.Component(pid.Field(3), 1)
}

func orderingPhysician(msg hl7.Message) string {
	if orc, ok := msg.Segment("ORC"); ok {
		if id := hl7.Component(orc.Field(12), 1); id != "" {
			return id
		}
	}
	if obr, ok := msg.Segment("OBR"); ok {
		return hl7.Component(obr.Field(16), 1)
	}
	return ""
}

func departmentID(msg hl7.Message) string {
	pv1, ok := msg.Segment("PV1")
	if !ok {
		return ""
	}
	return hl7.Component(pv1.Field(3), 1)
}
