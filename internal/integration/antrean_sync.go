package integration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rebekz/simrs/internal/bpjs"
	"github.com/rebekz/simrs/internal/models"
	"github.com/rebekz/simrs/internal/store"
)

// Transmission kinds queued by the ticket flow.
const (
	KindAdd          = "antrean_add"
	KindCheckIn      = "antrean_checkin"
	KindCalled       = "antrean_called"
	KindServiceStart = "antrean_service_start"
	KindServiceDone  = "antrean_service_done"
	KindCancel       = "antrean_cancel"
)

// AntreanSync drains pending BPJS transmissions and reports queue milestones
// upstream. Rows claimed as running are completed or failed with bounded
// retries; a retryable failure re-queues the row for the next pass.
type AntreanSync struct {
	integrations store.IntegrationStore
	tickets      store.TicketStore
	antrean      *bpjs.Antrean
	batchSize    int
	maxRetries   int
	now          func() time.Time
}

type AntreanSyncConfig struct {
	BatchSize  int
	MaxRetries int
}

func NewAntreanSync(integrations store.IntegrationStore, tickets store.TicketStore, antrean *bpjs.Antrean, cfg AntreanSyncConfig) *AntreanSync {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AntreanSync{
		integrations: integrations,
		tickets:      tickets,
		antrean:      antrean,
		batchSize:    batch,
		maxRetries:   maxRetries,
		now:          time.Now,
	}
}

func (s *AntreanSync) Run(ctx context.Context) error {
	transmissions, err := s.integrations.ClaimPendingTransmissions(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for _, transmission := range transmissions {
		if err := s.transmit(ctx, transmission); err != nil {
			status, failErr := s.integrations.FailTransmission(ctx, transmission.TransmissionID, s.maxRetries, err.Error())
			if failErr != nil {
				log.Printf("antrean fail error: transmission_id=%s err=%v", transmission.TransmissionID, failErr)
				continue
			}
			if status == models.TransmissionFailed {
				log.Printf("antrean transmission exhausted retries: transmission_id=%s kind=%s",
					transmission.TransmissionID, transmission.Kind)
			}
			continue
		}
		if err := s.integrations.CompleteTransmission(ctx, transmission.TransmissionID, s.now().UTC()); err != nil {
			log.Printf("antrean complete error: transmission_id=%s err=%v", transmission.TransmissionID, err)
		}
	}
	return nil
}

func (s *AntreanSync) transmit(ctx context.Context, transmission models.BPJSTransmission) error {
	ticket, found, err := s.tickets.GetTicket(ctx, transmission.TicketID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("ticket %s not found", transmission.TicketID)
	}

	switch transmission.Kind {
	case KindAdd:
		return s.antrean.Add(ctx, bpjs.AddAntreanRequest{
			KodeBooking:      ticket.TicketID,
			JenisPasien:      "JKN",
			KodePoli:         ticket.DepartmentID,
			TanggalPeriksa:   ticket.QueueDate.Format("2006-01-02"),
			NomorAntrean:     ticket.TicketNumber,
			AngkaAntrean:     ticket.QueuePosition,
			EstimasiDilayani: ticket.IssuedAt.Add(time.Duration(ticket.EstimatedWaitMinutes) * time.Minute).UnixMilli(),
		})
	case KindCheckIn:
		return s.antrean.UpdateTask(ctx, ticket.TicketID, bpjs.TaskCheckIn, ticket.IssuedAt)
	case KindCalled:
		return s.antrean.UpdateTask(ctx, ticket.TicketID, bpjs.TaskCalled, stamp(ticket.CalledAt, s.now()))
	case KindServiceStart:
		return s.antrean.UpdateTask(ctx, ticket.TicketID, bpjs.TaskServiceStart, stamp(ticket.ServiceStartedAt, s.now()))
	case KindServiceDone:
		return s.antrean.UpdateTask(ctx, ticket.TicketID, bpjs.TaskServiceDone, stamp(ticket.ServiceCompletedAt, s.now()))
	case KindCancel:
		return s.antrean.Cancel(ctx, ticket.TicketID, "dibatalkan oleh pasien")
	default:
		return fmt.Errorf("unknown transmission kind %s", transmission.Kind)
	}
}

func stamp(at *time.Time, fallback time.Time) time.Time {
	if at != nil {
		return *at
	}
	return fallback.UTC()
}
