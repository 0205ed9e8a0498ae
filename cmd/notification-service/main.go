package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rebekz/simrs/internal/config"
	"github.com/rebekz/simrs/internal/escalate"
	"github.com/rebekz/simrs/internal/notify"
	"github.com/rebekz/simrs/internal/store/postgres"
	"github.com/rebekz/simrs/internal/telemetry"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("notification-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool, postgres.Options{
		DefaultServiceMinutes: cfg.DefaultServiceMinutes,
	})

	registry := buildRegistry(cfg, store)
	dispatcher := notify.NewDispatcher(store, registry, notify.DispatcherConfig{
		BatchSize: cfg.DispatchBatchSize,
	})
	producer := notify.NewProducer(store, store, notify.ProducerConfig{
		BatchSize: cfg.ProducerBatchSize,
	})
	reminders := notify.NewReminderWorker(store, store, notify.ReminderConfig{
		BatchSize:  cfg.ReminderBatchSize,
		MaxRetries: cfg.ReminderMaxRetries,
	})
	escalator := escalate.New(store, store, escalate.Config{
		BatchSize: cfg.EscalateBatchSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go notify.Start(ctx, cfg.DispatchInterval, "dispatch", dispatcher.Run)
	go notify.Start(ctx, cfg.ProducerInterval, "produce", producer.Run)
	go notify.Start(ctx, cfg.ReminderInterval, "reminder", reminders.Run)
	go notify.Start(ctx, cfg.EscalateInterval, "escalate", escalator.Run)

	log.Printf("notification-service running channels=%v", registry.Channels())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
}

func buildRegistry(cfg config.Config, store *postgres.Store) *notify.Registry {
	var providers []notify.Provider
	if cfg.SMSAPIURL != "" {
		providers = append(providers, notify.NewSMSProvider(cfg.SMSAPIURL, cfg.SMSFrom, cfg.SMSToken, cfg.ProviderTimeout))
	}
	if cfg.SMTPHost != "" {
		providers = append(providers, notify.NewEmailProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom))
	}
	if cfg.PushAPIURL != "" {
		providers = append(providers, notify.NewPushProvider(cfg.PushAPIURL, cfg.PushServerKey, cfg.ProviderTimeout))
	}
	if cfg.WhatsAppAPIURL != "" {
		providers = append(providers, notify.NewWhatsAppProvider(cfg.WhatsAppAPIURL, cfg.WhatsAppPhoneID, cfg.WhatsAppToken, cfg.ProviderTimeout))
	}
	providers = append(providers, notify.NewInAppProvider(store))

	if cfg.ProviderRetryEnabled {
		for i, provider := range providers {
			providers[i] = notify.WithRetry(provider)
		}
	}
	return notify.NewRegistry(providers...)
}
