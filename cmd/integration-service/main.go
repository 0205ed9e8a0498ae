package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rebekz/simrs/internal/bpjs"
	"github.com/rebekz/simrs/internal/config"
	"github.com/rebekz/simrs/internal/httpapi"
	"github.com/rebekz/simrs/internal/integration"
	"github.com/rebekz/simrs/internal/notify"
	"github.com/rebekz/simrs/internal/store/postgres"
	"github.com/rebekz/simrs/internal/telemetry"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("integration-service")
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

	gateway := integration.NewGateway(store, store, store)

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/hl7", gateway)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(mux), "integration-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("integration-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.BPJSBaseURL != "" {
		client := bpjs.NewClient(bpjs.Config{
			BaseURL:    cfg.BPJSBaseURL,
			ConsID:     cfg.BPJSConsID,
			SecretKey:  cfg.BPJSSecretKey,
			UserKey:    cfg.BPJSUserKey,
			MaxRetries: cfg.BPJSMaxRetries,
		})
		sync := integration.NewAntreanSync(store, store, bpjs.NewAntrean(client), integration.AntreanSyncConfig{
			BatchSize:  cfg.SyncBatchSize,
			MaxRetries: cfg.SyncMaxRetries,
		})
		go notify.Start(ctx, cfg.SyncInterval, "antrean-sync", sync.Run)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
