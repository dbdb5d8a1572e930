package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/antoniostano/innervoice/internal/bot"
	"github.com/antoniostano/innervoice/internal/chat"
	"github.com/antoniostano/innervoice/internal/config"
	"github.com/antoniostano/innervoice/internal/httpapi"
	"github.com/antoniostano/innervoice/internal/inference"
	"github.com/antoniostano/innervoice/internal/media"
	"github.com/antoniostano/innervoice/internal/observability"
	"github.com/antoniostano/innervoice/internal/pipeline"
	"github.com/antoniostano/innervoice/internal/prefs"
	"github.com/antoniostano/innervoice/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(256)

	ctx := context.Background()
	prefsStore, err := prefs.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("prefs store init failed: %v", err)
	}
	defer prefsStore.Close()

	messenger := chat.NewRelayMessenger(cfg.ChatRelayURL, cfg.ChatTimeout)
	sender := chat.NewSafeSender(messenger, cfg.ChatTimeout)
	sender.SetErrorHook(func(op string) {
		metrics.DeliveryErrors.WithLabelValues(op).Inc()
	})

	jobs := queue.New()
	guard := queue.NewDuplicateGuard(cfg.DuplicateCooldown, cfg.DuplicateMaxAge)
	pending := queue.NewPendingRetryStore()
	bus := pipeline.NewEventBus(500)

	inferClient := inference.NewClient(cfg.WhisperAPIURL, cfg.WhisperTimeout, cfg.WhisperRetries)

	worker := pipeline.NewWorker(cfg, pipeline.Deps{
		Queue:    jobs,
		Guard:    guard,
		Pending:  pending,
		Prefs:    prefsStore,
		Infer:    inferClient,
		Media:    media.NewTool(),
		Sender:   sender,
		Metrics:  metrics,
		Stages:   stages,
		Bus:      bus,
		Progress: pipeline.NewProgressReporter(sender, bus),
	})

	gateway := bot.NewGateway(bot.GatewayDeps{
		AudioDir: cfg.AudioDir,
		Queue:    jobs,
		Guard:    guard,
		Pending:  pending,
		Prefs:    prefsStore,
		Sender:   sender,
		Bus:      bus,
		Metrics:  metrics,
	})

	api := httpapi.New(cfg, gateway, jobs, bus, stages)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go worker.Run(runCtx)

	go func() {
		log.Printf("pipeline listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
