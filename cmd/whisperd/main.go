package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/antoniostano/innervoice/internal/config"
	"github.com/antoniostano/innervoice/internal/observability"
	"github.com/antoniostano/innervoice/internal/whisperd"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewServerMetrics(cfg.MetricsNamespace)
	probe := whisperd.NewProbe()

	factory := func(context.Context) (whisperd.Engine, error) {
		return whisperd.StartServerEngine(cfg.WhisperServerBin, cfg.ModelPath, cfg.Language)
	}
	manager := whisperd.NewManager(factory, cfg.IdleUnload, metrics)
	defer manager.Close()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go manager.Watch(runCtx, cfg.IdleCheckInterval)

	if cfg.Preload {
		log.Printf("MODEL_PRELOAD=true: loading model at startup")
		if _, err := manager.Engine(runCtx); err != nil {
			log.Printf("model preload failed: %v", err)
		}
	}

	srv := whisperd.NewServer(cfg, manager, probe, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: srv.Router(),
	}

	go func() {
		log.Printf("whisperd listening on %s (model %s)", cfg.BindAddr, cfg.Model)
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
