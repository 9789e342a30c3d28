package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/johnagius/eikon-eod/internal/api"
	"github.com/johnagius/eikon-eod/internal/config"
	"github.com/johnagius/eikon-eod/internal/kv"
	kvmemory "github.com/johnagius/eikon-eod/internal/kv/memory"
	kvpostgres "github.com/johnagius/eikon-eod/internal/kv/postgres"
	"github.com/johnagius/eikon-eod/internal/scheduler"
	"github.com/johnagius/eikon-eod/internal/service"
	"github.com/johnagius/eikon-eod/internal/store"
	"github.com/johnagius/eikon-eod/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()

	// Backend selection: Postgres when DB_SOURCE is set, otherwise the
	// in-process store (single-device mode).
	var backend kv.Backend
	if cfg.DBSource != "" {
		pg, err := kvpostgres.New(context.Background(), cfg.DBSource)
		if err != nil {
			baseLogger.Fatal("unable to connect to database", zap.Error(err))
		}
		defer pg.Close()
		backend = pg
		baseLogger.Info("using postgres backend")
	} else {
		backend = kvmemory.New()
		baseLogger.Warn("DB_SOURCE not set, using in-memory backend")
	}

	records := store.NewRecordStore(backend, logger.Named(baseLogger, "store.records"))
	ledger := store.NewAuditLedger(backend, logger.Named(baseLogger, "store.ledger"))
	contacts := store.NewContactStore(backend, logger.Named(baseLogger, "store.contacts"))

	lifecycle := service.NewLifecycle(records, ledger, contacts, cfg.UnlockSecret, logger.Named(baseLogger, "svc.lifecycle"))
	reporting := service.NewReporting(records, ledger, logger.Named(baseLogger, "svc.reporting"))
	handler := api.NewHandler(lifecycle, reporting, ledger, contacts, logger.Named(baseLogger, "api"))

	sweeper := scheduler.New(records, cfg.Locations, cfg.SweepSchedule, logger.Named(baseLogger, "scheduler"))
	sweeper.Start()
	defer sweeper.Stop()

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Register(r.PathPrefix("/api/v1").Subrouter())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
