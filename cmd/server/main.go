package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/config"
	"github.com/dandantas/pijob/internal/database"
	"github.com/dandantas/pijob/internal/handler"
	"github.com/dandantas/pijob/internal/progress"
	"github.com/dandantas/pijob/internal/scheduler"
	"github.com/dandantas/pijob/internal/service"
	"github.com/dandantas/pijob/internal/webhook"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	config.InitLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()
	if err != nil {
		slog.Error("pijob service failed", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the listener fails. Every resource
// opened here is released before it returns.
func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	series, err := compute.SeriesByName(cfg.DefaultSeries)
	if err != nil {
		return errors.Wrap(err, "invalid DEFAULT_SERIES")
	}

	slog.Info("Starting pijob service", "version", version)

	history, pinger, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	manager := service.NewRunManager(managerConfig(cfg, series), history)

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		entries, err := scheduler.ParseEntries(cfg.ScheduledRuns)
		if err != nil {
			return errors.Wrap(err, "invalid SCHEDULED_RUNS")
		}
		if sched, err = scheduler.NewScheduler(entries, manager); err != nil {
			return errors.Wrap(err, "failed to create scheduler")
		}
	}

	router := handler.NewRouter(
		handler.NewRunHandler(manager),
		handler.NewHistoryHandler(service.NewHistoryService(history)),
		handler.NewHealthHandler(pinger, manager, version),
	)
	server := &http.Server{
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	listener, err := net.Listen("tcp", ":"+cfg.HTTPPort)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %s", cfg.HTTPPort)
	}

	if sched != nil {
		sched.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal, initiating graceful shutdown")
	case err = <-serveErr:
		err = errors.Wrap(err, "HTTP server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop triggering new runs before cancelling the live ones
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if serr := manager.Shutdown(shutdownCtx); serr != nil {
		slog.Error("Run manager shutdown error", "error", serr)
	}
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		slog.Error("HTTP server shutdown error", "error", serr)
	}

	slog.Info("pijob service stopped")
	return err
}

// openHistory returns the run history store, MongoDB when configured and
// memory otherwise, plus the func releasing it.
func openHistory(ctx context.Context, cfg *config.Config) (service.HistoryStore, handler.Pinger, func(), error) {
	if cfg.MongoURI == "" {
		slog.Warn("MONGO_URI not set, run history is kept in memory")
		return database.NewMemoryRunRepository(), nil, func() {}, nil
	}

	db, err := database.Connect(ctx, database.MongoConfig{
		URI:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		Timeout:     cfg.MongoTimeout,
		MaxPoolSize: uint64(cfg.MongoMaxPool),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoTimeout)
		defer cancel()
		if err := db.Disconnect(ctx); err != nil {
			slog.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}

	if err := database.CreateIndexes(ctx, db); err != nil {
		closeDB()
		return nil, nil, nil, errors.Wrap(err, "failed to create indexes")
	}
	return database.NewRunRepository(db), db, closeDB, nil
}

func managerConfig(cfg *config.Config, series compute.Series) service.ManagerConfig {
	metrics := progress.NewMetricsSink()
	mc := service.ManagerConfig{
		Interval:        cfg.StepInterval,
		Series:          series,
		MaxConcurrent:   cfg.MaxConcurrentRuns,
		ProgressBuffer:  cfg.ProgressBuffer,
		StatusRetention: cfg.StatusRetention,
		Sinks: []compute.ProgressSink{
			progress.NewLogSink(slog.Default(), slog.LevelDebug),
			metrics,
		},
		Outcomes:      metrics,
		NotifyEvery:   cfg.WebhookNotifyEvery,
		NotifyTimeout: cfg.WebhookTimeout,
	}
	if cfg.WebhookURL != "" {
		retry := webhook.DefaultRetryPolicy()
		retry.MaxAttempts = cfg.WebhookMaxAttempts
		mc.Notifier = webhook.NewDispatcher(webhook.Config{
			URL:     cfg.WebhookURL,
			Timeout: cfg.WebhookTimeout,
			Retry:   retry,
			Breaker: webhook.DefaultBreakerConfig(),
		})
		slog.Info("Webhook notifications enabled", "url", cfg.WebhookURL, "notify_every", cfg.WebhookNotifyEvery)
	}
	return mc
}
