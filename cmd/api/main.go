package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lead_triage_backend/internal/auth"
	"lead_triage_backend/internal/email"
	"lead_triage_backend/internal/events"
	apphttp "lead_triage_backend/internal/http"
	"lead_triage_backend/internal/http/router"
	"lead_triage_backend/internal/notification"
	"lead_triage_backend/internal/notification/sse"
	"lead_triage_backend/internal/pipeline"
	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/scheduler"
	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"
	"lead_triage_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var backend *checkpoint.Backend
	if err := withRetry(ctx, log, "checkpoint store", 5, 2*time.Second, func() error {
		b, err := checkpoint.Open(ctx, cfg, log)
		if err != nil {
			return err
		}
		backend = b
		return nil
	}); err != nil {
		log.Error("failed to open checkpoint store", "error", err)
		panic("failed to open checkpoint store: " + err.Error())
	}
	defer backend.Close()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	stream := sse.New(log)
	defer stream.Close()
	notificationModule := notification.New(email.NewSender(cfg), cfg.GetAlertEmailTo(), stream, log)
	notificationModule.RegisterHandlers(eventBus)

	pipelineModule, err := pipeline.NewModule(cfg, backend.Store, backend.Locker, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize pipeline module", "error", err)
		panic("failed to initialize pipeline module: " + err.Error())
	}

	if closeChainer := initChainer(cfg, pipelineModule, log); closeChainer != nil {
		defer closeChainer()
	}

	authModule := auth.NewModule(cfg, val, !strings.EqualFold(cfg.Env, "development"), log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: backend,
		Modules: []apphttp.Module{
			authModule,
			pipelineModule,
			notificationModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stream.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initChainer routes refresh and cron through the task queue when chaining
// is enabled. Without it runs are driven in-process.
func initChainer(cfg *config.Config, module *pipeline.Module, log *logger.Logger) func() {
	if !cfg.GetPipelineChainEnabled() {
		log.Info("pipeline chaining disabled; runs are driven in-process")
		return nil
	}

	client, err := scheduler.NewClient(cfg, log)
	if err != nil {
		log.Error("failed to initialize scheduler client; runs are driven in-process", "error", err)
		return nil
	}
	module.SetChainer(client)
	log.Info("pipeline chaining enabled", "queue", cfg.GetAsynqQueueName())

	return func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
