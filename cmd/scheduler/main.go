package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_triage_backend/internal/email"
	"lead_triage_backend/internal/events"
	"lead_triage_backend/internal/notification"
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

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	notificationModule := notification.New(email.NewSender(cfg), cfg.GetAlertEmailTo(), nil, log)
	notificationModule.RegisterHandlers(eventBus)

	pipelineModule, err := pipeline.NewModule(cfg, backend.Store, backend.Locker, eventBus, validator.New(), log)
	if err != nil {
		log.Error("failed to initialize pipeline module", "error", err)
		panic("failed to initialize pipeline module: " + err.Error())
	}

	client, err := scheduler.NewClient(cfg, log)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	pipelineModule.SetChainer(client)

	if cfg.GetPipelineDailyCron() != "" {
		periodic, err := scheduler.NewPeriodic(cfg, log)
		if err != nil {
			log.Error("failed to initialize daily trigger", "error", err)
			panic("failed to initialize daily trigger: " + err.Error())
		}
		go periodic.Run(ctx)
	} else {
		log.Warn("PIPELINE_DAILY_CRON not configured; daily trigger disabled")
	}

	worker, err := scheduler.NewWorker(
		cfg,
		scheduler.NewStepHandler(pipelineModule.Orchestrator(), client, log),
		scheduler.NewDailyHandler(pipelineModule.Launcher(), log),
		log,
	)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
