// Command pipeline-run drives one full pipeline run in-process and prints
// the resulting dashboard summary. It exits non-zero when any step fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"lead_triage_backend/internal/email"
	"lead_triage_backend/internal/events"
	"lead_triage_backend/internal/notification"
	"lead_triage_backend/internal/pipeline"
	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/internal/pipeline/service"
	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"
	"lead_triage_backend/platform/validator"
)

func main() {
	runID := flag.String("run-id", "", "run token to use (default: a fresh one)")
	timeout := flag.Duration("timeout", 30*time.Minute, "abort the run after this long")
	flag.Parse()

	if err := run(*runID, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "pipeline-run:", err)
		os.Exit(1)
	}
}

func run(runID string, timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var backend *checkpoint.Backend
	if err := withRetry(ctx, log, "checkpoint store", 3, 2*time.Second, func() error {
		b, err := checkpoint.Open(ctx, cfg, log)
		if err != nil {
			return err
		}
		backend = b
		return nil
	}); err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer backend.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	notificationModule := notification.New(email.NewSender(cfg), cfg.GetAlertEmailTo(), nil, log)
	notificationModule.RegisterHandlers(eventBus)

	module, err := pipeline.NewModule(cfg, backend.Store, backend.Locker, eventBus, validator.New(), log)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	report, err := service.NewDriver(module.Orchestrator(), log).Run(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run %s failed after %d steps (%s)\n", report.RunID, report.Steps, report.Duration.Round(time.Millisecond))
		return err
	}

	dash, err := module.Actions().Dashboard(ctx)
	if err != nil {
		return fmt.Errorf("read dashboard: %w", err)
	}
	printSummary(report, dash)
	return nil
}

func printSummary(report service.RunReport, dash domain.Dashboard) {
	fmt.Printf("run %s complete: %d steps in %s\n", report.RunID, report.Steps, report.Duration.Round(time.Millisecond))
	fmt.Printf("  actions:   %d\n", len(dash.Actions))
	fmt.Printf("  no action: %d\n", len(dash.NoAction))

	stages := make([]string, 0, len(dash.InactiveSummary))
	for stage := range dash.InactiveSummary {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Printf("  inactive %s: %d\n", stage, dash.InactiveSummary[stage])
	}
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
