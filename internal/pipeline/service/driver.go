package service

import (
	"context"
	"time"

	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/logger"
)

// StepRunner executes a single pipeline step.
type StepRunner interface {
	RunStep(ctx context.Context, req domain.StepRequest) (domain.StepResult, error)
}

// RunReport summarizes a driven run.
type RunReport struct {
	RunID    string
	Steps    int
	Duration time.Duration
	Last     domain.StepResult
}

// Driver runs every step of a run in-process, one after another.
type Driver struct {
	runner StepRunner
	log    *logger.Logger
}

// NewDriver creates a synchronous driver.
func NewDriver(runner StepRunner, log *logger.Logger) *Driver {
	return &Driver{runner: runner, log: log}
}

// Run starts a run with runID (empty for a fresh token) and loops until the
// dashboard is published or a step fails.
func (d *Driver) Run(ctx context.Context, runID string) (RunReport, error) {
	started := time.Now()
	req := domain.StepRequest{Step: domain.StepOpportunities, RunID: runID}
	report := RunReport{RunID: runID}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, err := d.runner.RunStep(ctx, req)
		if err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
		report.Steps++
		report.RunID = result.RunID
		report.Last = result

		next, ok := result.NextRequest()
		if !ok {
			break
		}
		req = next
	}

	report.Duration = time.Since(started)
	d.log.Info("pipeline: run complete", "runId", report.RunID, "steps", report.Steps, "duration", report.Duration.String())
	return report, nil
}
