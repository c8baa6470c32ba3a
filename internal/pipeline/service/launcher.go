package service

import (
	"context"

	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/logger"
)

// Chainer enqueues a step for asynchronous execution.
type Chainer interface {
	EnqueueStep(ctx context.Context, req domain.StepRequest) error
}

// Launch modes reported to callers.
const (
	LaunchQueued     = "queued"
	LaunchBackground = "background"
)

// Launch describes a started run.
type Launch struct {
	RunID string `json:"runId"`
	Mode  string `json:"mode"`
}

// Launcher starts runs for refresh and cron triggers. With a chainer the
// first step is enqueued; without one the driver runs in the background.
type Launcher struct {
	orchestrator *Orchestrator
	driver       *Driver
	chain        Chainer
	log          *logger.Logger
}

// NewLauncher creates a launcher. chain may be nil.
func NewLauncher(orchestrator *Orchestrator, chain Chainer, log *logger.Logger) *Launcher {
	return &Launcher{
		orchestrator: orchestrator,
		driver:       NewDriver(orchestrator, log),
		chain:        chain,
		log:          log,
	}
}

// SetChainer routes new runs through the task queue.
func (l *Launcher) SetChainer(chain Chainer) {
	l.chain = chain
}

// Start kicks off a new run and returns without waiting for it.
func (l *Launcher) Start(ctx context.Context) (Launch, error) {
	runID := l.orchestrator.NewRunID()

	if l.chain != nil {
		req := domain.StepRequest{Step: domain.StepOpportunities, RunID: runID}
		if err := l.chain.EnqueueStep(ctx, req); err != nil {
			return Launch{}, err
		}
		l.log.Info("pipeline: run queued", "runId", runID)
		return Launch{RunID: runID, Mode: LaunchQueued}, nil
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := l.driver.Run(bg, runID); err != nil {
			l.log.Error("pipeline: background run failed", "runId", runID, "error", err)
		}
	}()
	l.log.Info("pipeline: run started in background", "runId", runID)
	return Launch{RunID: runID, Mode: LaunchBackground}, nil
}
