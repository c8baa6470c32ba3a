package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/pipeline/service"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// busyRetryDelay spaces out retries while another step holds the lease.
const busyRetryDelay = 15 * time.Second

// StepHandler runs one pipeline step per task and enqueues the next one.
type StepHandler struct {
	runner service.StepRunner
	chain  service.Chainer
	log    *logger.Logger
}

func NewStepHandler(runner service.StepRunner, chain service.Chainer, log *logger.Logger) *StepHandler {
	return &StepHandler{runner: runner, chain: chain, log: log}
}

func (h *StepHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePipelineStepPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	req, err := payload.Request()
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	result, err := h.runner.RunStep(ctx, req)
	if err != nil {
		if retryable(err) {
			return err
		}
		h.log.Warn("scheduler: dropping pipeline step", "taskId", StepTaskID(req), "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	next, ok := result.NextRequest()
	if !ok {
		h.log.Info("scheduler: pipeline run finished", "runId", req.RunID)
		return nil
	}
	return h.chain.EnqueueStep(ctx, next)
}

// retryable reports whether a failed step may succeed on a later attempt.
// A held lease and upstream outages are transient; stale runs, missing
// checkpoints and bad requests are not.
func retryable(err error) bool {
	if errors.Is(err, checkpoint.ErrLeaseHeld) {
		return true
	}
	switch apperr.GetKind(err) {
	case apperr.KindConflict, apperr.KindNotFound, apperr.KindBadRequest, apperr.KindValidation:
		return false
	}
	return true
}

func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	if errors.Is(err, checkpoint.ErrLeaseHeld) {
		return busyRetryDelay
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}

// Starter begins a new pipeline run.
type Starter interface {
	Start(ctx context.Context) (service.Launch, error)
}

// DailyHandler starts a run when the periodic trigger fires.
type DailyHandler struct {
	starter Starter
	log     *logger.Logger
}

func NewDailyHandler(starter Starter, log *logger.Logger) *DailyHandler {
	return &DailyHandler{starter: starter, log: log}
}

func (h *DailyHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	launch, err := h.starter.Start(ctx)
	if err != nil {
		return err
	}
	h.log.Info("scheduler: daily pipeline run started", "runId", launch.RunID, "mode", launch.Mode)
	return nil
}
