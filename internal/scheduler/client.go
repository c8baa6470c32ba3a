package scheduler

import (
	"context"
	"errors"
	"time"

	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const (
	stepMaxRetry  = 3
	stepTimeout   = 10 * time.Minute
	stepRetention = 24 * time.Hour
)

// Client enqueues pipeline steps. It implements service.Chainer.
type Client struct {
	client *asynq.Client
	queue  string
	log    *logger.Logger
}

func NewClient(cfg config.SchedulerConfig, log *logger.Logger) (*Client, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: asynq.NewClient(conn.opt),
		queue:  conn.queue,
		log:    log,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueStep schedules req once. The task id is derived from the run, step
// and offset, so a second enqueue of the same batch is a no-op.
func (c *Client) EnqueueStep(ctx context.Context, req domain.StepRequest) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewPipelineStepTask(req)
	if err != nil {
		return err
	}

	id := StepTaskID(req)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(id),
		asynq.MaxRetry(stepMaxRetry),
		asynq.Timeout(stepTimeout),
		asynq.Retention(stepRetention),
	)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		c.log.Debug("scheduler: step already enqueued", "taskId", id)
		return nil
	case err != nil:
		return err
	}
	c.log.Debug("scheduler: step enqueued", "taskId", info.ID, "queue", info.Queue)
	return nil
}
