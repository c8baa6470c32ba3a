package scheduler

import (
	"context"
	"fmt"
	"time"

	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the daily pipeline trigger on a cron schedule evaluated
// in the business timezone.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

// PeriodicConfig combines the config needed for the periodic trigger.
type PeriodicConfig interface {
	config.SchedulerConfig
	GetBusinessTimezone() string
}

func NewPeriodic(cfg PeriodicConfig, log *logger.Logger) (*Periodic, error) {
	cronExpr := cfg.GetPipelineDailyCron()
	if cronExpr == "" {
		return nil, fmt.Errorf("pipeline daily cron not configured")
	}

	loc, err := time.LoadLocation(cfg.GetBusinessTimezone())
	if err != nil {
		return nil, fmt.Errorf("business timezone: %w", err)
	}

	conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(conn.opt, &asynq.SchedulerOpts{
		Location: loc,
		Logger:   asynqLogger{log: log},
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error("scheduler: daily trigger enqueue failed", "error", err)
				return
			}
			log.Info("scheduler: daily trigger enqueued", "taskId", info.ID)
		},
	})

	entryID, err := scheduler.Register(cronExpr, NewPipelineDailyTask(),
		asynq.Queue(conn.queue),
		asynq.MaxRetry(1),
		asynq.Unique(time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("register daily trigger %q: %w", cronExpr, err)
	}
	log.Info("scheduler: daily trigger registered", "cron", cronExpr, "timezone", loc.String(), "entryId", entryID)

	return &Periodic{scheduler: scheduler, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("scheduler: periodic trigger failed to start", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
