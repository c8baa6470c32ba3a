package scheduler

import (
	"context"

	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const defaultConcurrency = 4

// Worker consumes step tasks and the daily trigger from the pipeline queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, steps *StepHandler, daily *DailyHandler, log *logger.Logger) (*Worker, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	server := asynq.NewServer(conn.opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{conn.queue: 1},
		RetryDelayFunc: retryDelay,
		Logger:         asynqLogger{log: log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error("scheduler: task failed", "type", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskPipelineStep, steps)
	mux.Handle(TaskPipelineDaily, daily)

	return &Worker{server: server, mux: mux, log: log}, nil
}

// Run blocks until ctx is canceled or the server fails to start.
func (w *Worker) Run(ctx context.Context) {
	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler: worker failed to start", "error", err)
		return
	}
	w.log.Info("scheduler: worker started")
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler: worker stopped")
}
