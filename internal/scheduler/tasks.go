package scheduler

import (
	"encoding/json"
	"fmt"

	"lead_triage_backend/internal/pipeline/domain"

	"github.com/hibiken/asynq"
)

const TaskPipelineStep = "pipeline.step"

const TaskPipelineDaily = "pipeline.daily"

type PipelineStepPayload struct {
	RunID  string `json:"runId"`
	Step   string `json:"step"`
	Offset int    `json:"offset"`
}

// Request converts the payload into a step request.
func (p PipelineStepPayload) Request() (domain.StepRequest, error) {
	step, ok := domain.ParseStep(p.Step)
	if !ok {
		return domain.StepRequest{}, fmt.Errorf("unknown pipeline step %q", p.Step)
	}
	if p.RunID == "" {
		return domain.StepRequest{}, fmt.Errorf("pipeline step %q has no run id", p.Step)
	}
	return domain.StepRequest{Step: step, RunID: p.RunID, Offset: p.Offset}, nil
}

// StepTaskID is the deterministic id of one step of one run. Enqueueing the
// same id twice is a no-op while the first task is retained.
func StepTaskID(req domain.StepRequest) string {
	return fmt.Sprintf("pipeline:%s:%s:%d", req.RunID, req.Step, req.Offset)
}

func NewPipelineStepTask(req domain.StepRequest) (*asynq.Task, error) {
	data, err := json.Marshal(PipelineStepPayload{
		RunID:  req.RunID,
		Step:   string(req.Step),
		Offset: req.Offset,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPipelineStep, data), nil
}

func ParsePipelineStepPayload(task *asynq.Task) (PipelineStepPayload, error) {
	var payload PipelineStepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PipelineStepPayload{}, err
	}
	return payload, nil
}

func NewPipelineDailyTask() *asynq.Task {
	return asynq.NewTask(TaskPipelineDaily, nil)
}
