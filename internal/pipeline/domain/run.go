package domain

import "time"

// Step is one stage of the pipeline state machine.
type Step string

const (
	StepOpportunities Step = "opportunities"
	StepConversations Step = "conversations"
	StepEnrich        Step = "enrich"
	StepRecommend     Step = "recommend"
	StepComplete      Step = "complete"
	StepError         Step = "error"
)

// ParseStep accepts the four runnable steps.
func ParseStep(s string) (Step, bool) {
	switch Step(s) {
	case StepOpportunities, StepConversations, StepEnrich, StepRecommend:
		return Step(s), true
	}
	return "", false
}

// Next is the step that follows s once s is done.
func (s Step) Next() Step {
	switch s {
	case StepOpportunities:
		return StepConversations
	case StepConversations:
		return StepEnrich
	case StepEnrich:
		return StepRecommend
	case StepRecommend:
		return StepComplete
	default:
		return StepError
	}
}

// Order is the position of s in the run; unknown steps sort last.
func (s Step) Order() int {
	switch s {
	case StepOpportunities:
		return 0
	case StepConversations:
		return 1
	case StepEnrich:
		return 2
	case StepRecommend:
		return 3
	case StepComplete:
		return 4
	default:
		return 5
	}
}

// Batched reports whether s processes its input in offset windows.
func (s Step) Batched() bool {
	return s == StepConversations || s == StepRecommend
}

// RunStatus is the coarse state of the current run.
type RunStatus string

const (
	StatusIdle     RunStatus = "idle"
	StatusRunning  RunStatus = "running"
	StatusComplete RunStatus = "complete"
	StatusError    RunStatus = "error"
)

// RunState is the pipeline-status document.
type RunState struct {
	RunID         string     `json:"runId,omitempty"`
	Status        RunStatus  `json:"status"`
	Step          string     `json:"step"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	StepStartedAt *time.Time `json:"stepStartedAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
	Error         string     `json:"error,omitempty"`
	Offset        int        `json:"offset,omitempty"`
	Total         int        `json:"total,omitempty"`
}

// IdleState is reported when no run has ever been recorded.
func IdleState() RunState {
	return RunState{Status: StatusIdle, Step: "none"}
}

// StepRequest asks the orchestrator to run one step.
type StepRequest struct {
	Step   Step
	RunID  string
	Offset int
}

// StepResult describes one executed step and what to run next.
type StepResult struct {
	Success    bool   `json:"success"`
	Step       Step   `json:"step"`
	RunID      string `json:"runId"`
	Offset     int    `json:"offset"`
	BatchSize  int    `json:"batchSize"`
	Total      int    `json:"total"`
	Done       bool   `json:"done"`
	NextOffset *int   `json:"nextOffset"`
	NextStep   Step   `json:"nextStep"`
	// Replayed marks a request for work the run has already done. Nothing
	// was executed and the next request points at the run's position.
	Replayed   bool   `json:"replayed,omitempty"`
}

// NextRequest is the request that continues the run, if any.
func (r StepResult) NextRequest() (StepRequest, bool) {
	if r.Done {
		if r.NextStep == StepComplete || r.NextStep == StepError || r.NextStep == "" {
			return StepRequest{}, false
		}
		return StepRequest{Step: r.NextStep, RunID: r.RunID}, true
	}
	offset := 0
	if r.NextOffset != nil {
		offset = *r.NextOffset
	}
	return StepRequest{Step: r.Step, RunID: r.RunID, Offset: offset}, true
}
