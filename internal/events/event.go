// Package events defines the pipeline and dashboard events exchanged between
// modules. The bus itself lives in platform/events.
package events

import (
	"lead_triage_backend/platform/events"
	"lead_triage_backend/platform/logger"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent = events.NewBaseEvent
	SubscribeAll = events.SubscribeAll
)

// NewInMemoryBus creates the process-local bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Pipeline Events
// =============================================================================

// PipelineRunStarted is published when the opportunities step opens a new run.
type PipelineRunStarted struct {
	BaseEvent
	RunID       string `json:"runId"`
	ActiveLeads int    `json:"activeLeads"`
}

func (e PipelineRunStarted) EventName() string { return "pipeline.run.started" }

// PipelineStepFailed is published when a step aborts and the run enters the error state.
type PipelineStepFailed struct {
	BaseEvent
	RunID  string `json:"runId"`
	Step   string `json:"step"`
	Offset int    `json:"offset"`
	Error  string `json:"error"`
}

func (e PipelineStepFailed) EventName() string { return "pipeline.step.failed" }

// PipelineRunCompleted is published after the dashboard for a run is written.
type PipelineRunCompleted struct {
	BaseEvent
	RunID       string         `json:"runId"`
	Actions     int            `json:"actions"`
	NoAction    int            `json:"noAction"`
	Inactive    map[string]int `json:"inactive"`
	DurationSec float64        `json:"durationSec"`
}

func (e PipelineRunCompleted) EventName() string { return "pipeline.run.completed" }

// =============================================================================
// Dashboard Action Events
// =============================================================================

// ActionExecuted is published when an operator sends, moves, notes or
// dismisses a dashboard action.
type ActionExecuted struct {
	BaseEvent
	Key       string `json:"key"`
	Status    string `json:"status"`
	ContactID string `json:"contactId,omitempty"`
	Operator  string `json:"operator,omitempty"`
}

func (e ActionExecuted) EventName() string { return "dashboard.action.executed" }
