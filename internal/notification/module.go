// Package notification turns pipeline and dashboard events into operator
// alerts: structured log lines, alert emails and the live dashboard stream.
package notification

import (
	"context"
	"time"

	"lead_triage_backend/internal/email"
	"lead_triage_backend/internal/events"
	apphttp "lead_triage_backend/internal/http"
	"lead_triage_backend/internal/notification/sse"
	"lead_triage_backend/platform/logger"
)

const sendTimeout = 30 * time.Second

// Module handles all notification-related event subscriptions.
type Module struct {
	sender  email.Sender
	alertTo string
	sse     *sse.Service
	log     *logger.Logger
}

// New creates the module. alertTo may be empty, in which case no email is sent.
func New(sender email.Sender, alertTo string, stream *sse.Service, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	return &Module{
		sender:  sender,
		alertTo: alertTo,
		sse:     stream,
		log:     log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterHandlers subscribes to pipeline and dashboard events on the bus.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	events.SubscribeAll(bus, m,
		events.PipelineRunStarted{},
		events.PipelineStepFailed{},
		events.PipelineRunCompleted{},
		events.ActionExecuted{},
	)
}

// RegisterRoutes mounts the live event stream for signed-in operators.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.sse == nil {
		return
	}
	ctx.Protected.GET("/events", m.sse.Handler())
}

func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.PipelineRunStarted:
		return m.handleRunStarted(e)
	case events.PipelineStepFailed:
		return m.handleStepFailed(ctx, e)
	case events.PipelineRunCompleted:
		return m.handleRunCompleted(ctx, e)
	case events.ActionExecuted:
		return m.handleActionExecuted(e)
	default:
		m.log.Warn("notification: unhandled event", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleRunStarted(e events.PipelineRunStarted) error {
	m.broadcast(sse.Event{
		ID:    e.EventID().String(),
		Type:  sse.EventRunStarted,
		RunID: e.RunID,
		Data:  map[string]int{"activeLeads": e.ActiveLeads},
	})
	return nil
}

func (m *Module) handleStepFailed(ctx context.Context, e events.PipelineStepFailed) error {
	m.log.Error("pipeline alert: step failed",
		"runId", e.RunID,
		"step", e.Step,
		"offset", e.Offset,
		"error", e.Error,
	)
	m.broadcast(sse.Event{
		ID:      e.EventID().String(),
		Type:    sse.EventStepFailed,
		RunID:   e.RunID,
		Message: e.Error,
		Data:    map[string]any{"step": e.Step, "offset": e.Offset},
	})

	if m.alertTo == "" {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	err := m.sender.SendStepFailedEmail(sendCtx, m.alertTo, email.StepFailedAlert{
		RunID:      e.RunID,
		Step:       e.Step,
		Offset:     e.Offset,
		Error:      e.Error,
		OccurredAt: e.OccurredAt(),
	})
	if err != nil {
		m.log.Error("pipeline alert: email failed", "runId", e.RunID, "error", err)
		return err
	}
	return nil
}

func (m *Module) handleRunCompleted(ctx context.Context, e events.PipelineRunCompleted) error {
	m.log.Info("pipeline alert: run completed",
		"runId", e.RunID,
		"actions", e.Actions,
		"noAction", e.NoAction,
		"durationSec", e.DurationSec,
	)
	m.broadcast(sse.Event{
		ID:    e.EventID().String(),
		Type:  sse.EventRunCompleted,
		RunID: e.RunID,
		Data:  map[string]int{"actions": e.Actions, "noAction": e.NoAction},
	})

	if m.alertTo == "" {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	err := m.sender.SendRunCompletedEmail(sendCtx, m.alertTo, email.RunSummary{
		RunID:       e.RunID,
		Actions:     e.Actions,
		NoAction:    e.NoAction,
		Inactive:    e.Inactive,
		Duration:    time.Duration(e.DurationSec * float64(time.Second)),
		CompletedAt: e.OccurredAt(),
	})
	if err != nil {
		m.log.Error("pipeline alert: email failed", "runId", e.RunID, "error", err)
		return err
	}
	return nil
}

func (m *Module) handleActionExecuted(e events.ActionExecuted) error {
	m.broadcast(sse.Event{
		ID:   e.EventID().String(),
		Type: sse.EventActionExecuted,
		Data: map[string]string{"key": e.Key, "status": e.Status, "operator": e.Operator},
	})
	return nil
}

func (m *Module) broadcast(event sse.Event) {
	if m.sse != nil {
		m.sse.Broadcast(event)
	}
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
