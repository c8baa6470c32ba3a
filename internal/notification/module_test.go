package notification

import (
	"context"
	"errors"
	"testing"

	"lead_triage_backend/internal/email"
	"lead_triage_backend/internal/events"
	"lead_triage_backend/platform/logger"
)

type testSender struct {
	failed    []email.StepFailedAlert
	completed []email.RunSummary
	to        []string
	err       error
}

func (s *testSender) SendStepFailedEmail(_ context.Context, to string, alert email.StepFailedAlert) error {
	s.to = append(s.to, to)
	s.failed = append(s.failed, alert)
	return s.err
}

func (s *testSender) SendRunCompletedEmail(_ context.Context, to string, summary email.RunSummary) error {
	s.to = append(s.to, to)
	s.completed = append(s.completed, summary)
	return s.err
}

func newBus(m *Module) *events.InMemoryBus {
	bus := events.NewInMemoryBus(logger.Nop())
	m.RegisterHandlers(bus)
	return bus
}

func TestStepFailedSendsAlertEmail(t *testing.T) {
	sender := &testSender{}
	m := New(sender, "ops@example.com", nil, logger.Nop())
	bus := newBus(m)

	err := bus.PublishSync(context.Background(), events.PipelineStepFailed{
		BaseEvent: events.NewBaseEvent(),
		RunID:     "run-1",
		Step:      "recommend",
		Offset:    8,
		Error:     "drafter unavailable",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.failed) != 1 || sender.to[0] != "ops@example.com" {
		t.Fatalf("expected one alert to ops, got %+v", sender.failed)
	}
	if got := sender.failed[0]; got.Step != "recommend" || got.Offset != 8 || got.OccurredAt.IsZero() {
		t.Fatalf("unexpected alert %+v", got)
	}
}

func TestRunCompletedSendsSummary(t *testing.T) {
	sender := &testSender{}
	m := New(sender, "ops@example.com", nil, logger.Nop())
	bus := newBus(m)

	err := bus.PublishSync(context.Background(), events.PipelineRunCompleted{
		BaseEvent:   events.NewBaseEvent(),
		RunID:       "run-2",
		Actions:     3,
		NoAction:    5,
		Inactive:    map[string]int{"Lost": 2},
		DurationSec: 12.5,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.completed) != 1 {
		t.Fatalf("expected a summary email, got %d", len(sender.completed))
	}
	if got := sender.completed[0]; got.Actions != 3 || got.Duration.Seconds() != 12.5 || got.Inactive["Lost"] != 2 {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestNoRecipientSkipsEmail(t *testing.T) {
	sender := &testSender{}
	m := New(sender, "", nil, logger.Nop())

	if err := m.Handle(context.Background(), events.PipelineStepFailed{RunID: "run-1"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.failed) != 0 {
		t.Fatalf("no email expected without a recipient")
	}
}

func TestEmailFailureIsReported(t *testing.T) {
	sender := &testSender{err: errors.New("smtp down")}
	m := New(sender, "ops@example.com", nil, logger.Nop())

	if err := m.Handle(context.Background(), events.PipelineRunCompleted{RunID: "run-3"}); err == nil {
		t.Fatal("expected send error to propagate")
	}
}
