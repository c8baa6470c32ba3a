package email

import (
	"context"
	"time"

	"lead_triage_backend/platform/config"
)

// StepFailedAlert describes a pipeline step that moved its run to the error state.
type StepFailedAlert struct {
	RunID      string
	Step       string
	Offset     int
	Error      string
	OccurredAt time.Time
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID       string
	Actions     int
	NoAction    int
	Inactive    map[string]int
	Duration    time.Duration
	CompletedAt time.Time
}

type Sender interface {
	SendStepFailedEmail(ctx context.Context, toEmail string, alert StepFailedAlert) error
	SendRunCompletedEmail(ctx context.Context, toEmail string, summary RunSummary) error
}

type NoopSender struct{}

func (NoopSender) SendStepFailedEmail(ctx context.Context, toEmail string, alert StepFailedAlert) error {
	return nil
}

func (NoopSender) SendRunCompletedEmail(ctx context.Context, toEmail string, summary RunSummary) error {
	return nil
}

// NewSender returns an SMTP sender when SMTP is configured and a no-op otherwise.
func NewSender(cfg config.SMTPConfig) Sender {
	if !cfg.IsSMTPEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(cfg)
}
