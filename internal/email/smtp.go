package email

import (
	"context"
	"fmt"
	"time"

	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/sanitize"

	gomail "github.com/wneessen/go-mail"
)

const (
	senderName  = "Lead Triage"
	smtpTimeout = 15 * time.Second
)

// SMTPSender delivers alert emails over SMTP with go-mail. Each send opens
// its own connection.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.GetSMTPHost(),
		port:     cfg.GetSMTPPort(),
		username: cfg.GetSMTPUsername(),
		password: cfg.GetSMTPPassword(),
		from:     cfg.GetSMTPFrom(),
	}
}

// buildMessage renders an HTML body with a plain-text alternative.
func (s *SMTPSender) buildMessage(to, subject, html string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(senderName, s.from); err != nil {
		return nil, fmt.Errorf("email: from %q: %w", s.from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("email: to %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, html)
	msg.AddAlternativeString(gomail.TypeTextPlain, sanitize.StripHTML(html))
	return msg, nil
}

func (s *SMTPSender) options() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(smtpTimeout),
	}
	if s.username == "" {
		return opts
	}
	return append(opts,
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
	)
}

func (s *SMTPSender) deliver(ctx context.Context, to, subject, html string) error {
	msg, err := s.buildMessage(to, subject, html)
	if err != nil {
		return err
	}
	client, err := gomail.NewClient(s.host, s.options()...)
	if err != nil {
		return fmt.Errorf("email: smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) SendStepFailedEmail(ctx context.Context, to string, alert StepFailedAlert) error {
	html, err := renderEmailTemplate("step_failed.html", stepFailedEmailData{
		baseEmailData: baseEmailData{Title: "Pipeline step failed", Heading: "A pipeline step failed"},
		Alert:         alert,
		OccurredAt:    formatTimestamp(alert.OccurredAt),
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, fmt.Sprintf(subjectStepFailedFmt, alert.Step, alert.RunID), html)
}

func (s *SMTPSender) SendRunCompletedEmail(ctx context.Context, to string, summary RunSummary) error {
	html, err := renderEmailTemplate("run_completed.html", runCompletedEmailData{
		baseEmailData: baseEmailData{Title: "Dashboard ready", Heading: "Today's dashboard is ready"},
		Summary:       summary,
		Duration:      summary.Duration.Round(time.Second).String(),
		CompletedAt:   formatTimestamp(summary.CompletedAt),
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, fmt.Sprintf(subjectRunCompletedFmt, summary.Actions), html)
}
