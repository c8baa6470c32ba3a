package email

import (
	"strings"
	"testing"
	"time"
)

func TestRenderStepFailedEscapesError(t *testing.T) {
	content, err := renderEmailTemplate("step_failed.html", stepFailedEmailData{
		baseEmailData: baseEmailData{Title: "t", Heading: "h"},
		Alert: StepFailedAlert{
			RunID: "run-1",
			Step:  "recommend",
			Error: "<script>drafter failed</script>",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "run-1") || !strings.Contains(content, "recommend") {
		t.Fatalf("missing alert fields: %s", content)
	}
	if strings.Contains(content, "<script>") {
		t.Fatalf("error text must be escaped: %s", content)
	}
}

func TestRenderRunCompletedListsInactiveStages(t *testing.T) {
	content, err := renderEmailTemplate("run_completed.html", runCompletedEmailData{
		baseEmailData: baseEmailData{Title: "t", Heading: "h"},
		Summary: RunSummary{
			RunID:    "run-2",
			Actions:  4,
			NoAction: 9,
			Inactive: map[string]int{"Won": 3},
		},
		Duration: (90 * time.Second).String(),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"4 leads need action", "9 leads need nothing", "Won: 3", "1m30s"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %s", want, content)
		}
	}
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender(testSMTPConfig{host: "smtp.example.com"})
	msg, err := s.buildMessage("ops@example.com", "subject", "<p>hi</p>")
	if err != nil {
		t.Fatal(err)
	}
	if to := msg.GetTo(); len(to) != 1 || to[0].Address != "ops@example.com" {
		t.Fatalf("unexpected recipients %v", to)
	}
	if parts := msg.GetParts(); len(parts) != 2 {
		t.Fatalf("expected html and plain-text parts, got %d", len(parts))
	}
	if _, err := s.buildMessage("not an address", "subject", "body"); err == nil {
		t.Fatal("expected invalid recipient to fail")
	}
}

type testSMTPConfig struct {
	host string
}

func (c testSMTPConfig) GetSMTPHost() string     { return c.host }
func (c testSMTPConfig) GetSMTPPort() int        { return 587 }
func (c testSMTPConfig) GetSMTPUsername() string { return "" }
func (c testSMTPConfig) GetSMTPPassword() string { return "" }
func (c testSMTPConfig) GetSMTPFrom() string     { return "alerts@example.com" }
func (c testSMTPConfig) GetAlertEmailTo() string { return "ops@example.com" }
func (c testSMTPConfig) IsSMTPEnabled() bool     { return c.host != "" }

func TestNewSenderFallsBackToNoop(t *testing.T) {
	if _, ok := NewSender(testSMTPConfig{}).(NoopSender); !ok {
		t.Fatal("expected noop sender without smtp host")
	}
	if _, ok := NewSender(testSMTPConfig{host: "smtp.example.com"}).(*SMTPSender); !ok {
		t.Fatal("expected smtp sender")
	}
}
