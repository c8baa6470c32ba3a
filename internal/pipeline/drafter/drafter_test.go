package drafter

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func batch() []domain.EnrichedLead {
	return []domain.EnrichedLead{
		{
			Lead:                domain.Lead{ID: "opp-1", ContactID: "c1", Name: "Ann", Email: "ann@x.com", Phone: "+15550001", Stage: domain.StageQuoteSent},
			IsInternational:     true,
			ConversationHistory: []domain.TranscriptEntry{{Direction: "inbound", Channel: "sms", Body: "hi"}},
			Notes:               []domain.Note{{Body: "wants navy"}},
			SuggestedAction:     domain.ActionFollowUpEmail,
			SuggestedPriority:   domain.PriorityMedium,
			Hint:                "2 bdays since quote sent",
		},
		{
			Lead:            domain.Lead{ID: "opp-2", ContactID: "c2", Name: "Bo", Stage: domain.StageInProgress},
			SuggestedAction: domain.ActionNone,
			Hint:            "Contacted recently, waiting for response",
		},
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"plain":   `{"a":1}`,
		"fenced":  "Here you go:\n```json\n{\"a\":{\"b\":[1,2]}}\n```\nDone {ignored}",
		"strings": `x {"a":"} { \" }"} y {"b":2}`,
	}
	want := map[string]string{
		"plain":   `{"a":1}`,
		"fenced":  `{"a":{"b":[1,2]}}`,
		"strings": `{"a":"} { \" }"}`,
	}
	for name, in := range cases {
		got, err := ExtractJSON(in)
		if err != nil || got != want[name] {
			t.Errorf("%s: got %q, %v", name, got, err)
		}
	}
	if _, err := ExtractJSON(`{"a": 1`); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON for unbalanced input, got %v", err)
	}
}

func TestFinalize_ReattachesMetadata(t *testing.T) {
	raw := "```json\n" + `{"actions":[{"id":1,"priority":"medium","actionType":"follow_up_email","contactId":"c1","contactName":"WRONG","subject":"Your quote"}],
"noAction":[{"contactId":"c2","reason":"waiting"}]}` + "\n```"

	got, err := Finalize(raw, batch())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	a := got.Actions[0]
	if a.ContactName != "Ann" || a.ContactEmail != "ann@x.com" || a.OpportunityID != "opp-1" || a.Stage != domain.StageQuoteSent {
		t.Fatalf("metadata not reattached: %+v", a)
	}
	if !a.International || len(a.ConversationHistory) != 1 || len(a.Notes) != 1 || a.Subject != "Your quote" {
		t.Fatalf("unexpected action %+v", a)
	}
	if n := got.NoAction[0]; n.ContactName != "Bo" || n.Stage != domain.StageInProgress || n.Reason != "waiting" {
		t.Fatalf("unexpected noAction %+v", n)
	}
}

func TestReattach_FormatsPhone(t *testing.T) {
	leads := []domain.EnrichedLead{
		{Lead: domain.Lead{ContactID: "c1", Phone: "(202) 456-1111"}},
		{Lead: domain.Lead{ContactID: "c2", Phone: "ext. 12"}},
	}
	recs := domain.Recommendations{Actions: []domain.ActionItem{{ContactID: "c1"}, {ContactID: "c2"}}}

	Reattach(&recs, leads)
	if got := recs.Actions[0].ContactPhone; got != "+12024561111" {
		t.Fatalf("expected E.164 phone, got %q", got)
	}
	if got := recs.Actions[1].ContactPhone; got != "ext. 12" {
		t.Fatalf("expected unparseable phone kept, got %q", got)
	}
}

func TestFinalize_CoverageViolations(t *testing.T) {
	cases := map[string]string{
		"missing":    `{"actions":[{"contactId":"c1"}],"noAction":[]}`,
		"duplicated": `{"actions":[{"contactId":"c1"}],"noAction":[{"contactId":"c1"},{"contactId":"c2"}]}`,
		"unknown":    `{"actions":[{"contactId":"c1"},{"contactId":"zz"}],"noAction":[{"contactId":"c2"}]}`,
		"no json":    `I could not do that.`,
		"bad json":   `{"actions": "nope"}`,
	}
	for name, raw := range cases {
		_, err := Finalize(raw, batch())
		if !apperr.Is(err, apperr.KindInternal) {
			t.Errorf("%s: expected internal error, got %v", name, err)
		}
	}
}

type fakeLLM struct {
	reply string
	err   error
	req   *model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	f.req = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(f.reply, genai.RoleModel)}, nil)
	}
}

func TestLLMDrafter_Draft(t *testing.T) {
	llm := &fakeLLM{reply: `{"actions":[{"id":1,"contactId":"c1","actionType":"follow_up_email"}],"noAction":[{"contactId":"c2"}]}`}
	d := NewLLMDrafter(llm, domain.DefaultStages(), 4096, logger.Nop())

	got, err := d.Draft(context.Background(), DraftRequest{Leads: batch(), InactiveSummary: map[string]int{"Sale": 4}})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if len(got.Actions) != 1 || got.Actions[0].ContactName != "Ann" {
		t.Fatalf("unexpected draft %+v", got)
	}

	if llm.req.Config.MaxOutputTokens != 4096 {
		t.Fatalf("expected max tokens to be forwarded, got %d", llm.req.Config.MaxOutputTokens)
	}
	system := llm.req.Config.SystemInstruction.Parts[0].Text
	if !strings.Contains(system, domain.DefaultStages().IDOf(domain.StageCooledOff)) {
		t.Fatal("system prompt must list the Cooled Off stage id")
	}
	user := llm.req.Contents[0].Parts[0].Text
	for _, want := range []string{`"contactId": "c1"`, `"hint": "2 bdays since quote sent"`, `{"Sale":4}`, "2 active leads"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q", want)
		}
	}
}

func TestLLMDrafter_ModelFailureIsUnavailable(t *testing.T) {
	d := NewLLMDrafter(&fakeLLM{err: errors.New("overloaded")}, domain.DefaultStages(), 0, logger.Nop())
	_, err := d.Draft(context.Background(), DraftRequest{Leads: batch()})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestRulesDrafter_CoversEveryLead(t *testing.T) {
	leads := append(batch(), domain.EnrichedLead{
		Lead:              domain.Lead{ID: "opp-3", ContactID: "c3", Name: "Cy"},
		SuggestedAction:   domain.ActionMove,
		SuggestedPriority: domain.PriorityInfo,
	})

	got, err := NewRulesDrafter(domain.DefaultStages()).Draft(context.Background(), DraftRequest{Leads: leads})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if len(got.Actions) != 2 || len(got.NoAction) != 1 {
		t.Fatalf("unexpected split %+v", got)
	}
	if got.Actions[0].MessageType != domain.MessageTypeEmail || got.Actions[0].ContactName != "Ann" {
		t.Fatalf("unexpected email action %+v", got.Actions[0])
	}
	if got.Actions[1].ID != 2 || got.Actions[1].TargetStageID != domain.DefaultStages().IDOf(domain.StageCooledOff) {
		t.Fatalf("unexpected move action %+v", got.Actions[1])
	}
}
