package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lead_triage_backend/internal/crm"
	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/pipeline/conversation"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/internal/pipeline/drafter"
	"lead_triage_backend/internal/pipeline/service"
	"lead_triage_backend/platform/logger"
	"lead_triage_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type stubIngestor struct{}

func (stubIngestor) Fetch(context.Context) (domain.Opportunities, error) {
	return domain.Opportunities{
		Active:          []domain.Lead{{ID: "opp-1", ContactID: "c-1", Name: "Ada", Stage: domain.StageNewLead}},
		InactiveSummary: map[string]int{},
	}, nil
}

type stubEnricher struct{}

func (stubEnricher) Enrich(_ context.Context, _ *conversation.Gate, leads []domain.Lead) (domain.ConversationMap, error) {
	out := domain.ConversationMap{}
	for _, l := range leads {
		out[l.ContactID] = domain.NoConversation()
	}
	return out, nil
}

type stubBuilder struct{}

func (stubBuilder) Build(leads []domain.Lead, _ domain.ConversationMap) []domain.EnrichedLead {
	out := make([]domain.EnrichedLead, 0, len(leads))
	for _, l := range leads {
		out = append(out, domain.EnrichedLead{Lead: l, SuggestedAction: domain.ActionOutreach, SuggestedPriority: domain.PriorityHigh})
	}
	return out
}

type stubCRM struct{}

func (stubCRM) SendMessage(context.Context, crm.SendMessageRequest) (string, error) { return "m-1", nil }
func (stubCRM) UpdateOpportunityStage(context.Context, string, string) error       { return nil }
func (stubCRM) CreateNote(context.Context, string, string) error                   { return nil }

func setupRouter(t *testing.T) (*gin.Engine, *checkpoint.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Nop()
	store := checkpoint.NewMemoryStore()
	val := validator.New()
	if err := val.RegisterValidation("ledgerkey", func(v string) bool {
		_, err := domain.ParseLedgerKey(v)
		return err == nil
	}); err != nil {
		t.Fatal(err)
	}

	orch := service.NewOrchestrator(service.Deps{
		Store:         store,
		Locker:        checkpoint.NewMemoryLocker(),
		Ingestor:      stubIngestor{},
		Conversations: stubEnricher{},
		Builder:       stubBuilder{},
		Drafter:       drafter.NewRulesDrafter(domain.DefaultStages()),
	}, service.Options{}, log)
	actions := service.NewActions(store, stubCRM{}, domain.DefaultStages(), "", nil, log)
	h := New(orch, service.NewLauncher(orch, nil, log), actions, val)

	engine := gin.New()
	h.RegisterRoutes(engine.Group("/api/v1"), func(c *gin.Context) { c.Next() })
	return engine, store
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestStatus_IdleBeforeAnyRun(t *testing.T) {
	engine, _ := setupRouter(t)

	rec := do(engine, http.MethodGet, "/api/v1/pipeline", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state domain.RunState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state.Status != domain.StatusIdle || state.Step != "none" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestRunStep_ValidatesQuery(t *testing.T) {
	engine, _ := setupRouter(t)

	for _, path := range []string{
		"/api/v1/pipeline",
		"/api/v1/pipeline?step=complete",
		"/api/v1/pipeline?step=conversations&offset=-5",
	} {
		if rec := do(engine, http.MethodPost, path, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestRunStep_PollsThroughARun(t *testing.T) {
	engine, _ := setupRouter(t)

	rec := do(engine, http.MethodPost, "/api/v1/pipeline?step=opportunities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res domain.StepResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || !res.Done || res.NextStep != domain.StepConversations || res.RunID == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	for _, step := range []string{"conversations", "enrich", "recommend"} {
		rec := do(engine, http.MethodPost, "/api/v1/pipeline?step="+step+"&runId="+res.RunID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", step, rec.Code, rec.Body.String())
		}
	}

	rec = do(engine, http.MethodPost, "/api/v1/pipeline?step=enrich&runId=other", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for stale run, got %d", rec.Code)
	}

	rec = do(engine, http.MethodGet, "/api/v1/actions", "")
	var dash domain.Dashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatal(err)
	}
	if len(dash.Actions) != 1 || dash.Actions[0].ContactName != "Ada" || dash.GeneratedAt == nil {
		t.Fatalf("unexpected dashboard %+v", dash)
	}

	if rec := do(engine, http.MethodPost, "/api/v1/send/1", `{"message":"Hi Ada"}`); rec.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(engine, http.MethodGet, "/api/v1/status", "")
	if !strings.Contains(rec.Body.String(), `"1":{"status":"sent"`) {
		t.Fatalf("expected sent entry in ledger, got %s", rec.Body.String())
	}
}

func TestMissingInputIsNotFound(t *testing.T) {
	engine, store := setupRouter(t)
	if err := store.Put(context.Background(), checkpoint.KeyStatus, domain.RunState{RunID: "r", Status: domain.StatusRunning}); err != nil {
		t.Fatal(err)
	}

	rec := do(engine, http.MethodPost, "/api/v1/pipeline?step=enrich", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "No opportunity data found") {
		t.Fatalf("expected 404 with message, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("expected success:false, got %s", rec.Body.String())
	}
}

func TestActions_EmptyDashboard(t *testing.T) {
	engine, _ := setupRouter(t)

	rec := do(engine, http.MethodGet, "/api/v1/actions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"generatedAt":null`) || !strings.Contains(body, `"actions":[]`) {
		t.Fatalf("unexpected empty dashboard %s", body)
	}
}

func TestSend_RejectsBadKeysAndMissingDashboard(t *testing.T) {
	engine, _ := setupRouter(t)

	for _, path := range []string{"/api/v1/send/abc", "/api/v1/send/0", "/api/v1/send/1_move"} {
		if rec := do(engine, http.MethodPost, path, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
	if rec := do(engine, http.MethodPost, "/api/v1/send/1_sms", `{"type":"Fax"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown message type, got %d", rec.Code)
	}

	rec := do(engine, http.MethodPost, "/api/v1/send/1", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "No dashboard data") {
		t.Fatalf("expected 404 without dashboard, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNote_RequiresBody(t *testing.T) {
	engine, _ := setupRouter(t)

	if rec := do(engine, http.MethodPost, "/api/v1/note/1", `{"kind":"note"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := do(engine, http.MethodPost, "/api/v1/note/x", `{"body":"hi"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestMergeLedger_ValidatesKeysAndEntries(t *testing.T) {
	engine, _ := setupRouter(t)

	if rec := do(engine, http.MethodPost, "/api/v1/status", `{"5_fax":{"status":"sent","ts":1}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad key, got %d", rec.Code)
	}
	if rec := do(engine, http.MethodPost, "/api/v1/status", `{"5":{"status":"lost","ts":1}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
	if rec := do(engine, http.MethodPost, "/api/v1/status", `{"5_sms":{"status":"sent","ts":1700000000000}}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(engine, http.MethodPost, "/api/v1/dismiss/6", ""); rec.Code != http.StatusOK {
		t.Fatalf("dismiss: expected 200, got %d", rec.Code)
	}

	rec := do(engine, http.MethodGet, "/api/v1/status", "")
	var ledger map[string]domain.LedgerEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &ledger); err != nil {
		t.Fatal(err)
	}
	if ledger["5_sms"].Status != domain.LedgerSent || ledger["6"].Status != domain.LedgerDismissed {
		t.Fatalf("unexpected ledger %v", ledger)
	}
}
