package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lead_triage_backend/internal/events"
	"lead_triage_backend/internal/pipeline/calendar"
	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/pipeline/conversation"
	"lead_triage_backend/internal/pipeline/decision"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/internal/pipeline/drafter"
	"lead_triage_backend/internal/pipeline/enrich"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"
)

var fixedNow = time.Date(2026, 3, 11, 19, 0, 0, 0, time.UTC)

type stubIngestor struct {
	opps domain.Opportunities
	err  error
}

func (s *stubIngestor) Fetch(context.Context) (domain.Opportunities, error) {
	return s.opps, s.err
}

type recordingEnricher struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recordingEnricher) Enrich(_ context.Context, gate *conversation.Gate, leads []domain.Lead) (domain.ConversationMap, error) {
	if gate == nil {
		return nil, errors.New("no gate")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(leads))
	out := domain.ConversationMap{}
	for _, l := range leads {
		ids = append(ids, l.ContactID)
		out[l.ContactID] = domain.NoConversation()
	}
	r.batches = append(r.batches, ids)
	return out, nil
}

type failingDrafter struct{}

func (failingDrafter) Draft(context.Context, drafter.DraftRequest) (domain.Recommendations, error) {
	return domain.Recommendations{}, apperr.Unavailable("drafter request failed", errors.New("boom"))
}

func newLeads(n int) []domain.Lead {
	leads := make([]domain.Lead, 0, n)
	for i := 1; i <= n; i++ {
		leads = append(leads, domain.Lead{
			ID:        fmt.Sprintf("opp-%d", i),
			Name:      fmt.Sprintf("Lead %d", i),
			ContactID: fmt.Sprintf("c-%d", i),
			Stage:     domain.StageNewLead,
		})
	}
	return leads
}

type harness struct {
	orch     *Orchestrator
	store    *checkpoint.MemoryStore
	locker   *checkpoint.MemoryLocker
	enricher *recordingEnricher
	bus      *events.InMemoryBus
}

func newHarness(t *testing.T, leads []domain.Lead, d drafter.Drafter) *harness {
	t.Helper()
	log := logger.Nop()
	store := checkpoint.NewMemoryStore()
	locker := checkpoint.NewMemoryLocker()
	enricher := &recordingEnricher{}
	bus := events.NewInMemoryBus(log)
	builder := enrich.NewBuilder(calendar.InLocation(time.UTC), decision.NewEngine(decision.DefaultRules())).
		WithClock(func() time.Time { return fixedNow })
	if d == nil {
		d = drafter.NewRulesDrafter(domain.DefaultStages())
	}

	orch := NewOrchestrator(Deps{
		Store:  store,
		Locker: locker,
		Ingestor: &stubIngestor{opps: domain.Opportunities{
			Active:          leads,
			InactiveSummary: map[string]int{domain.StageSale: 2},
		}},
		Conversations: enricher,
		Builder:       builder,
		Drafter:       d,
		EventBus:      bus,
	}, Options{ConversationBatchSize: 5, RecommendBatchSize: 3}, log)
	orch.now = func() time.Time { return fixedNow }
	orch.newRunID = func() string { return "run-1" }

	return &harness{orch: orch, store: store, locker: locker, enricher: enricher, bus: bus}
}

func (h *harness) status(t *testing.T) domain.RunState {
	t.Helper()
	state, err := h.orch.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return state
}

func TestDriver_RunsEveryStepToCompletion(t *testing.T) {
	h := newHarness(t, newLeads(8), nil)

	var completed []events.PipelineRunCompleted
	var mu sync.Mutex
	h.bus.Subscribe(events.PipelineRunCompleted{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, e.(events.PipelineRunCompleted))
		return nil
	}))

	report, err := NewDriver(h.orch, logger.Nop()).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// opportunities + 2 conversation batches + enrich + 3 recommend batches
	if report.Steps != 7 || report.RunID != "run-1" {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(h.enricher.batches) != 2 || len(h.enricher.batches[0]) != 5 || len(h.enricher.batches[1]) != 3 {
		t.Fatalf("unexpected conversation batches %v", h.enricher.batches)
	}

	var dash domain.Dashboard
	if err := h.store.Get(context.Background(), checkpoint.KeyDashboard, &dash); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(dash.Actions) != 8 {
		t.Fatalf("expected 8 actions, got %d", len(dash.Actions))
	}
	for i, a := range dash.Actions {
		if a.ID != i+1 {
			t.Fatalf("action %d has id %d", i, a.ID)
		}
	}
	if dash.GeneratedAt == nil || dash.InactiveSummary[domain.StageSale] != 2 {
		t.Fatalf("unexpected dashboard metadata %+v", dash)
	}

	ledger := domain.Ledger{}
	if err := h.store.Get(context.Background(), checkpoint.KeyLedger, &ledger); err != nil || len(ledger) != 0 {
		t.Fatalf("expected empty ledger, got %v (%v)", ledger, err)
	}
	if state := h.status(t); state.Status != domain.StatusComplete || state.Step != string(domain.StepComplete) {
		t.Fatalf("unexpected final status %+v", state)
	}

	h.bus.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(completed) != 1 || completed[0].Actions != 8 {
		t.Fatalf("expected one completion event, got %+v", completed)
	}
}

func TestRunStep_ReportsBatchProgress(t *testing.T) {
	h := newHarness(t, newLeads(7), nil)
	ctx := context.Background()

	if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepOpportunities}); err != nil {
		t.Fatalf("opportunities: %v", err)
	}
	res, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepConversations, RunID: "run-1"})
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if res.Done || res.NextOffset == nil || *res.NextOffset != 5 || res.BatchSize != 5 || res.Total != 7 {
		t.Fatalf("unexpected first batch %+v", res)
	}
	if state := h.status(t); state.Step != string(domain.StepConversations) || state.Offset != 5 {
		t.Fatalf("status should point at the next batch, got %+v", state)
	}

	res, err = h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepConversations, RunID: "run-1", Offset: 5})
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if !res.Done || res.NextOffset != nil || res.NextStep != domain.StepEnrich || res.BatchSize != 2 {
		t.Fatalf("unexpected last batch %+v", res)
	}
}

func TestRunStep_ConversationMergeIsIdempotent(t *testing.T) {
	h := newHarness(t, newLeads(7), nil)
	ctx := context.Background()

	if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepOpportunities}); err != nil {
		t.Fatalf("opportunities: %v", err)
	}
	for _, offset := range []int{0, 5, 5} {
		if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepConversations, Offset: offset}); err != nil {
			t.Fatalf("conversations at %d: %v", offset, err)
		}
	}

	convs, err := getRunDoc[domain.ConversationMap](ctx, h.store, checkpoint.KeyConversations, "run-1", msgNoConversations)
	if err != nil {
		t.Fatalf("read conversations: %v", err)
	}
	if len(convs) != 7 {
		t.Fatalf("expected 7 contacts after repeated batch, got %d", len(convs))
	}
}

func runThroughEnrich(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	reqs := []domain.StepRequest{
		{Step: domain.StepOpportunities},
		{Step: domain.StepConversations},
		{Step: domain.StepConversations, Offset: 5},
		{Step: domain.StepEnrich},
	}
	for _, req := range reqs {
		if _, err := h.orch.RunStep(ctx, req); err != nil {
			t.Fatalf("%s at %d: %v", req.Step, req.Offset, err)
		}
	}
}

func TestRunStep_RedeliveredRecommendBatchKeepsCoverage(t *testing.T) {
	h := newHarness(t, newLeads(8), nil)
	ctx := context.Background()
	runThroughEnrich(t, h)

	for _, offset := range []int{0, 3} {
		if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepRecommend, Offset: offset}); err != nil {
			t.Fatalf("recommend at %d: %v", offset, err)
		}
	}

	// the batch at offset 3 is delivered a second time
	res, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepRecommend, Offset: 3})
	if err != nil {
		t.Fatalf("repeated recommend: %v", err)
	}
	if !res.Replayed || res.Step != domain.StepRecommend || res.NextOffset == nil || *res.NextOffset != 6 {
		t.Fatalf("repeat should point at the pending batch, got %+v", res)
	}
	next, ok := res.NextRequest()
	if !ok || next.Step != domain.StepRecommend || next.Offset != 6 {
		t.Fatalf("unexpected next request %+v", next)
	}

	if _, err := h.orch.RunStep(ctx, next); err != nil {
		t.Fatalf("recommend at 6: %v", err)
	}

	var dash domain.Dashboard
	if err := h.store.Get(ctx, checkpoint.KeyDashboard, &dash); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	perContact := map[string]int{}
	for _, a := range dash.Actions {
		perContact[a.ContactID]++
	}
	for _, n := range dash.NoAction {
		perContact[n.ContactID]++
	}
	if len(perContact) != 8 || len(dash.Actions)+len(dash.NoAction) != 8 {
		t.Fatalf("expected 8 contacts once each, got %v", perContact)
	}
}

func TestRunStep_RepeatedBatchAfterFailedAdvanceIsMergedOnce(t *testing.T) {
	h := newHarness(t, newLeads(8), nil)
	ctx := context.Background()
	runThroughEnrich(t, h)

	if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepRecommend}); err != nil {
		t.Fatalf("recommend at 0: %v", err)
	}
	if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepRecommend, Offset: 3}); err != nil {
		t.Fatalf("recommend at 3: %v", err)
	}
	// the batch output was written but the status still points at offset 3
	state := h.status(t)
	state.Offset = 3
	if err := h.store.Put(ctx, checkpoint.KeyStatus, state); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepRecommend, Offset: 3}); err != nil {
		t.Fatalf("recommend at 3 again: %v", err)
	}

	recs, err := getRunDoc[domain.Recommendations](ctx, h.store, checkpoint.KeyRecommendations, "run-1", "")
	if err != nil {
		t.Fatalf("read recommendations: %v", err)
	}
	if len(recs.Actions)+len(recs.NoAction) != 6 {
		t.Fatalf("expected 6 drafted leads, got %d actions and %d noAction", len(recs.Actions), len(recs.NoAction))
	}
}

func TestRunStep_StepAheadOfRunIsRejected(t *testing.T) {
	h := newHarness(t, newLeads(2), nil)
	ctx := context.Background()

	if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepOpportunities}); err != nil {
		t.Fatalf("opportunities: %v", err)
	}
	_, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepRecommend, Offset: 3})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if state := h.status(t); state.Status != domain.StatusRunning || state.Step != string(domain.StepConversations) {
		t.Fatalf("rejected request must not move the run, got %+v", state)
	}
}

type revocableLocker struct {
	*checkpoint.MemoryLocker
	revoked atomic.Bool
}

func (l *revocableLocker) Extend(ctx context.Context, lease checkpoint.Lease, ttl time.Duration) (checkpoint.Lease, error) {
	if l.revoked.Load() {
		return checkpoint.Lease{}, checkpoint.ErrLeaseLost
	}
	return l.MemoryLocker.Extend(ctx, lease, ttl)
}

// revokingDrafter loses the lease while the model is drafting.
type revokingDrafter struct {
	locker *revocableLocker
	next   drafter.Drafter
}

func (d revokingDrafter) Draft(ctx context.Context, req drafter.DraftRequest) (domain.Recommendations, error) {
	d.locker.revoked.Store(true)
	return d.next.Draft(ctx, req)
}

func TestRunStep_LostLeaseDiscardsOutput(t *testing.T) {
	locker := &revocableLocker{MemoryLocker: checkpoint.NewMemoryLocker()}
	h := newHarness(t, newLeads(2), revokingDrafter{locker: locker, next: drafter.NewRulesDrafter(domain.DefaultStages())})
	h.orch.locker = locker

	failures := make(chan events.PipelineStepFailed, 1)
	h.bus.Subscribe(events.PipelineStepFailed{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		failures <- e.(events.PipelineStepFailed)
		return nil
	}))

	_, err := NewDriver(h.orch, logger.Nop()).Run(context.Background(), "")
	if !apperr.Is(err, apperr.KindConflict) || !errors.Is(err, checkpoint.ErrLeaseLost) {
		t.Fatalf("expected lost lease conflict, got %v", err)
	}

	var dash domain.Dashboard
	if err := h.store.Get(context.Background(), checkpoint.KeyDashboard, &dash); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Fatalf("a step without the lease must not publish, got %v", err)
	}
	if state := h.status(t); state.Status != domain.StatusRunning || state.Step != string(domain.StepRecommend) {
		t.Fatalf("status must be left to the new lease holder, got %+v", state)
	}

	h.bus.Wait()
	select {
	case evt := <-failures:
		t.Fatalf("lost lease is not a step failure, got %+v", evt)
	default:
	}
}

func TestRunStep_StaleRunIsRejected(t *testing.T) {
	h := newHarness(t, newLeads(2), nil)
	ctx := context.Background()

	if _, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepOpportunities}); err != nil {
		t.Fatalf("opportunities: %v", err)
	}
	_, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepConversations, RunID: "run-0"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if state := h.status(t); state.Status == domain.StatusError || state.RunID != "run-1" {
		t.Fatalf("stale caller must not touch the live run, got %+v", state)
	}
}

func TestRunStep_ForeignCheckpointIsRejected(t *testing.T) {
	h := newHarness(t, newLeads(2), nil)
	ctx := context.Background()

	if err := h.store.Put(ctx, checkpoint.KeyStatus, domain.RunState{RunID: "run-1", Status: domain.StatusRunning, Step: "conversations"}); err != nil {
		t.Fatal(err)
	}
	if err := putRunDoc(ctx, h.store, checkpoint.KeyOpportunities, "run-0", domain.Opportunities{Active: newLeads(2)}); err != nil {
		t.Fatal(err)
	}

	_, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepConversations, RunID: "run-1"})
	if !apperr.Is(err, apperr.KindConflict) || apperr.Message(err) != msgStaleRun {
		t.Fatalf("expected stale run conflict, got %v", err)
	}
}

func TestRunStep_LeaseHeld(t *testing.T) {
	h := newHarness(t, newLeads(1), nil)
	ctx := context.Background()

	if _, err := h.locker.Acquire(ctx, checkpoint.LeaseName, time.Minute); err != nil {
		t.Fatal(err)
	}
	_, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepOpportunities})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected busy conflict, got %v", err)
	}
}

func TestRunStep_MissingInputRecordsError(t *testing.T) {
	h := newHarness(t, newLeads(1), nil)
	ctx := context.Background()

	failures := make(chan events.PipelineStepFailed, 1)
	h.bus.Subscribe(events.PipelineStepFailed{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		failures <- e.(events.PipelineStepFailed)
		return nil
	}))

	if err := h.store.Put(ctx, checkpoint.KeyStatus, domain.RunState{RunID: "run-1", Status: domain.StatusRunning, Step: "enrich"}); err != nil {
		t.Fatal(err)
	}
	_, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepEnrich, RunID: "run-1"})
	if !apperr.Is(err, apperr.KindNotFound) || apperr.Message(err) != msgNoOpportunities {
		t.Fatalf("expected missing opportunities, got %v", err)
	}

	state := h.status(t)
	if state.Status != domain.StatusError || state.Step != string(domain.StepEnrich) || state.Error == "" {
		t.Fatalf("unexpected error status %+v", state)
	}

	h.bus.Wait()
	select {
	case evt := <-failures:
		if evt.Step != string(domain.StepEnrich) || evt.RunID != "run-1" {
			t.Fatalf("unexpected failure event %+v", evt)
		}
	default:
		t.Fatal("expected a step failure event")
	}
}

func TestRunStep_DrafterFailureStopsTheRun(t *testing.T) {
	h := newHarness(t, newLeads(2), failingDrafter{})

	_, err := NewDriver(h.orch, logger.Nop()).Run(context.Background(), "")
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected drafter failure, got %v", err)
	}
	if state := h.status(t); state.Status != domain.StatusError || state.Step != string(domain.StepRecommend) {
		t.Fatalf("unexpected status %+v", state)
	}
	var dash domain.Dashboard
	if err := h.store.Get(context.Background(), checkpoint.KeyDashboard, &dash); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Fatalf("no dashboard should be published, got %v", err)
	}
}

func TestRunStep_CompletedRunCannotBeReplayed(t *testing.T) {
	h := newHarness(t, newLeads(1), nil)
	ctx := context.Background()

	if _, err := NewDriver(h.orch, logger.Nop()).Run(ctx, ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	_, err := h.orch.RunStep(ctx, domain.StepRequest{Step: domain.StepRecommend, RunID: "run-1"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for a finished run, got %v", err)
	}
}

func TestRunStep_EmptyPipelinePublishesEmptyDashboard(t *testing.T) {
	h := newHarness(t, nil, nil)

	report, err := NewDriver(h.orch, logger.Nop()).Run(context.Background(), "run-x")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.RunID != "run-x" {
		t.Fatalf("explicit run id should be kept, got %q", report.RunID)
	}
	var dash domain.Dashboard
	if err := h.store.Get(context.Background(), checkpoint.KeyDashboard, &dash); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(dash.Actions) != 0 || len(dash.NoAction) != 0 {
		t.Fatalf("expected empty dashboard, got %+v", dash)
	}
}

func TestStatus_IdleBeforeFirstRun(t *testing.T) {
	h := newHarness(t, nil, nil)
	if state := h.status(t); state.Status != domain.StatusIdle || state.Step != "none" {
		t.Fatalf("unexpected idle state %+v", state)
	}
}

func TestRunStep_RejectsUnknownStep(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.orch.RunStep(context.Background(), domain.StepRequest{Step: "complete"})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

type recordingChainer struct {
	reqs []domain.StepRequest
}

func (c *recordingChainer) EnqueueStep(_ context.Context, req domain.StepRequest) error {
	c.reqs = append(c.reqs, req)
	return nil
}

func TestLauncher_QueuesFirstStep(t *testing.T) {
	h := newHarness(t, newLeads(1), nil)
	chain := &recordingChainer{}

	launch, err := NewLauncher(h.orch, chain, logger.Nop()).Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if launch.Mode != LaunchQueued || launch.RunID != "run-1" {
		t.Fatalf("unexpected launch %+v", launch)
	}
	if len(chain.reqs) != 1 || chain.reqs[0].Step != domain.StepOpportunities || chain.reqs[0].RunID != "run-1" {
		t.Fatalf("unexpected enqueued requests %+v", chain.reqs)
	}
}
