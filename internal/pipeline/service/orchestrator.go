// Package service runs the pipeline state machine and executes dashboard
// actions. All state lives in the checkpoint store; a step holds nothing in
// memory between invocations.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lead_triage_backend/internal/events"
	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/pipeline/conversation"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/internal/pipeline/drafter"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"
)

// Default batch sizes and lease TTL.
const (
	DefaultConversationBatchSize = 5
	DefaultRecommendBatchSize    = 8
	DefaultLockTTL               = 5 * time.Minute
)

// Ingestor fetches and partitions the active opportunities.
type Ingestor interface {
	Fetch(ctx context.Context) (domain.Opportunities, error)
}

// ConversationEnricher looks up conversation facts for a batch of leads.
type ConversationEnricher interface {
	Enrich(ctx context.Context, gate *conversation.Gate, leads []domain.Lead) (domain.ConversationMap, error)
}

// LeadBuilder merges leads with their conversation facts and decisions.
type LeadBuilder interface {
	Build(leads []domain.Lead, conversations domain.ConversationMap) []domain.EnrichedLead
}

// Options tunes the orchestrator.
type Options struct {
	ConversationBatchSize int
	RecommendBatchSize    int
	GateLimit             int
	LockTTL               time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConversationBatchSize <= 0 {
		o.ConversationBatchSize = DefaultConversationBatchSize
	}
	if o.RecommendBatchSize <= 0 {
		o.RecommendBatchSize = DefaultRecommendBatchSize
	}
	if o.GateLimit <= 0 {
		o.GateLimit = conversation.DefaultGateLimit
	}
	if o.LockTTL <= 0 {
		o.LockTTL = DefaultLockTTL
	}
	return o
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Store         checkpoint.Store
	Locker        checkpoint.Locker
	Ingestor      Ingestor
	Conversations ConversationEnricher
	Builder       LeadBuilder
	Drafter       drafter.Drafter
	EventBus      events.Bus
}

// Orchestrator executes one pipeline step per call.
type Orchestrator struct {
	store    checkpoint.Store
	locker   checkpoint.Locker
	ingest   Ingestor
	convs    ConversationEnricher
	builder  LeadBuilder
	drafter  drafter.Drafter
	eventBus events.Bus
	opts     Options
	log      *logger.Logger

	now      func() time.Time
	newRunID func() string
}

// NewOrchestrator wires the step machine.
func NewOrchestrator(deps Deps, opts Options, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:    deps.Store,
		locker:   deps.Locker,
		ingest:   deps.Ingestor,
		convs:    deps.Conversations,
		builder:  deps.Builder,
		drafter:  deps.Drafter,
		eventBus: deps.EventBus,
		opts:     opts.withDefaults(),
		log:      log,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// NewRunID returns a fresh run token.
func (o *Orchestrator) NewRunID() string {
	return o.newRunID()
}

// Status returns the current run state, or the idle state before any run.
func (o *Orchestrator) Status(ctx context.Context) (domain.RunState, error) {
	var state domain.RunState
	if err := o.store.Get(ctx, checkpoint.KeyStatus, &state); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return domain.IdleState(), nil
		}
		return domain.RunState{}, apperr.Unavailable("status read failed", err).WithOp("pipeline.Status")
	}
	return state, nil
}

// RunStep executes req under the pipeline lease.
func (o *Orchestrator) RunStep(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	if _, ok := domain.ParseStep(string(req.Step)); !ok {
		return domain.StepResult{}, apperr.BadRequest("unknown step").WithDetails(map[string]string{"step": string(req.Step)})
	}
	if req.Offset < 0 {
		return domain.StepResult{}, apperr.BadRequest("offset must not be negative")
	}

	lease, err := o.locker.Acquire(ctx, checkpoint.LeaseName, o.opts.LockTTL)
	if err != nil {
		if errors.Is(err, checkpoint.ErrLeaseHeld) {
			return domain.StepResult{}, apperr.Wrap(apperr.KindConflict, "pipeline is busy", err).WithOp("pipeline.RunStep")
		}
		return domain.StepResult{}, apperr.Unavailable("lease unavailable", err).WithOp("pipeline.RunStep")
	}
	keeper := newLeaseKeeper(o.locker, lease, o.opts.LockTTL, o.log)
	stepCtx, cancel := context.WithCancelCause(ctx)
	holding := make(chan struct{})
	go func() {
		defer close(holding)
		keeper.hold(stepCtx, cancel)
	}()
	defer func() {
		cancel(nil)
		<-holding
		if err := o.locker.Release(context.WithoutCancel(ctx), keeper.current()); err != nil {
			o.log.Warn("pipeline: lease release failed", "error", err)
		}
	}()
	store := fencedStore{Store: o.store, keeper: keeper}

	state, err := o.admit(stepCtx, req)
	if err != nil {
		return domain.StepResult{}, err
	}
	req.RunID = state.RunID
	log := o.log.WithRunID(state.RunID)

	if replay, ok := replayed(req, state); ok {
		log.StepEvent(string(req.Step), state.RunID, "replayed",
			"offset", req.Offset, "currentStep", state.Step, "currentOffset", state.Offset)
		return replay, nil
	}

	stepStarted := o.now()
	state.Status = domain.StatusRunning
	state.Step = string(req.Step)
	state.Offset = req.Offset
	state.StepStartedAt = &stepStarted
	state.UpdatedAt = &stepStarted
	state.Error = ""
	if err := putStatus(stepCtx, store, state); err != nil {
		return domain.StepResult{}, err
	}
	log.StepEvent(string(req.Step), state.RunID, "running", "offset", req.Offset)

	result, err := o.execute(stepCtx, store, req, state)
	if err != nil {
		if cause := context.Cause(stepCtx); cause != nil && apperr.Is(cause, apperr.KindConflict) {
			err = cause
		}
		if errors.Is(err, checkpoint.ErrLeaseLost) {
			log.StepEvent(string(req.Step), state.RunID, "abandoned", "offset", req.Offset, "error", err)
			return domain.StepResult{}, err
		}
		o.fail(stepCtx, store, log, state, err)
		return domain.StepResult{}, err
	}

	if err := o.advance(stepCtx, store, state, result); err != nil {
		return domain.StepResult{}, err
	}
	log.StepEvent(string(req.Step), state.RunID, "done",
		"offset", result.Offset,
		"batchSize", result.BatchSize,
		"total", result.Total,
		"done", result.Done,
		"durationMs", o.now().Sub(stepStarted).Milliseconds())
	return result, nil
}

// admit resolves the run a request belongs to. The opportunities step opens
// a run; every other step must carry the current run's token. An empty token
// binds to the current run. A request ahead of the run's position is a
// Conflict.
func (o *Orchestrator) admit(ctx context.Context, req domain.StepRequest) (domain.RunState, error) {
	if req.Step == domain.StepOpportunities {
		runID := req.RunID
		if runID == "" {
			runID = o.newRunID()
		}
		started := o.now()
		return domain.RunState{RunID: runID, StartedAt: &started}, nil
	}

	current, err := o.Status(ctx)
	if err != nil {
		return domain.RunState{}, err
	}
	if current.RunID == "" {
		return domain.RunState{}, apperr.NotFound("no pipeline run to continue").WithOp("pipeline.RunStep")
	}
	if req.RunID != "" && req.RunID != current.RunID {
		return domain.RunState{}, apperr.Conflict(msgStaleRun).
			WithOp("pipeline.RunStep").
			WithDetails(map[string]string{"runId": req.RunID, "current": current.RunID})
	}
	if current.Status == domain.StatusComplete {
		return domain.RunState{}, apperr.Conflict("run already complete").WithOp("pipeline.RunStep")
	}
	if comparePosition(req.Step, req.Offset, domain.Step(current.Step), current.Offset) > 0 {
		return domain.RunState{}, apperr.Conflict("step out of order").
			WithOp("pipeline.RunStep").
			WithDetails(map[string]any{
				"step": req.Step, "offset": req.Offset,
				"currentStep": current.Step, "currentOffset": current.Offset,
			})
	}
	return current, nil
}

// comparePosition orders (step, offset) pairs within a run.
func comparePosition(step domain.Step, offset int, otherStep domain.Step, otherOffset int) int {
	if d := step.Order() - otherStep.Order(); d != 0 {
		return d
	}
	return offset - otherOffset
}

// replayed answers a request for work the run already finished. Nothing is
// executed; the result points at the run's current position so a chain that
// lost its next hop resumes from there.
func replayed(req domain.StepRequest, state domain.RunState) (domain.StepResult, bool) {
	if req.Step == domain.StepOpportunities {
		return domain.StepResult{}, false
	}
	current := domain.Step(state.Step)
	if comparePosition(req.Step, req.Offset, current, state.Offset) >= 0 {
		return domain.StepResult{}, false
	}
	offset := state.Offset
	return domain.StepResult{
		Success:    true,
		Step:       current,
		RunID:      state.RunID,
		Offset:     offset,
		Total:      state.Total,
		NextOffset: &offset,
		NextStep:   current,
		Replayed:   true,
	}, true
}

func (o *Orchestrator) execute(ctx context.Context, store checkpoint.Store, req domain.StepRequest, state domain.RunState) (domain.StepResult, error) {
	switch req.Step {
	case domain.StepOpportunities:
		return o.runOpportunities(ctx, store, state)
	case domain.StepConversations:
		return o.runConversations(ctx, store, state.RunID, req.Offset)
	case domain.StepEnrich:
		return o.runEnrich(ctx, store, state.RunID)
	case domain.StepRecommend:
		return o.runRecommend(ctx, store, state, req.Offset)
	}
	return domain.StepResult{}, apperr.BadRequest("unknown step")
}

func (o *Orchestrator) runOpportunities(ctx context.Context, store checkpoint.Store, state domain.RunState) (domain.StepResult, error) {
	opps, err := o.ingest.Fetch(ctx)
	if err != nil {
		return domain.StepResult{}, err
	}
	if err := putRunDoc(ctx, store, checkpoint.KeyOpportunities, state.RunID, opps); err != nil {
		return domain.StepResult{}, err
	}

	o.publish(ctx, events.PipelineRunStarted{
		BaseEvent:   events.NewBaseEvent(),
		RunID:       state.RunID,
		ActiveLeads: len(opps.Active),
	})

	n := len(opps.Active)
	return domain.StepResult{
		Success:   true,
		Step:      domain.StepOpportunities,
		RunID:     state.RunID,
		BatchSize: n,
		Total:     n,
		Done:      true,
		NextStep:  domain.StepConversations,
	}, nil
}

func (o *Orchestrator) runConversations(ctx context.Context, store checkpoint.Store, runID string, offset int) (domain.StepResult, error) {
	opps, err := getRunDoc[domain.Opportunities](ctx, store, checkpoint.KeyOpportunities, runID, msgNoOpportunities)
	if err != nil {
		return domain.StepResult{}, err
	}

	start, end := window(offset, o.opts.ConversationBatchSize, len(opps.Active))
	batch := opps.Active[start:end]

	gate := conversation.NewGate(o.opts.GateLimit)
	found, err := o.convs.Enrich(ctx, gate, batch)
	if err != nil {
		return domain.StepResult{}, err
	}

	merged := found
	if offset > 0 {
		existing, _, err := getPartial[domain.ConversationMap](ctx, store, checkpoint.KeyConversations, runID)
		if err != nil {
			return domain.StepResult{}, err
		}
		merged = existing.Merge(found)
	}
	if merged == nil {
		merged = domain.ConversationMap{}
	}
	if err := putRunDoc(ctx, store, checkpoint.KeyConversations, runID, merged); err != nil {
		return domain.StepResult{}, err
	}

	return batchResult(domain.StepConversations, runID, offset, len(batch), end, len(opps.Active)), nil
}

func (o *Orchestrator) runEnrich(ctx context.Context, store checkpoint.Store, runID string) (domain.StepResult, error) {
	opps, err := getRunDoc[domain.Opportunities](ctx, store, checkpoint.KeyOpportunities, runID, msgNoOpportunities)
	if err != nil {
		return domain.StepResult{}, err
	}
	convs, err := getRunDoc[domain.ConversationMap](ctx, store, checkpoint.KeyConversations, runID, msgNoConversations)
	if err != nil {
		return domain.StepResult{}, err
	}

	enriched := o.builder.Build(opps.Active, convs)
	if enriched == nil {
		enriched = []domain.EnrichedLead{}
	}
	if err := putRunDoc(ctx, store, checkpoint.KeyEnriched, runID, enriched); err != nil {
		return domain.StepResult{}, err
	}

	return domain.StepResult{
		Success:   true,
		Step:      domain.StepEnrich,
		RunID:     runID,
		BatchSize: len(enriched),
		Total:     len(enriched),
		Done:      true,
		NextStep:  domain.StepRecommend,
	}, nil
}

func (o *Orchestrator) runRecommend(ctx context.Context, store checkpoint.Store, state domain.RunState, offset int) (domain.StepResult, error) {
	runID := state.RunID
	opps, err := getRunDoc[domain.Opportunities](ctx, store, checkpoint.KeyOpportunities, runID, msgNoOpportunities)
	if err != nil {
		return domain.StepResult{}, err
	}
	enriched, err := getRunDoc[[]domain.EnrichedLead](ctx, store, checkpoint.KeyEnriched, runID, msgNoEnriched)
	if err != nil {
		return domain.StepResult{}, err
	}

	start, end := window(offset, o.opts.RecommendBatchSize, len(enriched))
	batch := enriched[start:end]

	var drafted domain.Recommendations
	if len(batch) > 0 {
		drafted, err = o.drafter.Draft(ctx, drafter.DraftRequest{
			Leads:           batch,
			InactiveSummary: opps.InactiveSummary,
		})
		if err != nil {
			return domain.StepResult{}, err
		}
	}

	var existing domain.Recommendations
	if offset > 0 {
		existing, _, err = getPartial[domain.Recommendations](ctx, store, checkpoint.KeyRecommendations, runID)
		if err != nil {
			return domain.StepResult{}, err
		}
	}
	merged := existing.Append(drafted)

	result := batchResult(domain.StepRecommend, runID, offset, len(batch), end, len(enriched))
	if !result.Done {
		if err := putRunDoc(ctx, store, checkpoint.KeyRecommendations, runID, merged); err != nil {
			return domain.StepResult{}, err
		}
		return result, nil
	}

	if err := o.publishDashboard(ctx, store, merged, opps.InactiveSummary); err != nil {
		return domain.StepResult{}, err
	}

	var elapsed float64
	if state.StartedAt != nil {
		elapsed = o.now().Sub(*state.StartedAt).Seconds()
	}
	o.publish(ctx, events.PipelineRunCompleted{
		BaseEvent:   events.NewBaseEvent(),
		RunID:       runID,
		Actions:     len(merged.Actions),
		NoAction:    len(merged.NoAction),
		Inactive:    opps.InactiveSummary,
		DurationSec: elapsed,
	})
	return result, nil
}

// publishDashboard writes the final dashboard and resets the ledger.
func (o *Orchestrator) publishDashboard(ctx context.Context, store checkpoint.Store, recs domain.Recommendations, inactive map[string]int) error {
	generated := o.now()
	if inactive == nil {
		inactive = map[string]int{}
	}
	dashboard := domain.Dashboard{
		Actions:         recs.Actions,
		NoAction:        recs.NoAction,
		InactiveSummary: inactive,
		GeneratedAt:     &generated,
	}
	if err := store.Put(ctx, checkpoint.KeyDashboard, dashboard); err != nil {
		return writeErr(err, "dashboard write failed", "pipeline.publishDashboard")
	}
	if err := store.Put(ctx, checkpoint.KeyLedger, domain.Ledger{}); err != nil {
		return writeErr(err, "ledger reset failed", "pipeline.publishDashboard")
	}
	return nil
}

// advance records where the run goes after a successful step.
func (o *Orchestrator) advance(ctx context.Context, store checkpoint.Store, state domain.RunState, result domain.StepResult) error {
	updated := o.now()
	state.UpdatedAt = &updated
	state.StepStartedAt = nil
	state.Total = result.Total

	next, ok := result.NextRequest()
	switch {
	case !ok:
		state.Status = domain.StatusComplete
		state.Step = string(domain.StepComplete)
		state.Offset = 0
	default:
		state.Status = domain.StatusRunning
		state.Step = string(next.Step)
		state.Offset = next.Offset
	}
	return putStatus(ctx, store, state)
}

func (o *Orchestrator) fail(ctx context.Context, store checkpoint.Store, log *logger.Logger, state domain.RunState, stepErr error) {
	ctx = context.WithoutCancel(ctx)
	failed := o.now()
	step := state.Step

	state.Status = domain.StatusError
	state.Error = stepErr.Error()
	state.UpdatedAt = &failed
	if err := putStatus(ctx, store, state); err != nil {
		log.Error("pipeline: failed to record step error", "error", err)
	}
	log.StepEvent(step, state.RunID, "error", "offset", state.Offset, "error", stepErr)

	o.publish(ctx, events.PipelineStepFailed{
		BaseEvent: events.NewBaseEvent(),
		RunID:     state.RunID,
		Step:      step,
		Offset:    state.Offset,
		Error:     stepErr.Error(),
	})
}

func putStatus(ctx context.Context, store checkpoint.Store, state domain.RunState) error {
	if err := store.Put(ctx, checkpoint.KeyStatus, state); err != nil {
		return writeErr(err, "status write failed", "pipeline.putStatus")
	}
	return nil
}

// writeErr keeps classified errors, such as a lost lease, and reports any
// other store failure as Unavailable.
func writeErr(err error, message, op string) error {
	if apperr.GetKind(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Unavailable(message, err).WithOp(op)
}

func (o *Orchestrator) publish(ctx context.Context, evt events.Event) {
	if o.eventBus == nil {
		return
	}
	o.eventBus.Publish(ctx, evt)
}

// window clamps [offset, offset+size) to total.
func window(offset, size, total int) (int, int) {
	start := min(offset, total)
	return start, min(start+size, total)
}

func batchResult(step domain.Step, runID string, offset, batchSize, end, total int) domain.StepResult {
	result := domain.StepResult{
		Success:   true,
		Step:      step,
		RunID:     runID,
		Offset:    offset,
		BatchSize: batchSize,
		Total:     total,
		Done:      end >= total,
		NextStep:  step,
	}
	if result.Done {
		result.NextStep = step.Next()
		return result
	}
	next := end
	result.NextOffset = &next
	return result
}
