package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lead_triage_backend/internal/crm"
	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"
)

type stageMove struct {
	opportunityID string
	stageID       string
}

type fakeActionCRM struct {
	sent     []crm.SendMessageRequest
	moves    []stageMove
	notes    map[string][]string
	sendErr  error
	stageErr error
}

func (f *fakeActionCRM) SendMessage(_ context.Context, req crm.SendMessageRequest) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, req)
	return "msg-1", nil
}

func (f *fakeActionCRM) UpdateOpportunityStage(_ context.Context, opportunityID, stageID string) error {
	f.moves = append(f.moves, stageMove{opportunityID: opportunityID, stageID: stageID})
	return f.stageErr
}

func (f *fakeActionCRM) CreateNote(_ context.Context, contactID, text string) error {
	if f.notes == nil {
		f.notes = map[string][]string{}
	}
	f.notes[contactID] = append(f.notes[contactID], text)
	return nil
}

func newActions(t *testing.T, actions ...domain.ActionItem) (*Actions, *fakeActionCRM, *checkpoint.MemoryStore) {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	if actions != nil {
		dash := domain.EmptyDashboard()
		dash.Actions = actions
		if err := store.Put(context.Background(), checkpoint.KeyDashboard, dash); err != nil {
			t.Fatal(err)
		}
	}
	client := &fakeActionCRM{}
	svc := NewActions(store, client, domain.DefaultStages(), "sales@example.com", nil, logger.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc, client, store
}

func TestSend_EmailUsesOverridesAndPromotesNewLead(t *testing.T) {
	svc, client, _ := newActions(t, domain.ActionItem{
		ID:            1,
		ContactID:     "c-1",
		OpportunityID: "opp-1",
		Stage:         domain.StageNewLead,
		MessageType:   domain.MessageTypeEmail,
		Subject:       "Drafted subject",
		Message:       "Drafted body",
	})

	res, err := svc.Send(context.Background(), domain.LedgerKey{ActionID: 1}, SendInput{Subject: "Edited"}, "ops")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Success || res.MessageID != "msg-1" {
		t.Fatalf("unexpected result %+v", res)
	}

	req := client.sent[0]
	if req.Type != domain.MessageTypeEmail || req.Subject != "Edited" || req.Message != "Drafted body" || req.EmailFrom != "sales@example.com" {
		t.Fatalf("unexpected send request %+v", req)
	}
	inProgress := domain.DefaultStages().IDOf(domain.StageInProgress)
	if len(client.moves) != 1 || client.moves[0].stageID != inProgress {
		t.Fatalf("expected promotion to In Progress, got %+v", client.moves)
	}

	ledger, _ := svc.Ledger(context.Background())
	entry := ledger[domain.LedgerKey{ActionID: 1}]
	if entry.Status != domain.LedgerSent || entry.TS != fixedNow.UnixMilli() {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
}

func TestSend_SMSChannelAndPromotionFailureIsNotFatal(t *testing.T) {
	svc, client, _ := newActions(t, domain.ActionItem{
		ID:            2,
		ContactID:     "c-2",
		OpportunityID: "opp-2",
		Stage:         domain.StageNewLead,
		MessageType:   domain.MessageTypeEmail,
		Message:       "Email body",
		SMSMessage:    "Text body",
	})
	client.stageErr = errors.New("crm down")

	key := domain.LedgerKey{ActionID: 2, Channel: domain.ChannelSMS}
	if _, err := svc.Send(context.Background(), key, SendInput{}, "ops"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if req := client.sent[0]; req.Type != domain.MessageTypeSMS || req.Message != "Text body" || req.Subject != "" {
		t.Fatalf("unexpected sms request %+v", req)
	}
	ledger, _ := svc.Ledger(context.Background())
	if ledger[key].Status != domain.LedgerSent {
		t.Fatalf("expected %s to be recorded, got %v", key, ledger)
	}
}

func TestSend_FailuresLeaveLedgerUntouched(t *testing.T) {
	svc, client, _ := newActions(t, domain.ActionItem{ID: 1, ContactID: "c-1", Message: "hi"})
	client.sendErr = apperr.Unavailable("crm request failed", errors.New("503"))

	if _, err := svc.Send(context.Background(), domain.LedgerKey{ActionID: 1}, SendInput{}, "ops"); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := svc.Send(context.Background(), domain.LedgerKey{ActionID: 9}, SendInput{}, "ops"); apperr.Message(err) != "Action not found" {
		t.Fatalf("expected missing action, got %v", err)
	}
	ledger, _ := svc.Ledger(context.Background())
	if len(ledger) != 0 {
		t.Fatalf("ledger should be empty, got %v", ledger)
	}
}

func TestSend_NoDashboard(t *testing.T) {
	svc, _, _ := newActions(t)
	_, err := svc.Send(context.Background(), domain.LedgerKey{ActionID: 1}, SendInput{}, "ops")
	if !apperr.Is(err, apperr.KindNotFound) || apperr.Message(err) != "No dashboard data" {
		t.Fatalf("expected no dashboard, got %v", err)
	}
}

func TestMove_TargetFromBodyOrAction(t *testing.T) {
	cooled := domain.DefaultStages().IDOf(domain.StageCooledOff)
	svc, client, _ := newActions(t,
		domain.ActionItem{ID: 1, ContactID: "c-1", OpportunityID: "opp-1", TargetStageID: cooled},
		domain.ActionItem{ID: 2, ContactID: "c-2", OpportunityID: "opp-2"},
	)
	ctx := context.Background()

	if err := svc.Move(ctx, 1, "", "ops"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := svc.Move(ctx, 2, "", "ops"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected missing target, got %v", err)
	}
	if err := svc.Move(ctx, 2, "custom-stage", "ops"); err != nil {
		t.Fatalf("move with override: %v", err)
	}

	if len(client.moves) != 2 || client.moves[0].stageID != cooled || client.moves[1].stageID != "custom-stage" {
		t.Fatalf("unexpected moves %+v", client.moves)
	}
	ledger, _ := svc.Ledger(ctx)
	if ledger[domain.LedgerKey{ActionID: 1, Channel: domain.ChannelMove}].Status != domain.LedgerMoved {
		t.Fatalf("expected 1_move in ledger, got %v", ledger)
	}
}

func TestNote_RecordsChannel(t *testing.T) {
	svc, client, _ := newActions(t, domain.ActionItem{ID: 3, ContactID: "c-3"})
	ctx := context.Background()

	if err := svc.Note(ctx, 3, "Left a voicemail", domain.ChannelCallNote, "ops"); err != nil {
		t.Fatalf("note: %v", err)
	}
	if err := svc.Note(ctx, 3, "   ", domain.ChannelNote, "ops"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for blank note, got %v", err)
	}
	if got := client.notes["c-3"]; len(got) != 1 || got[0] != "Left a voicemail" {
		t.Fatalf("unexpected notes %v", got)
	}
	ledger, _ := svc.Ledger(ctx)
	if ledger[domain.LedgerKey{ActionID: 3, Channel: domain.ChannelCallNote}].Status != domain.LedgerNoted {
		t.Fatalf("expected 3_callnote in ledger, got %v", ledger)
	}
}

func TestDismissAndMergeLedger(t *testing.T) {
	svc, _, _ := newActions(t)
	ctx := context.Background()

	if err := svc.Dismiss(ctx, domain.LedgerKey{ActionID: 4, Channel: domain.ChannelEmail}, "ops"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	merged, err := svc.MergeLedger(ctx, domain.Ledger{
		{ActionID: 5}: {Status: domain.LedgerSent, TS: 1},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged) != 2 || merged[domain.LedgerKey{ActionID: 4, Channel: domain.ChannelEmail}].Status != domain.LedgerDismissed {
		t.Fatalf("unexpected merged ledger %v", merged)
	}
}

func TestDashboard_EmptyBeforeFirstRun(t *testing.T) {
	svc, _, _ := newActions(t)
	dash, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.GeneratedAt != nil || dash.Actions == nil || dash.NoAction == nil {
		t.Fatalf("unexpected empty dashboard %+v", dash)
	}
}
