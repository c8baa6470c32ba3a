package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"lead_triage_backend/internal/crm"
	"lead_triage_backend/internal/events"
	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"
)

// ActionCRM is the slice of the CRM client that dashboard actions use.
type ActionCRM interface {
	SendMessage(ctx context.Context, req crm.SendMessageRequest) (string, error)
	UpdateOpportunityStage(ctx context.Context, opportunityID, stageID string) error
	CreateNote(ctx context.Context, contactID, text string) error
}

// SendInput overrides the drafted message. Empty fields fall back to the action.
type SendInput struct {
	Type    string
	Subject string
	HTML    string
	Message string
}

// SendResult is returned after a message is accepted by the CRM.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// Actions executes operator decisions on the published dashboard.
type Actions struct {
	store     checkpoint.Store
	crm       ActionCRM
	stages    domain.StageTable
	emailFrom string
	eventBus  events.Bus
	log       *logger.Logger
	now       func() time.Time

	// serializes ledger read-modify-write within this process
	ledgerMu sync.Mutex
}

// NewActions creates the action service.
func NewActions(store checkpoint.Store, client ActionCRM, stages domain.StageTable, emailFrom string, eventBus events.Bus, log *logger.Logger) *Actions {
	if stages.Empty() {
		stages = domain.DefaultStages()
	}
	return &Actions{
		store:     store,
		crm:       client,
		stages:    stages,
		emailFrom: emailFrom,
		eventBus:  eventBus,
		log:       log,
		now:       time.Now,
	}
}

// Dashboard returns the last published dashboard, or an empty one.
func (a *Actions) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	var d domain.Dashboard
	if err := a.store.Get(ctx, checkpoint.KeyDashboard, &d); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return domain.EmptyDashboard(), nil
		}
		return domain.Dashboard{}, apperr.Unavailable("dashboard read failed", err).WithOp("actions.Dashboard")
	}
	if d.Actions == nil {
		d.Actions = []domain.ActionItem{}
	}
	if d.NoAction == nil {
		d.NoAction = []domain.NoActionItem{}
	}
	if d.InactiveSummary == nil {
		d.InactiveSummary = map[string]int{}
	}
	return d, nil
}

// Ledger returns the sent-status ledger.
func (a *Actions) Ledger(ctx context.Context) (domain.Ledger, error) {
	ledger := domain.Ledger{}
	if err := a.store.Get(ctx, checkpoint.KeyLedger, &ledger); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return domain.Ledger{}, nil
		}
		return nil, apperr.Unavailable("ledger read failed", err).WithOp("actions.Ledger")
	}
	return ledger, nil
}

// MergeLedger overlays patch onto the stored ledger.
func (a *Actions) MergeLedger(ctx context.Context, patch domain.Ledger) (domain.Ledger, error) {
	a.ledgerMu.Lock()
	defer a.ledgerMu.Unlock()

	current, err := a.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	merged := current.Merge(patch)
	if err := a.store.Put(ctx, checkpoint.KeyLedger, merged); err != nil {
		return nil, apperr.Unavailable("ledger write failed", err).WithOp("actions.MergeLedger")
	}
	return merged, nil
}

// Send delivers the drafted email or SMS for key. A New Lead opportunity is
// moved to In Progress once the message is out.
func (a *Actions) Send(ctx context.Context, key domain.LedgerKey, in SendInput, operator string) (SendResult, error) {
	action, err := a.action(ctx, key.ActionID)
	if err != nil {
		return SendResult{}, err
	}
	if action.ContactID == "" {
		return SendResult{}, apperr.Validation("action has no contact")
	}

	req := crm.SendMessageRequest{
		Type:      messageType(in.Type, key.Channel, action.MessageType),
		ContactID: action.ContactID,
	}
	switch req.Type {
	case domain.MessageTypeEmail:
		req.Subject = firstNonEmpty(in.Subject, action.Subject)
		req.HTML = in.HTML
		req.Message = firstNonEmpty(in.Message, action.Message)
		req.EmailFrom = a.emailFrom
	case domain.MessageTypeSMS:
		req.Message = firstNonEmpty(in.Message, action.SMSMessage, action.Message)
	default:
		return SendResult{}, apperr.Validation("unsupported message type").WithDetails(map[string]string{"type": req.Type})
	}
	if strings.TrimSpace(req.Message) == "" && req.HTML == "" {
		return SendResult{}, apperr.Validation("message is required")
	}

	messageID, err := a.crm.SendMessage(ctx, req)
	if err != nil {
		return SendResult{}, err
	}

	if action.Stage == domain.StageNewLead && action.OpportunityID != "" {
		if inProgress := a.stages.IDOf(domain.StageInProgress); inProgress != "" {
			if err := a.crm.UpdateOpportunityStage(ctx, action.OpportunityID, inProgress); err != nil {
				a.log.Warn("actions: stage promotion after send failed",
					"opportunityId", action.OpportunityID,
					"error", err)
			}
		}
	}

	if err := a.record(ctx, key, domain.LedgerSent, action.ContactID, operator); err != nil {
		return SendResult{}, err
	}
	a.log.Info("actions: message sent", "key", key.String(), "type", req.Type, "contactId", action.ContactID)
	return SendResult{Success: true, MessageID: messageID}, nil
}

// Move changes the opportunity's stage. targetStageID overrides the drafted target.
func (a *Actions) Move(ctx context.Context, actionID int, targetStageID, operator string) error {
	action, err := a.action(ctx, actionID)
	if err != nil {
		return err
	}
	target := firstNonEmpty(targetStageID, action.TargetStageID)
	if target == "" {
		return apperr.BadRequest("No target stage specified")
	}
	if action.OpportunityID == "" {
		return apperr.Validation("action has no opportunity")
	}
	if err := a.crm.UpdateOpportunityStage(ctx, action.OpportunityID, target); err != nil {
		return err
	}
	key := domain.LedgerKey{ActionID: actionID, Channel: domain.ChannelMove}
	return a.record(ctx, key, domain.LedgerMoved, action.ContactID, operator)
}

// Note adds an internal CRM note. channel is ChannelNote or ChannelCallNote.
func (a *Actions) Note(ctx context.Context, actionID int, body string, channel domain.Channel, operator string) error {
	if channel != domain.ChannelCallNote {
		channel = domain.ChannelNote
	}
	if strings.TrimSpace(body) == "" {
		return apperr.Validation("note body is required")
	}
	action, err := a.action(ctx, actionID)
	if err != nil {
		return err
	}
	if action.ContactID == "" {
		return apperr.Validation("action has no contact")
	}
	if err := a.crm.CreateNote(ctx, action.ContactID, body); err != nil {
		return err
	}
	key := domain.LedgerKey{ActionID: actionID, Channel: channel}
	return a.record(ctx, key, domain.LedgerNoted, action.ContactID, operator)
}

// Dismiss marks key as handled without contacting anyone.
func (a *Actions) Dismiss(ctx context.Context, key domain.LedgerKey, operator string) error {
	return a.record(ctx, key, domain.LedgerDismissed, "", operator)
}

func (a *Actions) action(ctx context.Context, id int) (domain.ActionItem, error) {
	var d domain.Dashboard
	if err := a.store.Get(ctx, checkpoint.KeyDashboard, &d); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return domain.ActionItem{}, apperr.NotFound("No dashboard data")
		}
		return domain.ActionItem{}, apperr.Unavailable("dashboard read failed", err).WithOp("actions.action")
	}
	action, ok := d.FindAction(id)
	if !ok {
		return domain.ActionItem{}, apperr.NotFound("Action not found")
	}
	return action, nil
}

func (a *Actions) record(ctx context.Context, key domain.LedgerKey, status domain.LedgerStatus, contactID, operator string) error {
	entry := domain.LedgerEntry{Status: status, TS: a.now().UnixMilli()}
	if _, err := a.MergeLedger(ctx, domain.Ledger{key: entry}); err != nil {
		return err
	}
	if a.eventBus != nil {
		a.eventBus.Publish(ctx, events.ActionExecuted{
			BaseEvent: events.NewBaseEvent(),
			Key:       key.String(),
			Status:    string(status),
			ContactID: contactID,
			Operator:  operator,
		})
	}
	return nil
}

// messageType picks the explicit type, then the key's channel, then the draft.
func messageType(explicit string, channel domain.Channel, drafted string) string {
	if explicit != "" {
		return explicit
	}
	switch channel {
	case domain.ChannelSMS:
		return domain.MessageTypeSMS
	case domain.ChannelEmail:
		return domain.MessageTypeEmail
	}
	return firstNonEmpty(drafted, domain.MessageTypeEmail)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
