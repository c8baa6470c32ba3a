package drafter

import (
	"context"
	"fmt"

	"lead_triage_backend/internal/pipeline/domain"
)

// RulesDrafter builds recommendations straight from the decision engine's
// suggestions, without drafted copy. It serves runs with no model configured.
type RulesDrafter struct {
	stages domain.StageTable
}

// NewRulesDrafter creates a rules-only drafter.
func NewRulesDrafter(stages domain.StageTable) *RulesDrafter {
	return &RulesDrafter{stages: stages}
}

var actionLabels = map[domain.Action]string{
	domain.ActionReply:             "Reply to inbound message",
	domain.ActionOutreach:          "Send first outreach",
	domain.ActionCall:              "Call",
	domain.ActionFollowUpEmail:     "Send follow-up email",
	domain.ActionFinalAttemptEmail: "Send final follow-up email",
	domain.ActionHighValueFollowup: "High-value follow-up call",
	domain.ActionMove:              "Move to Cooled Off",
}

// Draft maps each lead's suggestion to an action, or to noAction for "none".
func (d *RulesDrafter) Draft(_ context.Context, req DraftRequest) (domain.Recommendations, error) {
	out := domain.Recommendations{Actions: []domain.ActionItem{}, NoAction: []domain.NoActionItem{}}
	for _, lead := range req.Leads {
		if lead.SuggestedAction == domain.ActionNone || lead.SuggestedAction == "" {
			out.NoAction = append(out.NoAction, domain.NoActionItem{ContactID: lead.ContactID, Reason: lead.Hint})
			continue
		}

		item := domain.ActionItem{
			ID:             len(out.Actions) + 1,
			Priority:       string(lead.SuggestedPriority),
			ActionType:     string(lead.SuggestedAction),
			Label:          fmt.Sprintf("%s: %s", actionLabels[lead.SuggestedAction], lead.Name),
			ContactID:      lead.ContactID,
			Context:        lead.Hint,
			Recommendation: lead.Hint,
		}
		switch lead.SuggestedAction {
		case domain.ActionFollowUpEmail, domain.ActionFinalAttemptEmail, domain.ActionOutreach, domain.ActionReply:
			item.MessageType = domain.MessageTypeEmail
		case domain.ActionMove:
			item.TargetStageID = d.stages.IDOf(domain.StageCooledOff)
		}
		out.Actions = append(out.Actions, item)
	}

	Reattach(&out, req.Leads)
	if err := CheckCoverage(out, req.Leads); err != nil {
		return domain.Recommendations{}, err
	}
	return out, nil
}
