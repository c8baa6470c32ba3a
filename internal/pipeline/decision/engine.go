package decision

import (
	"fmt"

	"lead_triage_backend/internal/pipeline/calendar"
	"lead_triage_backend/internal/pipeline/domain"
)

// Engine applies Rules. It is stateless and safe for concurrent use.
type Engine struct {
	rules Rules
}

// NewEngine creates an engine for rules.
func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Rules returns the engine's rules.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Evaluate is Decide followed by ApplyCooldown.
func (e *Engine) Evaluate(lead domain.EnrichedLead) domain.Decision {
	return e.ApplyCooldown(lead, e.Decide(lead))
}

// ValueTier classifies a lead by budget label, then by monetary value.
func (e *Engine) ValueTier(lead domain.Lead) Tier {
	if tier, ok := e.rules.BudgetTiers[lead.Budget]; ok {
		return tier
	}
	switch {
	case lead.MonetaryValue >= e.rules.HighValueMin:
		return TierHigh
	case lead.MonetaryValue >= e.rules.StandardValueMin:
		return TierStandard
	default:
		return TierLow
	}
}

func (e *Engine) thresholds(stage string, tier Tier) Thresholds {
	if stage == domain.StageQuoteSent {
		return e.rules.QuoteSent
	}
	if t, ok := e.rules.Tiers[tier]; ok {
		return t
	}
	return e.rules.Tiers[TierStandard]
}

func decision(a domain.Action, p domain.Priority, hint string, args ...any) domain.Decision {
	if len(args) > 0 {
		hint = fmt.Sprintf(hint, args...)
	}
	return domain.Decision{Action: a, Priority: p, Hint: hint}
}

// Decide walks the rule ladder; the first matching rule wins.
func (e *Engine) Decide(lead domain.EnrichedLead) domain.Decision {
	stage := lead.Stage
	tier := e.ValueTier(lead.Lead)
	t := e.thresholds(stage, tier)
	minAttempts := e.rules.MinAttempts[tier]
	outbound := lead.OutboundCount

	bdays := calendar.ApproxBusinessDays(lead.DaysInStage)
	if lead.DaysSinceLastContact != nil {
		bdays = *lead.DaysSinceLastContact
	}
	stale := bdays >= t.Move
	enoughAttempts := outbound >= minAttempts

	if lead.NeedsReply {
		return decision(domain.ActionReply, domain.PriorityHigh, "Inbound message waiting — reply needed")
	}

	if stage == domain.StageNewLead || !lead.HasManualOutreach {
		label := "No manual outreach yet"
		if stage == domain.StageNewLead {
			label = "New lead"
		}
		return decision(domain.ActionOutreach, domain.PriorityHigh, "%s — send personalized welcome", label)
	}

	if stage == domain.StageNeedsAttention {
		if stale && enoughAttempts {
			return decision(domain.ActionMove, domain.PriorityHigh, "Needs Attention but %d bdays, %d attempts — consider Cooled Off", bdays, outbound)
		}
		if lead.IsInternational {
			return decision(domain.ActionFollowUpEmail, domain.PriorityHigh, "Flagged for attention — international, email only")
		}
		return decision(domain.ActionCall, domain.PriorityHigh, "Flagged for attention — call or email")
	}

	if stage == domain.StageQuoteSent {
		return e.decideQuoteSent(lead, t, bdays, outbound, minAttempts)
	}

	if tier == TierHigh && t.HVExtra != nil && bdays >= *t.HVExtra && bdays < t.Move {
		if lead.IsInternational {
			return decision(domain.ActionFollowUpEmail, domain.PriorityHigh, "High-value lead at %d bdays, international — extra email before closing out", bdays)
		}
		return decision(domain.ActionHighValueFollowup, domain.PriorityHigh, "High-value lead at %d bdays — extra attempt before closing out", bdays)
	}

	if stale && enoughAttempts {
		return decision(domain.ActionMove, domain.PriorityInfo, "%d bdays in %s, %d attempts, no response — move to Cooled Off", bdays, stage, outbound)
	}
	if stale {
		return decision(domain.ActionFollowUpEmail, domain.PriorityMedium, "%d bdays in %s but only %d/%d attempts — follow up before closing", bdays, stage, outbound, minAttempts)
	}
	if bdays >= t.Final {
		return decision(domain.ActionFinalAttemptEmail, domain.PriorityMedium, "%d bdays no response — final follow-up before moving to Cooled Off", bdays)
	}
	if bdays >= t.Followup {
		return decision(domain.ActionFollowUpEmail, domain.PriorityMedium, "%d bdays no response — follow-up email", bdays)
	}
	if bdays >= t.Call {
		if lead.IsInternational {
			return decision(domain.ActionFollowUpEmail, domain.PriorityMedium, "%d bday(s) no response, international — email only", bdays)
		}
		return decision(domain.ActionCall, domain.PriorityHigh, "%d bday(s) no response, domestic — call them", bdays)
	}
	return decision(domain.ActionNone, domain.PriorityNone, "Contacted recently, waiting for response")
}

func (e *Engine) decideQuoteSent(lead domain.EnrichedLead, t Thresholds, bdays, outbound, minAttempts int) domain.Decision {
	switch {
	case bdays >= t.Move && outbound >= minAttempts:
		return decision(domain.ActionMove, domain.PriorityInfo, "%d bdays since quote sent, %d attempts, no response — move to Cooled Off", bdays, outbound)
	case bdays >= t.Move:
		return decision(domain.ActionFollowUpEmail, domain.PriorityMedium, "%d bdays since quote sent but only %d/%d attempts — follow up before closing", bdays, outbound, minAttempts)
	case bdays >= t.Final:
		return decision(domain.ActionFinalAttemptEmail, domain.PriorityMedium, "%d bdays since quote sent — final follow-up before closing", bdays)
	case bdays >= t.Followup:
		return decision(domain.ActionFollowUpEmail, domain.PriorityMedium, "%d bdays since quote sent — check if they have questions", bdays)
	case bdays >= t.Call && lead.IsInternational:
		return decision(domain.ActionFollowUpEmail, domain.PriorityMedium, "%d bday(s) since quote sent, international — email follow-up", bdays)
	case bdays >= t.Call:
		return decision(domain.ActionCall, domain.PriorityHigh, "%d bday(s) since quote sent — call to discuss", bdays)
	default:
		return decision(domain.ActionNone, domain.PriorityNone, "Quote sent recently, waiting for response")
	}
}
