package decision

import (
	"lead_triage_backend/internal/pipeline/domain"
)

// ApplyCooldown suppresses or downgrades d when the lead's channels were used
// too recently. Reply, outreach and move are never touched.
func (e *Engine) ApplyCooldown(lead domain.EnrichedLead, d domain.Decision) domain.Decision {
	if e.rules.bypassesCooldown(d.Action) {
		return d
	}
	cd := e.rules.Cooldown
	call, sms, email := lead.DaysSinceLastCall, lead.DaysSinceLastSMS, lead.DaysSinceLastEmail

	// Full press: a call plus SMS or email within one business day of each other.
	if call != nil && (sms != nil || email != nil) {
		other := minKnown(sms, email)
		if abs(*call-other) <= 1 {
			recent := min(*call, other)
			if recent < cd.MultiChannel {
				return decision(domain.ActionNone, domain.PriorityNone,
					"Cooldown: full press %d bday(s) ago, wait %d more bday(s)", recent, cd.MultiChannel-recent)
			}
		}
	}

	isCall := d.Action == domain.ActionCall || d.Action == domain.ActionHighValueFollowup
	if isCall && call != nil && *call < cd.Call {
		if email == nil || *email >= cd.Email {
			return decision(domain.ActionFollowUpEmail, d.Priority,
				"Cooldown: called %d bday(s) ago — email instead", *call)
		}
		return decision(domain.ActionNone, domain.PriorityNone,
			"Cooldown: called %d bday(s) ago, emailed %d bday(s) ago — wait", *call, *email)
	}

	isEmail := d.Action == domain.ActionFollowUpEmail || d.Action == domain.ActionFinalAttemptEmail
	if isEmail && email != nil && *email < cd.Email {
		return decision(domain.ActionNone, domain.PriorityNone,
			"Cooldown: emailed %d bday(s) ago, wait %d more bday(s)", *email, cd.Email-*email)
	}

	return d
}

// minKnown is the smaller of the non-nil values. At least one must be set.
func minKnown(a, b *int) int {
	switch {
	case a == nil:
		return *b
	case b == nil:
		return *a
	default:
		return min(*a, *b)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
