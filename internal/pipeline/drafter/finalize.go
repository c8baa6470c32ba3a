package drafter

import (
	"encoding/json"
	"fmt"
	"slices"

	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/phone"
)

// Finalize parses raw model output for leads. It reattaches contact
// metadata, conversation history and notes from the leads, and fails with a
// KindInternal error when a lead is missing, duplicated or unknown.
func Finalize(raw string, leads []domain.EnrichedLead) (domain.Recommendations, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return domain.Recommendations{}, apperr.Wrap(apperr.KindInternal, "drafter returned no JSON", err)
	}

	var out domain.Recommendations
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return domain.Recommendations{}, apperr.Wrap(apperr.KindInternal, "drafter returned invalid JSON", err)
	}
	if out.Actions == nil {
		out.Actions = []domain.ActionItem{}
	}
	if out.NoAction == nil {
		out.NoAction = []domain.NoActionItem{}
	}

	Reattach(&out, leads)
	if err := CheckCoverage(out, leads); err != nil {
		return domain.Recommendations{}, err
	}
	return out, nil
}

// Reattach copies lead-owned fields onto every item whose contactId matches.
// The contact phone is reformatted to E.164 when it parses.
func Reattach(recs *domain.Recommendations, leads []domain.EnrichedLead) {
	byContact := make(map[string]*domain.EnrichedLead, len(leads))
	for i := range leads {
		byContact[leads[i].ContactID] = &leads[i]
	}

	for i := range recs.Actions {
		a := &recs.Actions[i]
		lead, ok := byContact[a.ContactID]
		if !ok {
			continue
		}
		a.ContactName = lead.Name
		a.ContactEmail = lead.Email
		a.ContactPhone = phone.NormalizeE164(lead.Phone)
		a.OpportunityID = lead.ID
		a.Stage = lead.Stage
		a.ConversationHistory = lead.ConversationHistory
		a.Notes = lead.Notes
		a.International = lead.IsInternational
	}
	for i := range recs.NoAction {
		n := &recs.NoAction[i]
		if lead, ok := byContact[n.ContactID]; ok {
			n.ContactName = lead.Name
			n.Stage = lead.Stage
		}
	}
}

// CheckCoverage verifies each lead appears exactly once across actions and
// noAction, and that nothing refers to a lead outside the batch.
func CheckCoverage(recs domain.Recommendations, leads []domain.EnrichedLead) error {
	expected := make(map[string]bool, len(leads))
	for _, l := range leads {
		expected[l.ContactID] = true
	}

	seen := make(map[string]int, len(leads))
	var unknown []string
	count := func(contactID string) {
		if !expected[contactID] {
			unknown = append(unknown, contactID)
			return
		}
		seen[contactID]++
	}
	for _, a := range recs.Actions {
		count(a.ContactID)
	}
	for _, n := range recs.NoAction {
		count(n.ContactID)
	}

	var missing, duplicated []string
	for id := range expected {
		switch seen[id] {
		case 0:
			missing = append(missing, id)
		case 1:
		default:
			duplicated = append(duplicated, id)
		}
	}
	if len(missing) == 0 && len(duplicated) == 0 && len(unknown) == 0 {
		return nil
	}

	slices.Sort(missing)
	slices.Sort(duplicated)
	return apperr.Internal(fmt.Sprintf("drafter coverage violated: %d missing, %d duplicated, %d unknown",
		len(missing), len(duplicated), len(unknown))).
		WithDetails(map[string][]string{"missing": missing, "duplicated": duplicated, "unknown": unknown})
}
