// Package drafter turns enriched leads into operator-ready action items.
// Drafters return raw model text; Finalize extracts the JSON, reattaches lead
// metadata and checks that every lead is accounted for exactly once.
package drafter

import (
	"context"

	"lead_triage_backend/internal/pipeline/domain"
)

// DraftRequest is one recommend batch.
type DraftRequest struct {
	Leads           []domain.EnrichedLead
	InactiveSummary map[string]int
}

// Drafter drafts recommendations for a batch of leads.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (domain.Recommendations, error)
}
