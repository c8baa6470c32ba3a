// Package ingest fetches the pipeline's opportunities and normalizes active
// ones into leads.
package ingest

import (
	"context"
	"time"

	"lead_triage_backend/internal/crm"
	"lead_triage_backend/internal/pipeline/calendar"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"
)

// OpportunitySource is the CRM call ingestion needs.
type OpportunitySource interface {
	SearchOpportunities(ctx context.Context, pipelineID, locationID string) ([]crm.Opportunity, error)
}

// Options scope ingestion to one CRM pipeline.
type Options struct {
	PipelineID   string
	LocationID   string
	Stages       domain.StageTable
	CustomFields map[string]string
}

// Ingestor turns the opportunity search into domain.Opportunities.
type Ingestor struct {
	source OpportunitySource
	opts   Options
	log    *logger.Logger
	now    func() time.Time
}

// New creates an ingestor. Zero-valued Stages and CustomFields use the
// production tables.
func New(source OpportunitySource, opts Options, log *logger.Logger) *Ingestor {
	if opts.Stages.Empty() {
		opts.Stages = domain.DefaultStages()
	}
	if opts.CustomFields == nil {
		opts.CustomFields = domain.DefaultCustomFields()
	}
	return &Ingestor{source: source, opts: opts, log: log, now: time.Now}
}

// Fetch runs the opportunity search. Any CRM failure is fatal.
func (i *Ingestor) Fetch(ctx context.Context) (domain.Opportunities, error) {
	opps, err := i.source.SearchOpportunities(ctx, i.opts.PipelineID, i.opts.LocationID)
	if err != nil {
		return domain.Opportunities{}, apperr.Unavailable("ingestion failed", err).WithOp("ingest.Fetch")
	}
	result := Partition(opps, i.opts.Stages, i.opts.CustomFields, i.now())
	i.log.Info("ingest: opportunities partitioned",
		"fetched", len(opps), "active", len(result.Active), "inactive", len(result.InactiveSummary))
	return result, nil
}

// Partition splits opportunities into active leads and an inactive tally by
// stage name. Opportunities in unknown stages are dropped.
func Partition(opps []crm.Opportunity, stages domain.StageTable, fields map[string]string, now time.Time) domain.Opportunities {
	out := domain.Opportunities{
		Active:          []domain.Lead{},
		InactiveSummary: map[string]int{},
	}
	for _, opp := range opps {
		stage, ok := stages.Lookup(opp.PipelineStageID)
		if !ok {
			continue
		}
		if !stage.Active {
			out.InactiveSummary[stage.Name]++
			continue
		}
		out.Active = append(out.Active, Normalize(opp, stage, fields, now))
	}
	return out
}

// Normalize projects one active opportunity onto a Lead.
func Normalize(opp crm.Opportunity, stage domain.Stage, fields map[string]string, now time.Time) domain.Lead {
	name := opp.Contact.Name
	if name == "" {
		name = "Unknown"
	}
	lead := domain.Lead{
		ID:            opp.ID,
		Name:          name,
		Email:         opp.Contact.Email,
		Phone:         opp.Contact.Phone,
		ContactID:     opp.Contact.ID,
		Stage:         stage.Name,
		StageID:       stage.ID,
		Source:        opp.Source,
		MonetaryValue: opp.MonetaryValue,
		DaysCreated:   calendar.CalendarDaysSince(opp.CreatedAt.Time, now),
		DaysInStage:   calendar.CalendarDaysSince(opp.StageChangedAt().Time, now),
	}

	for _, cf := range opp.CustomFields {
		switch fields[cf.ID] {
		case domain.FieldArtwork:
			urls := make([]string, 0, len(cf.FieldValueFiles))
			for _, f := range cf.FieldValueFiles {
				urls = append(urls, f.URL)
			}
			lead.Artwork = urls
		case domain.FieldQuantity:
			lead.Quantity = cf.FieldValueString
		case domain.FieldProjectDetails:
			lead.ProjectDetails = cf.FieldValueString
		case domain.FieldServiceType:
			lead.ServiceType = cf.FieldValueString
		case domain.FieldBudget:
			lead.Budget = cf.FieldValueString
		case domain.FieldSizes:
			lead.Sizes = cf.FieldValueString
		}
	}
	return lead
}
