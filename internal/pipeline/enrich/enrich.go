// Package enrich combines a lead with its conversation outcome into an
// EnrichedLead and runs the decision engine over it.
package enrich

import (
	"strings"
	"time"

	"lead_triage_backend/internal/pipeline/calendar"
	"lead_triage_backend/internal/pipeline/decision"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/phone"
)

// infoFields are checked, in order, for missingInfo.
var infoFields = []string{
	domain.FieldArtwork,
	domain.FieldSizes,
	domain.FieldQuantity,
	domain.FieldProjectDetails,
}

var artworkPendingPhrases = []string{"will provide", "new logo"}

const manualOutboundAction = "manual"

// Builder enriches leads against one business calendar and rule set.
type Builder struct {
	cal    calendar.Calendar
	engine *decision.Engine
	now    func() time.Time
}

// NewBuilder creates a builder.
func NewBuilder(cal calendar.Calendar, engine *decision.Engine) *Builder {
	return &Builder{cal: cal, engine: engine, now: time.Now}
}

// WithClock returns a copy of b reading time from now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	cp := *b
	cp.now = now
	return &cp
}

// Build enriches every lead. Leads without an entry in conversations are
// treated as having no conversation.
func (b *Builder) Build(leads []domain.Lead, conversations domain.ConversationMap) []domain.EnrichedLead {
	now := b.now()
	out := make([]domain.EnrichedLead, 0, len(leads))
	for _, lead := range leads {
		outcome, ok := conversations[lead.ContactID]
		if !ok {
			outcome = domain.NoConversation()
		}
		out = append(out, b.enrich(lead, outcome, now))
	}
	return out
}

func (b *Builder) enrich(lead domain.Lead, outcome domain.ConversationOutcome, now time.Time) domain.EnrichedLead {
	e := domain.EnrichedLead{
		Lead:              lead,
		IsInternational:   phone.IsInternational(lead.Phone),
		MissingInfo:       MissingInfo(lead),
		WaitingOnArtwork:  WaitingOnArtwork(lead),
		HasArtwork:        len(lead.Artwork) > 0,
		HasQuantity:       lead.Quantity != "",
		HasSizes:          lead.Sizes != "",
		HasProjectDetails: lead.ProjectDetails != "",
	}

	if outcome.NoConversation || outcome.Facts == nil {
		e.NoConversation = true
		e.Notes = []domain.Note{}
		e.ConversationHistory = []domain.TranscriptEntry{}
	} else {
		f := outcome.Facts
		e.NeedsReply = f.UnreadCount > 0 && f.LastMessageDirection == "inbound"
		e.HasManualOutreach = f.LastOutboundMessageAction == manualOutboundAction
		last := f.LastMessageDate
		if last == nil {
			last = f.LastManualMessageDate
		}
		e.DaysSinceLastContact = b.cal.BusinessDaysSince(last, now)
		e.DaysSinceLastCall = b.cal.BusinessDaysSince(f.LastOutboundCallDate, now)
		e.DaysSinceLastSMS = b.cal.BusinessDaysSince(f.LastOutboundSMSDate, now)
		e.DaysSinceLastEmail = b.cal.BusinessDaysSince(f.LastOutboundEmailDate, now)
		e.OutboundCount = f.OutboundCount
		e.ConversationID = f.ConversationID
		e.Notes = nonNil(f.Notes)
		e.ConversationHistory = nonNil(f.Messages)
	}

	e.ApplyDecision(b.engine.Evaluate(e))
	return e
}

// MissingInfo lists the info fields the lead has not filled in.
func MissingInfo(lead domain.Lead) []string {
	missing := []string{}
	for _, field := range infoFields {
		var empty bool
		switch field {
		case domain.FieldArtwork:
			empty = len(lead.Artwork) == 0
		case domain.FieldSizes:
			empty = lead.Sizes == ""
		case domain.FieldQuantity:
			empty = lead.Quantity == ""
		case domain.FieldProjectDetails:
			empty = lead.ProjectDetails == ""
		}
		if empty {
			missing = append(missing, field)
		}
	}
	return missing
}

// WaitingOnArtwork reports whether the project details say artwork is coming.
func WaitingOnArtwork(lead domain.Lead) bool {
	details := strings.ToLower(lead.ProjectDetails)
	for _, phrase := range artworkPendingPhrases {
		if strings.Contains(details, phrase) {
			return true
		}
	}
	return false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
