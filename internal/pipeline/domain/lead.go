// Package domain holds the pipeline's data model. It has no dependencies on
// transport or storage.
package domain

import "time"

// Lead is the normalized projection of one active CRM opportunity.
type Lead struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	ContactID      string   `json:"contactId"`
	Stage          string   `json:"stage"`
	StageID        string   `json:"stageId"`
	Source         string   `json:"source"`
	MonetaryValue  float64  `json:"monetaryValue"`
	DaysCreated    int      `json:"days_created"`
	DaysInStage    int      `json:"days_in_stage"`
	Artwork        []string `json:"artwork,omitempty"`
	Quantity       string   `json:"quantity,omitempty"`
	ProjectDetails string   `json:"project_details,omitempty"`
	ServiceType    string   `json:"service_type,omitempty"`
	Budget         string   `json:"budget,omitempty"`
	Sizes          string   `json:"sizes,omitempty"`
}

// Note is an internal CRM note.
type Note struct {
	Body      string `json:"body"`
	DateAdded string `json:"dateAdded"`
}

// TranscriptEntry is one message of the bounded conversation transcript.
type TranscriptEntry struct {
	Direction string `json:"direction"`
	Channel   string `json:"channel"`
	Body      string `json:"body"`
	Date      string `json:"date"`
}

// ConversationFacts is what enrichment learned about one contact's conversation.
type ConversationFacts struct {
	UnreadCount               int               `json:"unreadCount"`
	LastMessageDirection      string            `json:"lastMessageDirection,omitempty"`
	LastMessageDate           *time.Time        `json:"lastMessageDate,omitempty"`
	LastMessageType           string            `json:"lastMessageType,omitempty"`
	LastOutboundMessageAction string            `json:"lastOutboundMessageAction,omitempty"`
	LastManualMessageDate     *time.Time        `json:"lastManualMessageDate,omitempty"`
	ConversationID            string            `json:"conversationId,omitempty"`
	OutboundCount             int               `json:"outboundCount"`
	LastOutboundCallDate      *time.Time        `json:"lastOutboundCallDate,omitempty"`
	LastOutboundSMSDate       *time.Time        `json:"lastOutboundSmsDate,omitempty"`
	LastOutboundEmailDate     *time.Time        `json:"lastOutboundEmailDate,omitempty"`
	Notes                     []Note            `json:"notes"`
	Messages                  []TranscriptEntry `json:"messages"`
}

// ConversationOutcome is the result of one contact's lookup. A missing
// conversation is recorded as NoConversation, never as empty facts.
type ConversationOutcome struct {
	NoConversation bool               `json:"noConversation"`
	Facts          *ConversationFacts `json:"facts,omitempty"`
}

// NoConversation is the outcome for a contact with no usable conversation.
func NoConversation() ConversationOutcome {
	return ConversationOutcome{NoConversation: true}
}

// FoundConversation wraps facts.
func FoundConversation(f ConversationFacts) ConversationOutcome {
	return ConversationOutcome{Facts: &f}
}

// ConversationMap is keyed by contact id.
type ConversationMap map[string]ConversationOutcome

// Merge overlays other onto m, returning a new map.
func (m ConversationMap) Merge(other ConversationMap) ConversationMap {
	out := make(ConversationMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Action is a suggested next step produced by the decision engine.
type Action string

const (
	ActionReply             Action = "reply"
	ActionOutreach          Action = "outreach"
	ActionCall              Action = "call"
	ActionFollowUpEmail     Action = "follow_up_email"
	ActionFinalAttemptEmail Action = "final_attempt_email"
	ActionHighValueFollowup Action = "high_value_followup"
	ActionMove              Action = "move"
	ActionNone              Action = "none"
)

// Priority ranks a suggested action.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityInfo   Priority = "info"
	PriorityNone   Priority = "none"
)

// Decision is the decision engine's output for one lead.
type Decision struct {
	Action   Action
	Priority Priority
	Hint     string
}

// EnrichedLead is a lead with its conversation facts, derived flags and decision.
type EnrichedLead struct {
	Lead

	IsInternational   bool     `json:"isInternational"`
	MissingInfo       []string `json:"missingInfo"`
	WaitingOnArtwork  bool     `json:"waitingOnArtwork"`
	HasArtwork        bool     `json:"hasArtwork"`
	HasQuantity       bool     `json:"hasQuantity"`
	HasSizes          bool     `json:"hasSizes"`
	HasProjectDetails bool     `json:"hasProjectDetails"`

	NeedsReply           bool              `json:"needsReply"`
	HasManualOutreach    bool              `json:"hasManualOutreach"`
	DaysSinceLastContact *int              `json:"daysSinceLastContact"`
	DaysSinceLastCall    *int              `json:"daysSinceLastCall"`
	DaysSinceLastSMS     *int              `json:"daysSinceLastSms"`
	DaysSinceLastEmail   *int              `json:"daysSinceLastEmail"`
	OutboundCount        int               `json:"outboundCount"`
	NoConversation       bool              `json:"noConversation"`
	ConversationID       string            `json:"conversationId,omitempty"`
	Notes                []Note            `json:"notes"`
	ConversationHistory  []TranscriptEntry `json:"conversationHistory"`

	SuggestedAction   Action   `json:"suggestedAction"`
	SuggestedPriority Priority `json:"suggestedPriority"`
	Hint              string   `json:"hint"`
}

// ApplyDecision records d on the lead.
func (l *EnrichedLead) ApplyDecision(d Decision) {
	l.SuggestedAction = d.Action
	l.SuggestedPriority = d.Priority
	l.Hint = d.Hint
}
