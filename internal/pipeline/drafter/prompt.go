package drafter

import (
	"encoding/json"
	"fmt"
	"strings"

	"lead_triage_backend/internal/pipeline/domain"
)

// SystemPrompt instructs the model how to turn a lead batch into actions.
func SystemPrompt(stages domain.StageTable) string {
	var b strings.Builder
	b.WriteString(`You are the operations assistant of a custom screen-printing shop. Every morning you turn the sales pipeline into a short list of concrete tasks for the owner.

Each lead arrives with pipeline data, a conversation transcript, internal notes, contact details and an automated suggestion (suggestedAction, suggestedPriority, hint).

Work through the leads:
1. Start from the automated suggestion.
2. Override it when the conversation says otherwise, for example the customer asked to be contacted next week or the job is out of scope.
3. Draft every message the owner needs to send.

Fields per action item:
- actionType: reply | outreach | call | follow_up_email | move | none
- priority: high | medium | info
- label: a few words saying what to do
- context: about 250 characters summarizing the conversation, naming the products, prices and quantities discussed
- recommendation: about 150 characters describing the specific next step
- messageType: "Email" or "SMS" for message actions
- email actions: subject and message (3 to 5 warm, professional sentences)
- SMS actions: smsMessage (under 160 characters, casual, with one concrete detail)
- call actions: noAnswerSms, noAnswerSubject and noAnswerEmail to send if nobody picks up
- move actions: targetStageId

Rules:
- Never offer discounts or price changes.
- Every follow-up must mention something specific from the conversation.
- International contacts get email only, never SMS or calls.
- Ask precisely for whatever information is missing.
- A lead contacted today with no reply goes to noAction.
- Every lead must appear exactly once, in actions or in noAction.
- Identify leads by contactId only; contact details, stage, history and notes are attached afterwards.
`)
	b.WriteString("\nStage ids for moves:\n")
	for _, name := range []string{domain.StageCooledOff, domain.StageUnqualified, domain.StageSale} {
		if id := stages.IDOf(name); id != "" {
			fmt.Fprintf(&b, "- %s: %s\n", name, id)
		}
	}
	b.WriteString(`
Reply with one JSON object and nothing else:
{"actions": [ActionItem, ...], "noAction": [{"contactId": "...", "reason": "..."}, ...]}
`)
	return b.String()
}

// promptLead is the per-lead payload sent to the model.
type promptLead struct {
	ContactID            string                   `json:"contactId"`
	ContactName          string                   `json:"contactName"`
	ContactEmail         string                   `json:"contactEmail"`
	ContactPhone         string                   `json:"contactPhone"`
	OpportunityID        string                   `json:"opportunityId"`
	Stage                string                   `json:"stage"`
	StageID              string                   `json:"stageId"`
	MonetaryValue        float64                  `json:"monetaryValue"`
	DaysCreated          int                      `json:"days_created"`
	DaysInStage          int                      `json:"days_in_stage"`
	ServiceType          string                   `json:"service_type,omitempty"`
	Budget               string                   `json:"budget,omitempty"`
	Quantity             string                   `json:"quantity,omitempty"`
	Sizes                string                   `json:"sizes,omitempty"`
	ProjectDetails       string                   `json:"project_details,omitempty"`
	HasArtwork           bool                     `json:"hasArtwork"`
	IsInternational      bool                     `json:"isInternational"`
	MissingInfo          []string                 `json:"missingInfo"`
	NeedsReply           bool                     `json:"needsReply"`
	HasManualOutreach    bool                     `json:"hasManualOutreach"`
	DaysSinceLastContact *int                     `json:"daysSinceLastContact"`
	OutboundCount        int                      `json:"outboundCount"`
	NoConversation       bool                     `json:"noConversation"`
	SuggestedAction      domain.Action            `json:"suggestedAction"`
	SuggestedPriority    domain.Priority          `json:"suggestedPriority"`
	Hint                 string                   `json:"hint"`
	ConversationHistory  []domain.TranscriptEntry `json:"conversationHistory"`
	Notes                []domain.Note            `json:"notes"`
}

// UserMessage renders the batch for the model.
func UserMessage(req DraftRequest) (string, error) {
	leads := make([]promptLead, 0, len(req.Leads))
	for _, l := range req.Leads {
		leads = append(leads, promptLead{
			ContactID:            l.ContactID,
			ContactName:          l.Name,
			ContactEmail:         l.Email,
			ContactPhone:         l.Phone,
			OpportunityID:        l.ID,
			Stage:                l.Stage,
			StageID:              l.StageID,
			MonetaryValue:        l.MonetaryValue,
			DaysCreated:          l.DaysCreated,
			DaysInStage:          l.DaysInStage,
			ServiceType:          l.ServiceType,
			Budget:               l.Budget,
			Quantity:             l.Quantity,
			Sizes:                l.Sizes,
			ProjectDetails:       l.ProjectDetails,
			HasArtwork:           l.HasArtwork,
			IsInternational:      l.IsInternational,
			MissingInfo:          l.MissingInfo,
			NeedsReply:           l.NeedsReply,
			HasManualOutreach:    l.HasManualOutreach,
			DaysSinceLastContact: l.DaysSinceLastContact,
			OutboundCount:        l.OutboundCount,
			NoConversation:       l.NoConversation,
			SuggestedAction:      l.SuggestedAction,
			SuggestedPriority:    l.SuggestedPriority,
			Hint:                 l.Hint,
			ConversationHistory:  l.ConversationHistory,
			Notes:                l.Notes,
		})
	}

	leadsJSON, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode leads: %w", err)
	}
	inactive := req.InactiveSummary
	if inactive == nil {
		inactive = map[string]int{}
	}
	inactiveJSON, err := json.Marshal(inactive)
	if err != nil {
		return "", fmt.Errorf("encode inactive summary: %w", err)
	}

	return fmt.Sprintf(`Today's batch has %d active leads. Produce action items for each.

Inactive summary: %s

Leads:
%s

Reply with JSON holding "actions" and "noAction" arrays. Number action ids from 1.`, len(req.Leads), inactiveJSON, leadsJSON), nil
}
