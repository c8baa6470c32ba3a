package domain

import "time"

// Message types the dashboard sends through the CRM.
const (
	MessageTypeEmail = "Email"
	MessageTypeSMS   = "SMS"
)

// ActionItem is one drafted action for the operator.
type ActionItem struct {
	ID             int    `json:"id"`
	Priority       string `json:"priority"`
	ActionType     string `json:"actionType"`
	Label          string `json:"label"`
	ContactID      string `json:"contactId"`
	Context        string `json:"context"`
	Recommendation string `json:"recommendation"`
	MessageType    string `json:"messageType,omitempty"`

	Subject         string `json:"subject,omitempty"`
	Message         string `json:"message,omitempty"`
	SMSMessage      string `json:"smsMessage,omitempty"`
	NoAnswerSMS     string `json:"noAnswerSms,omitempty"`
	NoAnswerSubject string `json:"noAnswerSubject,omitempty"`
	NoAnswerEmail   string `json:"noAnswerEmail,omitempty"`
	TargetStageID   string `json:"targetStageId,omitempty"`

	// Reattached from the enriched lead after drafting.
	ContactName         string            `json:"contactName"`
	ContactEmail        string            `json:"contactEmail,omitempty"`
	ContactPhone        string            `json:"contactPhone,omitempty"`
	OpportunityID       string            `json:"opportunityId"`
	Stage               string            `json:"stage"`
	ConversationHistory []TranscriptEntry `json:"conversationHistory"`
	Notes               []Note            `json:"notes"`
	International       bool              `json:"international"`
}

// NoActionItem records a lead the drafter decided to leave alone.
type NoActionItem struct {
	ContactID   string `json:"contactId"`
	ContactName string `json:"contactName"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
}

// Recommendations is the drafter output accumulated across recommend batches.
type Recommendations struct {
	Actions  []ActionItem   `json:"actions"`
	NoAction []NoActionItem `json:"noAction"`
}

// Append adds batch and renumbers action ids densely from 1. A contact in
// batch replaces any earlier entry for it, so each contact appears once.
func (r Recommendations) Append(batch Recommendations) Recommendations {
	replaced := make(map[string]bool, len(batch.Actions)+len(batch.NoAction))
	for _, a := range batch.Actions {
		replaced[a.ContactID] = true
	}
	for _, n := range batch.NoAction {
		replaced[n.ContactID] = true
	}

	out := Recommendations{
		Actions:  make([]ActionItem, 0, len(r.Actions)+len(batch.Actions)),
		NoAction: make([]NoActionItem, 0, len(r.NoAction)+len(batch.NoAction)),
	}
	for _, a := range r.Actions {
		if !replaced[a.ContactID] {
			out.Actions = append(out.Actions, a)
		}
	}
	for _, n := range r.NoAction {
		if !replaced[n.ContactID] {
			out.NoAction = append(out.NoAction, n)
		}
	}
	out.Actions = append(out.Actions, batch.Actions...)
	out.NoAction = append(out.NoAction, batch.NoAction...)
	for i := range out.Actions {
		out.Actions[i].ID = i + 1
	}
	return out
}

// Opportunities is the output of the opportunities step.
type Opportunities struct {
	Active          []Lead         `json:"active"`
	InactiveSummary map[string]int `json:"inactiveSummary"`
}

// Dashboard is the published result of a completed run.
type Dashboard struct {
	Actions         []ActionItem   `json:"actions"`
	NoAction        []NoActionItem `json:"noAction"`
	InactiveSummary map[string]int `json:"inactiveSummary"`
	GeneratedAt     *time.Time     `json:"generatedAt"`
}

// EmptyDashboard is served before the first run completes.
func EmptyDashboard() Dashboard {
	return Dashboard{
		Actions:         []ActionItem{},
		NoAction:        []NoActionItem{},
		InactiveSummary: map[string]int{},
	}
}

// FindAction returns the action with id.
func (d Dashboard) FindAction(id int) (ActionItem, bool) {
	for _, a := range d.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ActionItem{}, false
}
