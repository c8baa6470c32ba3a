package transport

// StepQuery selects the step to run on POST /pipeline.
type StepQuery struct {
	Step   string `form:"step" validate:"required,oneof=opportunities conversations enrich recommend"`
	Offset int    `form:"offset" validate:"min=0"`
	RunID  string `form:"runId" validate:"omitempty,max=64"`
}

type SendRequest struct {
	Type    string `json:"type" validate:"omitempty,oneof=Email SMS"`
	Subject string `json:"subject" validate:"max=300"`
	HTML    string `json:"html" validate:"max=200000"`
	Message string `json:"message" validate:"max=20000"`
}

type MoveRequest struct {
	TargetStageID string `json:"targetStageId" validate:"omitempty,max=64"`
}

type NoteRequest struct {
	Body string `json:"body" validate:"required,min=1,max=5000"`
	Kind string `json:"kind" validate:"omitempty,oneof=note callnote"`
}

type LedgerEntryRequest struct {
	Status string `json:"status" validate:"required,oneof=sent moved noted dismissed"`
	TS     int64  `json:"ts" validate:"min=0"`
}

// LedgerPatchRequest is keyed by ledger key ("5", "5_sms").
type LedgerPatchRequest map[string]LedgerEntryRequest

type LaunchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	RunID   string `json:"runId"`
	Mode    string `json:"mode"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}
