package domain

// Stage names as they appear in the CRM pipeline.
const (
	StageNewLead        = "New Lead"
	StageInProgress     = "In Progress"
	StageQuoteSent      = "Quote Sent"
	StageNeedsAttention = "Needs Attention"
	StageFollowUp       = "Follow Up"
	StageSale           = "Sale"
	StageCooledOff      = "Cooled Off"
	StageUnqualified    = "Unqualified"
)

// Stage is one pipeline stage. Active stages are triaged; inactive ones are tallied.
type Stage struct {
	ID     string
	Name   string
	Active bool
}

// StageTable maps stage ids to stages. Unknown ids are ignored by ingestion.
type StageTable struct {
	byID   map[string]Stage
	byName map[string]string
}

// NewStageTable builds a table from stages.
func NewStageTable(stages ...Stage) StageTable {
	t := StageTable{
		byID:   make(map[string]Stage, len(stages)),
		byName: make(map[string]string, len(stages)),
	}
	for _, s := range stages {
		t.byID[s.ID] = s
		t.byName[s.Name] = s.ID
	}
	return t
}

// DefaultStages is the production pipeline.
func DefaultStages() StageTable {
	return NewStageTable(
		Stage{ID: "29fcf7b0-289c-44a4-ad25-1d1a0aea9063", Name: StageNewLead, Active: true},
		Stage{ID: "5ee824df-7708-4aba-9177-d5ac02dd6828", Name: StageInProgress, Active: true},
		Stage{ID: "259ee5f4-5667-4797-948e-f36ec28c70a0", Name: StageQuoteSent, Active: true},
		Stage{ID: "accf1eef-aa13-46c3-938d-f3ec6fbe498b", Name: StageNeedsAttention, Active: true},
		Stage{ID: "336a5bee-cad2-400f-83fd-cae1bc837029", Name: StageFollowUp, Active: true},
		Stage{ID: "1ab155c2-282d-45eb-bd43-1052489eb2a1", Name: StageSale},
		Stage{ID: "7ec748b8-920d-4bdb-bf09-74dd22d27846", Name: StageCooledOff},
		Stage{ID: "b909061c-9141-45d7-b1e2-fd37432c3596", Name: StageUnqualified},
	)
}

// Lookup returns the stage for id.
func (t StageTable) Lookup(id string) (Stage, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// Empty reports whether the table has no stages.
func (t StageTable) Empty() bool {
	return len(t.byID) == 0
}

// IDOf returns the id of the named stage, or "".
func (t StageTable) IDOf(name string) string {
	return t.byName[name]
}

// Custom field names that ingestion normalizes.
const (
	FieldArtwork        = "artwork"
	FieldQuantity       = "quantity"
	FieldProjectDetails = "project_details"
	FieldServiceType    = "service_type"
	FieldBudget         = "budget"
	FieldSizes          = "sizes"
)

// DefaultCustomFields maps CRM custom field ids to field names.
func DefaultCustomFields() map[string]string {
	return map[string]string{
		"JHW5PxBCcgu43kKGLMDs": FieldArtwork,
		"JzrbUu1GzN23Zh1DoPWV": FieldQuantity,
		"T3YKV1ASH2yYKnUA4f2U": FieldProjectDetails,
		"TslKUu7r74uPuHcdkYYG": FieldServiceType,
		"Zg16bXIPdxyVDB9fSQQC": FieldBudget,
		"fWONzFx0SZrXbK81RgJn": FieldSizes,
	}
}
