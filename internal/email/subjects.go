package email

const (
	subjectStepFailedFmt   = "[lead triage] %s step failed (run %s)"
	subjectRunCompletedFmt = "[lead triage] dashboard ready: %d actions"
)
