package pipeline

// OutcomeKind classifies what happened to one candidate during a run.
// Failure classification is data, not an exception hierarchy: per-candidate
// failures land here and never escape the batch loop.
type OutcomeKind string

const (
	OutcomeAlreadyProcessed OutcomeKind = "already_processed"
	OutcomeInsufficientData OutcomeKind = "insufficient_data"
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeUpdateFailed     OutcomeKind = "update_failed"
	OutcomeError            OutcomeKind = "error"
)

// Outcome is the per-candidate record of one batch run. Outcomes live for
// one run only and are never persisted.
type Outcome struct {
	LeadID   string      `json:"leadId"`
	LeadName string      `json:"leadName"`
	Kind     OutcomeKind `json:"status"`
	Detail   string      `json:"detail"`
}

// Report aggregates one full pipeline run. Success is false only when the
// store-level fetch failed; per-candidate failures are visible in Outcomes
// but do not fail the run.
type Report struct {
	RunID           string    `json:"runId"`
	Success         bool      `json:"success"`
	Message         string    `json:"message"`
	TotalCandidates int       `json:"totalCandidates"`
	SuccessCount    int       `json:"successCount"`
	Outcomes        []Outcome `json:"outcomes"`
}

// Stats summarizes the current table for the dashboard endpoints.
type Stats struct {
	TotalLeads        int `json:"totalLeads"`
	StaleLeads        int `json:"totalStaleLeads"`
	MessagesGenerated int `json:"messagesGenerated"`
	PendingEngagement int `json:"pendingEngagement"`
}

// ExportRow is one flattened candidate for data export.
type ExportRow struct {
	ID                string `json:"id"`
	FullName          string `json:"fullName"`
	Email             string `json:"email"`
	PhoneNumber       string `json:"phoneNumber"`
	PotentialInterest string `json:"potentialInterest"`
	CRMServicesNeeded string `json:"crmServicesNeeded"`
	LeadSource        string `json:"leadSource"`
	StatusInFunnel    string `json:"statusInFunnel"`
	LastContacted     string `json:"lastContacted"`
	MessageGenerated  bool   `json:"messageGenerated"`
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
}

// LeadForm carries a new-lead submission. FullName and Email are required;
// the rest are optional and omitted from the created record when empty.
type LeadForm struct {
	FullName          string `json:"fullName"`
	Email             string `json:"emailAddress"`
	PhoneNumber       string `json:"phoneNumber"`
	PotentialInterest string `json:"potentialInterest"`
	CRMServicesNeeded string `json:"crmServicesNeeded"`
	LeadSource        string `json:"leadSource"`
}
