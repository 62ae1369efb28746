package lead

import (
	"fmt"
	"strings"

	"github.com/ufiyan/leadrevive/internal/airtable"
)

// Column names as they appear in the remote table. External field-name
// mapping happens here, once, at ingestion; everything downstream works with
// the Lead struct only.
const (
	FieldFullName          = "Full Name"
	FieldEmail             = "Email Address"
	FieldPhoneNumber       = "Phone Number"
	FieldPotentialInterest = "Potential Interest"
	FieldCRMServicesNeeded = "CRM Services Needed"
	FieldLeadSource        = "Lead Source"
	FieldStatusInFunnel    = "Status in Sales Funnel"
	FieldLastContacted     = "Last Contacted"
	FieldGeneratedMessage  = "Generated Text Message"
	FieldTimestamp         = "Timestamp"
	FieldStatus            = "Status"
)

// Lead is the canonical normalized view of one record. ID is always
// populated from the source record; every other field tolerates absence via
// an empty-string default, never nil.
type Lead struct {
	ID                string `json:"id"`
	FullName          string `json:"fullName"`
	Email             string `json:"email"`
	PhoneNumber       string `json:"phoneNumber"`
	PotentialInterest string `json:"potentialInterest"`
	CRMServicesNeeded string `json:"crmServicesNeeded"`
	LeadSource        string `json:"leadSource"`
	StatusInFunnel    string `json:"statusInFunnel"`

	// LastContactedRaw is kept verbatim: the store returns DD/MM/YYYY,
	// YYYY-MM-DD, or occasionally garbage. Parsing happens in Classify.
	LastContactedRaw string `json:"lastContacted"`

	GeneratedMessage string `json:"generatedMessage"`
	Timestamp        string `json:"timestamp"`
	Status           string `json:"status"`
}

// FromRecord maps a raw store record into the canonical Lead shape.
func FromRecord(rec airtable.Record) Lead {
	return Lead{
		ID:                strings.TrimSpace(rec.ID),
		FullName:          stringField(rec.Fields, FieldFullName),
		Email:             stringField(rec.Fields, FieldEmail),
		PhoneNumber:       stringField(rec.Fields, FieldPhoneNumber),
		PotentialInterest: stringField(rec.Fields, FieldPotentialInterest),
		CRMServicesNeeded: stringField(rec.Fields, FieldCRMServicesNeeded),
		LeadSource:        stringField(rec.Fields, FieldLeadSource),
		StatusInFunnel:    stringField(rec.Fields, FieldStatusInFunnel),
		LastContactedRaw:  stringField(rec.Fields, FieldLastContacted),
		GeneratedMessage:  stringField(rec.Fields, FieldGeneratedMessage),
		Timestamp:         stringField(rec.Fields, FieldTimestamp),
		Status:            stringField(rec.Fields, FieldStatus),
	}
}

func stringField(fields map[string]any, name string) string {
	v, ok := fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	// Non-text column types (numbers, checkboxes) show up untyped.
	return strings.TrimSpace(fmt.Sprint(v))
}
