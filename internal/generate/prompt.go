package generate

import (
	"fmt"
	"strings"

	"github.com/ufiyan/leadrevive/internal/lead"
)

// Placeholder values for optional lead fields. The prompt must read
// naturally even for sparse records, so empty strings are never interpolated.
const (
	placeholderName     = "Valued Customer"
	placeholderInterest = "our services"
	placeholderServices = "their CRM needs"
	placeholderSource   = "a previous conversation"
	placeholderLastSeen = "more than a week ago"
)

// ReEngagementPrompt builds the model prompt for one stale lead from the
// lead's own fields only.
func ReEngagementPrompt(ld lead.Lead) string {
	return strings.TrimSpace(fmt.Sprintf(`
You are a professional sales representative writing a personalized re-engagement email to a lead who has gone stale.

LEAD INFORMATION:
- Name: %s
- Email: %s
- Potential Interest: %s
- CRM Services Needed: %s
- Lead Source: %s
- Last Contacted: %s
- Status: Lead has been inactive for more than 7 days

TASK: Write a compelling, personalized re-engagement email that:
1. Acknowledges the time gap since last contact.
2. References their specific interests and needs.
3. Provides value or insight related to their CRM needs.
4. Includes a clear, soft call-to-action.
5. Maintains a professional but friendly tone.
6. Keep it concise (under 200 words).

FORMAT YOUR RESPONSE AS:
Subject: [Compelling subject line]

[Email body]`,
		orPlaceholder(ld.FullName, placeholderName),
		ld.Email,
		orPlaceholder(ld.PotentialInterest, placeholderInterest),
		orPlaceholder(ld.CRMServicesNeeded, placeholderServices),
		orPlaceholder(ld.LeadSource, placeholderSource),
		orPlaceholder(ld.LastContactedRaw, placeholderLastSeen),
	))
}

func orPlaceholder(v, placeholder string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return placeholder
	}
	return v
}
