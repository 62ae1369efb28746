package util

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (Airtable personal access tokens are sent this
	// way, and they occasionally surface in upstream HTTP error strings).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Airtable personal access tokens have a recognizable "pat" prefix.
	airtablePATRe = regexp.MustCompile(`\bpat[A-Za-z0-9]{8,}\.[A-Za-z0-9]+`)

	// key=value / key: value formats that sometimes leak in error strings,
	// including the Gemini key query parameter.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|airtable[_-]?token|key)\b\s*[:=]\s*[^\s"'&]+`)
)

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
//
// This is intentionally conservative: it should be safe to call on any message,
// including user-provided inputs and upstream error strings.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = airtablePATRe.ReplaceAllString(out, "<redacted_token>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	return strings.TrimSpace(out)
}
