package airtable

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ufiyan/leadrevive/internal/util"
)

// apiErrorEnvelope is the standard error envelope shape returned by the
// Airtable web API. Responses may include additional fields; we ignore them.
type apiErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPError is a sanitized summary of a non-2xx record-store response.
//
// Important: do not include raw response bodies here (can leak PII/tokens).
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Type       string
	Message    string

	// Snippet is a redacted, truncated hint for non-envelope responses.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "airtable http error"
	}
	parts := []string{
		fmt.Sprintf("airtable api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Type) != "" {
		parts = append(parts, "type="+strings.TrimSpace(e.Type))
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	// Best effort: parse the Airtable error envelope.
	var env apiErrorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.Type = strings.TrimSpace(env.Error.Type)
		h.Message = util.RedactSecrets(env.Error.Message)
		if h.Type != "" || h.Message != "" {
			return h
		}
	}

	// Fallback: include a small, redacted hint only.
	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain lead PII.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := util.RedactSecrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
