// Package mockairtable implements a minimal Airtable-shaped record API for
// tests and local development: paginated list, single-record get, field
// patch, and record creation, with bearer-token enforcement.
package mockairtable

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Call records one request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// Record is one stored row.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Server holds an in-memory table behind the subset of the Airtable web API
// the pipeline uses.
type Server struct {
	baseID string
	table  string

	mu      sync.Mutex
	records []Record
	calls   []Call
	nextID  int

	pageSize int

	expectedAuthorization string

	// failUpdates, when set, makes PATCH requests fail with a 503 so tests
	// can exercise write-back failure paths.
	failUpdates bool
}

// New constructs a mock server for one base/table pair.
func New(baseID, table string) *Server {
	return &Server{
		baseID:   baseID,
		table:    table,
		nextID:   1,
		pageSize: 100,
	}
}

// RequireBearerToken enforces that requests carry a matching Authorization
// header. An empty token disables enforcement.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// SetPageSize changes the list page size, forcing multi-page responses in
// pagination tests.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.pageSize = n
	}
}

// FailUpdates toggles PATCH failures.
func (s *Server) FailUpdates(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates = fail
}

// Seed inserts a record directly, bypassing the API.
func (s *Server) Seed(id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{ID: id, Fields: fields})
}

// Records returns a snapshot of the stored rows.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Calls returns a snapshot of requests made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Handler returns an http.Handler serving the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v0/", s.handleTable)
	return mux
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()

	if expected == "" {
		return true
	}
	if r.Header.Get("Authorization") != expected {
		writeAPIError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "invalid authentication token")
		return false
	}
	return true
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}

	// /v0/{baseID}/{table}[/{recordID}]
	rest := strings.TrimPrefix(r.URL.Path, "/v0/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] != s.baseID || parts[1] != s.table {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		s.handleList(w, r)
	case len(parts) == 2 && r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case len(parts) == 3 && r.Method == http.MethodGet:
		s.handleGet(w, parts[2])
	case len(parts) == 3 && r.Method == http.MethodPatch:
		s.handlePatch(w, r, parts[2])
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "UNSUPPORTED_OPERATION", "method not allowed")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	start := 0
	if off := strings.TrimSpace(r.URL.Query().Get("offset")); off != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(off, "itr"))
		if err != nil {
			writeAPIError(w, http.StatusUnprocessableEntity, "LIST_RECORDS_ITERATOR_NOT_AVAILABLE", "invalid offset")
			return
		}
		start = n
	}

	s.mu.Lock()
	pageSize := s.pageSize
	total := len(s.records)
	end := start + pageSize
	if end > total {
		end = total
	}
	page := make([]Record, 0, end-start)
	if start < total {
		page = append(page, s.records[start:end]...)
	}
	s.mu.Unlock()

	resp := map[string]any{"records": page}
	if end < total {
		resp["offset"] = fmt.Sprintf("itr%d", end)
	}
	writeJSON(w, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			writeJSON(w, rec)
			return
		}
	}
	writeAPIError(w, http.StatusNotFound, "MODEL_ID_NOT_FOUND", "record not found")
}

type fieldsBody struct {
	Fields map[string]any `json:"fields"`
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	fail := s.failUpdates
	s.mu.Unlock()
	if fail {
		writeAPIError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "temporarily unavailable")
		return
	}

	var body fieldsBody
	if err := readJSON(r, &body); err != nil || len(body.Fields) == 0 {
		writeAPIError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", "fields object is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.ID != id {
			continue
		}
		if rec.Fields == nil {
			s.records[i].Fields = make(map[string]any)
		}
		for k, v := range body.Fields {
			s.records[i].Fields[k] = v
		}
		writeJSON(w, s.records[i])
		return
	}
	writeAPIError(w, http.StatusNotFound, "MODEL_ID_NOT_FOUND", "record not found")
}

type createBody struct {
	Records []fieldsBody `json:"records"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := readJSON(r, &body); err != nil || len(body.Records) == 0 {
		writeAPIError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", "records array is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	created := make([]Record, 0, len(body.Records))
	for _, rb := range body.Records {
		rec := Record{
			ID:     fmt.Sprintf("recNEW%06d", s.nextID),
			Fields: rb.Fields,
		}
		s.nextID++
		s.records = append(s.records, rec)
		created = append(created, rec)
	}
	writeJSON(w, map[string]any{"records": created})
}

func readJSON(r *http.Request, dst any) error {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}
