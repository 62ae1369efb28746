package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ufiyan/leadrevive/internal/airtable"
	"github.com/ufiyan/leadrevive/internal/generate"
	"github.com/ufiyan/leadrevive/internal/lead"
	"github.com/ufiyan/leadrevive/internal/pipeline"
)

type fakeStore struct {
	records []airtable.Record
	listErr error
	created []map[string]any
}

func (f *fakeStore) ListRecords(_ context.Context) ([]airtable.Record, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeStore) GetRecord(_ context.Context, id string) (airtable.Record, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return airtable.Record{}, airtable.ErrNotFound
}

func (f *fakeStore) UpdateFields(_ context.Context, id string, fields map[string]any) error {
	for i, rec := range f.records {
		if rec.ID == id {
			for k, v := range fields {
				f.records[i].Fields[k] = v
			}
			return nil
		}
	}
	return airtable.ErrNotFound
}

func (f *fakeStore) CreateRecord(_ context.Context, fields map[string]any) error {
	f.created = append(f.created, fields)
	return nil
}

func staleRecord(id, name, email string) airtable.Record {
	return airtable.Record{
		ID: id,
		Fields: map[string]any{
			lead.FieldFullName:      name,
			lead.FieldEmail:         email,
			lead.FieldLastContacted: "2024-01-01",
		},
	}
}

func newTestServer(t *testing.T, store pipeline.Store, gen generate.Generator, origins []string) *httptest.Server {
	t.Helper()
	if gen == nil {
		gen = generate.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
			return "Hello there!", nil
		})
	}
	pipe := pipeline.New(store, gen, pipeline.Options{
		Now:    func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) },
		Logger: slog.New(slog.NewTextHandler(discard{}, nil)),
	})
	srv := New(pipe, slog.New(slog.NewTextHandler(discard{}, nil)), origins)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func postJSON(t *testing.T, url, body string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, nil, nil)
	var body map[string]string
	getJSON(t, ts.URL+"/health", http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestStaleLeads(t *testing.T) {
	store := &fakeStore{records: []airtable.Record{
		staleRecord("rec1", "Ada Lovelace", "ada@example.com"),
		staleRecord("rec2", "Alan Turing", "alan@example.com"),
	}}
	ts := newTestServer(t, store, nil, nil)

	var body struct {
		Count int         `json:"count"`
		Leads []lead.Lead `json:"leads"`
	}
	getJSON(t, ts.URL+"/stale-leads", http.StatusOK, &body)
	if body.Count != 2 || len(body.Leads) != 2 {
		t.Fatalf("count = %d, leads = %d", body.Count, len(body.Leads))
	}
	if body.Leads[0].FullName != "Ada Lovelace" {
		t.Errorf("first lead = %q", body.Leads[0].FullName)
	}
}

func TestStaleLeadsStoreFailure(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection refused")}
	ts := newTestServer(t, store, nil, nil)
	getJSON(t, ts.URL+"/stale-leads", http.StatusBadGateway, nil)
}

func TestProcessStaleLeads(t *testing.T) {
	store := &fakeStore{records: []airtable.Record{
		staleRecord("rec1", "Ada Lovelace", "ada@example.com"),
	}}
	ts := newTestServer(t, store, nil, nil)

	var report pipeline.Report
	postJSON(t, ts.URL+"/process-stale-leads", "", http.StatusOK, &report)
	if !report.Success {
		t.Fatalf("report not successful: %s", report.Message)
	}
	if report.SuccessCount != 1 || report.TotalCandidates != 1 {
		t.Errorf("counts = %d/%d", report.SuccessCount, report.TotalCandidates)
	}
	if got := store.records[0].Fields[lead.FieldGeneratedMessage]; got != "Hello there!" {
		t.Errorf("write-back message = %v", got)
	}
}

func TestProcessStaleLeadsFetchFailure(t *testing.T) {
	store := &fakeStore{listErr: errors.New("boom")}
	ts := newTestServer(t, store, nil, nil)

	var report pipeline.Report
	postJSON(t, ts.URL+"/process-stale-leads", "", http.StatusBadGateway, &report)
	if report.Success {
		t.Error("report should not be successful")
	}
}

func TestGetLead(t *testing.T) {
	store := &fakeStore{records: []airtable.Record{
		staleRecord("rec1", "Ada Lovelace", "ada@example.com"),
	}}
	ts := newTestServer(t, store, nil, nil)

	var ld lead.Lead
	getJSON(t, ts.URL+"/leads/rec1", http.StatusOK, &ld)
	if ld.ID != "rec1" || ld.FullName != "Ada Lovelace" {
		t.Errorf("lead = %+v", ld)
	}

	getJSON(t, ts.URL+"/leads/missing", http.StatusNotFound, nil)
}

func TestGenerateEmail(t *testing.T) {
	store := &fakeStore{records: []airtable.Record{
		staleRecord("rec1", "Ada Lovelace", "ada@example.com"),
		{ID: "rec2", Fields: map[string]any{lead.FieldLastContacted: "2024-01-01"}},
	}}
	ts := newTestServer(t, store, nil, nil)

	var body map[string]string
	postJSON(t, ts.URL+"/generate-email/rec1", "", http.StatusOK, &body)
	if body["message"] != "Hello there!" || body["leadName"] != "Ada Lovelace" {
		t.Errorf("body = %v", body)
	}

	// No name and no email.
	postJSON(t, ts.URL+"/generate-email/rec2", "", http.StatusBadRequest, nil)
	postJSON(t, ts.URL+"/generate-email/missing", "", http.StatusNotFound, nil)
}

func TestGenerateEmailUpstreamFailure(t *testing.T) {
	store := &fakeStore{records: []airtable.Record{
		staleRecord("rec1", "Ada Lovelace", "ada@example.com"),
	}}
	gen := generate.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("quota exceeded: key=AIzaSyFakeKey123456")
	})
	ts := newTestServer(t, store, gen, nil)

	resp, err := http.Post(ts.URL+"/generate-email/rec1", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(body["error"], "AIzaSyFakeKey123456") {
		t.Errorf("error body leaks credential: %q", body["error"])
	}
}

func TestUpdateEmail(t *testing.T) {
	store := &fakeStore{records: []airtable.Record{
		staleRecord("rec1", "Ada Lovelace", "ada@example.com"),
	}}
	ts := newTestServer(t, store, nil, nil)

	postJSON(t, ts.URL+"/update-email/rec1", `{"message":"Edited text"}`, http.StatusOK, nil)
	if got := store.records[0].Fields[lead.FieldGeneratedMessage]; got != "Edited text" {
		t.Errorf("message = %v", got)
	}

	postJSON(t, ts.URL+"/update-email/rec1", `{"message":""}`, http.StatusBadRequest, nil)
	postJSON(t, ts.URL+"/update-email/missing", `{"message":"x"}`, http.StatusNotFound, nil)
}

func TestSubmitForm(t *testing.T) {
	store := &fakeStore{}
	ts := newTestServer(t, store, nil, nil)

	postJSON(t, ts.URL+"/submit-form",
		`{"fullName":"Grace Hopper","email":"grace@example.com"}`,
		http.StatusCreated, nil)
	if len(store.created) != 1 {
		t.Fatalf("created %d records", len(store.created))
	}
	if store.created[0][lead.FieldEmail] != "grace@example.com" {
		t.Errorf("email alias not honored: %v", store.created[0])
	}

	postJSON(t, ts.URL+"/submit-form", `{"fullName":"No Email"}`, http.StatusBadRequest, nil)
	postJSON(t, ts.URL+"/submit-form", `not json`, http.StatusBadRequest, nil)
}

func TestExportLeads(t *testing.T) {
	store := &fakeStore{records: []airtable.Record{
		staleRecord("rec1", "Ada Lovelace", "ada@example.com"),
	}}
	ts := newTestServer(t, store, nil, nil)

	var rows []pipeline.ExportRow
	getJSON(t, ts.URL+"/export-leads", http.StatusOK, &rows)
	if len(rows) != 1 || rows[0].FullName != "Ada Lovelace" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestDashboardStats(t *testing.T) {
	store := &fakeStore{records: []airtable.Record{
		staleRecord("rec1", "Ada Lovelace", "ada@example.com"),
		{ID: "rec2", Fields: map[string]any{
			lead.FieldFullName:         "Done Lead",
			lead.FieldLastContacted:    "2024-01-01",
			lead.FieldGeneratedMessage: "already sent",
		}},
	}}
	ts := newTestServer(t, store, nil, nil)

	var stats pipeline.Stats
	getJSON(t, ts.URL+"/dashboard-stats", http.StatusOK, &stats)
	if stats.TotalLeads != 2 {
		t.Errorf("TotalLeads = %d", stats.TotalLeads)
	}
	if stats.MessagesGenerated != 1 {
		t.Errorf("MessagesGenerated = %d", stats.MessagesGenerated)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, nil, []string{"https://app.example.com"})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/stale-leads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	// Unlisted origin gets no CORS headers.
	req2, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req2.Header.Set("Origin", "https://evil.example.com")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if got := resp2.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow-origin %q", got)
	}
}
