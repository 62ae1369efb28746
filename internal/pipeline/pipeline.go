// Package pipeline orchestrates the stale-lead re-engagement batch: fetch,
// classify, generate, write back, report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ufiyan/leadrevive/internal/airtable"
	"github.com/ufiyan/leadrevive/internal/generate"
	"github.com/ufiyan/leadrevive/internal/lead"
	"github.com/ufiyan/leadrevive/internal/retry"
	"github.com/ufiyan/leadrevive/internal/util"
)

// StatusProcessed is the status marker written back alongside a generated
// message.
const StatusProcessed = "Email Generated"

var (
	// ErrInsufficientData reports that a lead lacks the name or email
	// required for message generation.
	ErrInsufficientData = errors.New("pipeline: lead is missing name or email")

	// ErrInvalidForm reports a new-lead submission without required fields.
	ErrInvalidForm = errors.New("pipeline: form requires fullName and emailAddress")

	// ErrEmptyMessage reports a manual write-back with no message text.
	ErrEmptyMessage = errors.New("pipeline: message must be non-empty")
)

// Store is the record-store surface the pipeline needs. *airtable.Client
// satisfies it; tests substitute in-memory fakes.
type Store interface {
	ListRecords(ctx context.Context) ([]airtable.Record, error)
	GetRecord(ctx context.Context, id string) (airtable.Record, error)
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	CreateRecord(ctx context.Context, fields map[string]any) error
}

// Options tune one pipeline instance.
type Options struct {
	// Now supplies the reference time for classification and write-back
	// timestamps. Defaults to time.Now; tests pin it.
	Now func() time.Time

	// Executor wraps outbound generation calls. Zero value applies the
	// default 5-attempt doubling backoff.
	Executor retry.Executor

	Logger *slog.Logger
}

// Pipeline processes stale leads against an external record store and a
// text-generation collaborator. Both are injected; the pipeline holds no
// other state between runs.
type Pipeline struct {
	store Store
	gen   generate.Generator
	exec  retry.Executor
	now   func() time.Time
	log   *slog.Logger

	// runMu serializes concurrent batch triggers so two HTTP calls cannot
	// double-process the same candidates.
	runMu sync.Mutex
}

func New(store Store, gen generate.Generator, opts Options) *Pipeline {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		store: store,
		gen:   gen,
		exec:  opts.Executor,
		now:   now,
		log:   log,
	}
}

// FetchCandidates lists the whole table and returns the current stale
// candidates in store order.
func (p *Pipeline) FetchCandidates(ctx context.Context) ([]lead.Lead, error) {
	records, err := p.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch leads: %w", err)
	}
	return lead.Classify(records, p.now(), p.log), nil
}

// Run executes one full batch. Every candidate is processed independently:
// a failure for one never aborts the rest, and outcomes keep candidate
// order. The returned error is non-nil only for a store-level fetch failure,
// which is the one batch-fatal condition; the Report mirrors it with
// Success=false.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	runID := uuid.NewString()
	log := p.log.With("run_id", runID)
	start := p.now()

	records, err := p.store.ListRecords(ctx)
	if err != nil {
		log.Error("stale lead fetch failed", "error", util.RedactSecrets(err.Error()))
		return Report{
			RunID:   runID,
			Success: false,
			Message: "error fetching stale leads: " + util.RedactSecrets(err.Error()),
		}, fmt.Errorf("fetch leads: %w", err)
	}

	candidates := lead.Classify(records, start, log)
	log.Info("batch run started", "records", len(records), "candidates", len(candidates))

	if len(candidates) == 0 {
		return Report{
			RunID:   runID,
			Success: true,
			Message: "no stale leads found",
		}, nil
	}

	outcomes := make([]Outcome, 0, len(candidates))
	successCount := 0
	for _, cand := range candidates {
		out := p.processCandidate(ctx, log, cand)
		if out.Kind == OutcomeSuccess {
			successCount++
		}
		log.Info("candidate processed",
			"lead_id", out.LeadID,
			"outcome", string(out.Kind),
			"detail", out.Detail)
		outcomes = append(outcomes, out)
	}

	log.Info("batch run complete",
		"candidates", len(candidates),
		"successful", successCount)

	return Report{
		RunID:           runID,
		Success:         true,
		Message:         fmt.Sprintf("Processed %d stale leads. %d successful.", len(candidates), successCount),
		TotalCandidates: len(candidates),
		SuccessCount:    successCount,
		Outcomes:        outcomes,
	}, nil
}

func (p *Pipeline) processCandidate(ctx context.Context, log *slog.Logger, cand lead.Lead) Outcome {
	out := Outcome{LeadID: cand.ID, LeadName: displayName(cand)}

	// Defensive re-check; Classify already filters these out.
	if cand.GeneratedMessage != "" {
		out.Kind = OutcomeAlreadyProcessed
		out.Detail = "message already generated"
		return out
	}
	if cand.FullName == "" || cand.Email == "" {
		out.Kind = OutcomeInsufficientData
		out.Detail = "missing name or email"
		return out
	}

	msg, err := p.generateMessage(ctx, cand)
	if err != nil {
		log.Warn("message generation failed",
			"lead_id", cand.ID,
			"error", util.RedactSecrets(err.Error()))
		out.Kind = OutcomeError
		out.Detail = "generation error: " + util.RedactSecrets(err.Error())
		return out
	}

	if err := p.writeBack(ctx, cand.ID, msg); err != nil {
		log.Warn("write-back failed",
			"lead_id", cand.ID,
			"error", util.RedactSecrets(err.Error()))
		out.Kind = OutcomeUpdateFailed
		out.Detail = "failed to update record store"
		return out
	}

	out.Kind = OutcomeSuccess
	out.Detail = "message generated and saved"
	return out
}

func (p *Pipeline) generateMessage(ctx context.Context, cand lead.Lead) (string, error) {
	prompt := generate.ReEngagementPrompt(cand)
	exec := p.exec
	exec.Logger = p.log
	return retry.Do(ctx, exec, "generate", func(ctx context.Context) (string, error) {
		return p.gen.Generate(ctx, prompt)
	})
}

// writeBack persists the generated message, a fresh timestamp, and the
// processed status marker.
func (p *Pipeline) writeBack(ctx context.Context, leadID, msg string) error {
	return p.store.UpdateFields(ctx, leadID, map[string]any{
		lead.FieldGeneratedMessage: msg,
		lead.FieldTimestamp:        p.now().Format(time.RFC3339),
		lead.FieldStatus:           StatusProcessed,
	})
}

// GetLead looks up one lead by id. airtable.ErrNotFound passes through.
func (p *Pipeline) GetLead(ctx context.Context, leadID string) (lead.Lead, error) {
	rec, err := p.store.GetRecord(ctx, leadID)
	if err != nil {
		return lead.Lead{}, err
	}
	return lead.FromRecord(rec), nil
}

// ProcessOne applies the generation/write-back contract to a single lead,
// on demand. Unlike the batch loop, failures surface directly to the caller:
// airtable.ErrNotFound for a missing id, ErrInsufficientData for a lead that
// cannot be prompted, and wrapped generation/update errors otherwise.
func (p *Pipeline) ProcessOne(ctx context.Context, leadID string) (lead.Lead, string, error) {
	ld, err := p.GetLead(ctx, leadID)
	if err != nil {
		return lead.Lead{}, "", err
	}
	if ld.FullName == "" || ld.Email == "" {
		return ld, "", ErrInsufficientData
	}

	msg, err := p.generateMessage(ctx, ld)
	if err != nil {
		return ld, "", fmt.Errorf("generate message for lead %s: %w", leadID, err)
	}
	if err := p.writeBack(ctx, leadID, msg); err != nil {
		return ld, msg, fmt.Errorf("persist generated message for lead %s: %w", leadID, err)
	}
	return ld, msg, nil
}

// UpdateMessage writes caller-provided text back to an existing lead,
// bypassing generation. Used by the manual-edit endpoint.
func (p *Pipeline) UpdateMessage(ctx context.Context, leadID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if _, err := p.store.GetRecord(ctx, leadID); err != nil {
		return err
	}
	return p.writeBack(ctx, leadID, text)
}

// CreateLead inserts a new record from a form submission. The new lead
// starts at the top of the funnel with today's date as its contact marker.
func (p *Pipeline) CreateLead(ctx context.Context, form LeadForm) error {
	if strings.TrimSpace(form.FullName) == "" || strings.TrimSpace(form.Email) == "" {
		return ErrInvalidForm
	}

	fields := map[string]any{
		lead.FieldFullName:       strings.TrimSpace(form.FullName),
		lead.FieldEmail:          strings.TrimSpace(form.Email),
		lead.FieldStatusInFunnel: "New",
		lead.FieldLastContacted:  p.now().Format("2006-01-02"),
	}
	setOptional(fields, lead.FieldPhoneNumber, form.PhoneNumber)
	setOptional(fields, lead.FieldPotentialInterest, form.PotentialInterest)
	setOptional(fields, lead.FieldCRMServicesNeeded, form.CRMServicesNeeded)
	setOptional(fields, lead.FieldLeadSource, form.LeadSource)

	if err := p.store.CreateRecord(ctx, fields); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	p.log.Info("lead created", "name", form.FullName)
	return nil
}

// Stats summarizes the current table without mutating anything.
func (p *Pipeline) Stats(ctx context.Context) (Stats, error) {
	records, err := p.store.ListRecords(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch leads: %w", err)
	}
	stale := lead.Classify(records, p.now(), p.log)

	generated := 0
	for _, rec := range records {
		if lead.FromRecord(rec).GeneratedMessage != "" {
			generated++
		}
	}
	return Stats{
		TotalLeads:        len(records),
		StaleLeads:        len(stale),
		MessagesGenerated: generated,
		PendingEngagement: len(stale),
	}, nil
}

// ExportRows flattens the current stale candidates for download.
func (p *Pipeline) ExportRows(ctx context.Context) ([]ExportRow, error) {
	candidates, err := p.FetchCandidates(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(candidates))
	for _, ld := range candidates {
		rows = append(rows, ExportRow{
			ID:                ld.ID,
			FullName:          ld.FullName,
			Email:             ld.Email,
			PhoneNumber:       ld.PhoneNumber,
			PotentialInterest: ld.PotentialInterest,
			CRMServicesNeeded: ld.CRMServicesNeeded,
			LeadSource:        ld.LeadSource,
			StatusInFunnel:    ld.StatusInFunnel,
			LastContacted:     ld.LastContactedRaw,
			MessageGenerated:  ld.GeneratedMessage != "",
			Status:            ld.Status,
			Timestamp:         ld.Timestamp,
		})
	}
	return rows, nil
}

func displayName(ld lead.Lead) string {
	if ld.FullName == "" {
		return "Unknown"
	}
	return ld.FullName
}

func setOptional(fields map[string]any, name, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		fields[name] = value
	}
}
