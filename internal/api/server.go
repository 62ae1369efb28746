// Package api exposes the re-engagement pipeline over HTTP. Handlers only
// translate requests and responses; all decisions live in the pipeline.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ufiyan/leadrevive/internal/airtable"
	"github.com/ufiyan/leadrevive/internal/pipeline"
	"github.com/ufiyan/leadrevive/internal/util"
)

type Server struct {
	pipe           *pipeline.Pipeline
	log            *slog.Logger
	allowedOrigins []string
}

func New(pipe *pipeline.Pipeline, log *slog.Logger, allowedOrigins []string) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{pipe: pipe, log: log, allowedOrigins: allowedOrigins}
}

// Routes returns the chi router with all endpoints mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/stale-leads", s.handleStaleLeads)
	r.Post("/process-stale-leads", s.handleProcessStaleLeads)
	r.Get("/leads/{leadID}", s.handleGetLead)
	r.Post("/generate-email/{leadID}", s.handleGenerateEmail)
	r.Post("/update-email/{leadID}", s.handleUpdateEmail)
	r.Post("/submit-form", s.handleSubmitForm)
	r.Get("/export-leads", s.handleExportLeads)
	r.Get("/dashboard-stats", s.handleDashboardStats)

	return r
}

// cors applies the configured origin allow-list and answers preflight
// requests. An empty allow-list disables cross-origin access entirely.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStaleLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.pipe.FetchCandidates(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(leads),
		"leads": leads,
	})
}

func (s *Server) handleProcessStaleLeads(w http.ResponseWriter, r *http.Request) {
	report, err := s.pipe.Run(r.Context())
	if err != nil {
		s.log.Error("batch run failed", "error", util.RedactSecrets(err.Error()))
		writeJSON(w, http.StatusBadGateway, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	ld, err := s.pipe.GetLead(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		if errors.Is(err, airtable.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, ld)
}

func (s *Server) handleGenerateEmail(w http.ResponseWriter, r *http.Request) {
	ld, msg, err := s.pipe.ProcessOne(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		switch {
		case errors.Is(err, airtable.ErrNotFound):
			s.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pipeline.ErrInsufficientData):
			s.writeError(w, http.StatusBadRequest, err)
		default:
			s.writeError(w, http.StatusBadGateway, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"leadId":   ld.ID,
		"leadName": ld.FullName,
		"message":  msg,
	})
}

func (s *Server) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	err := s.pipe.UpdateMessage(r.Context(), chi.URLParam(r, "leadID"), body.Message)
	if err != nil {
		switch {
		case errors.Is(err, airtable.ErrNotFound):
			s.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pipeline.ErrEmptyMessage):
			s.writeError(w, http.StatusBadRequest, err)
		default:
			s.writeError(w, http.StatusBadGateway, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// leadFormBody accepts both "emailAddress" and the shorter "email" alias
// that the original form submits.
type leadFormBody struct {
	pipeline.LeadForm
	EmailAlias string `json:"email"`
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	var body leadFormBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	form := body.LeadForm
	if form.Email == "" {
		form.Email = body.EmailAlias
	}
	if err := s.pipe.CreateLead(r.Context(), form); err != nil {
		if errors.Is(err, pipeline.ErrInvalidForm) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

func (s *Server) handleExportLeads(w http.ResponseWriter, r *http.Request) {
	rows, err := s.pipe.ExportRows(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	if rows == nil {
		rows = []pipeline.ExportRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipe.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	msg := util.RedactSecrets(err.Error())
	if status >= 500 {
		s.log.Error("request failed", "status", status, "error", msg)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
