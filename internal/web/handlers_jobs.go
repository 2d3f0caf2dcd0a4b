package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
)

const (
	defaultJobLimit    = 20
	defaultRecordLimit = 100
	maxRecordLimit     = 10000
)

// handleListJobs lists recent jobs. Query parameters: tenant_id, type, limit.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := s.service.RecentJobs(r.Context(),
		q.Get("tenant_id"),
		store.JobType(strings.ToUpper(q.Get("type"))),
		parseIntParam(r, "limit", defaultJobLimit),
	)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleGetJob returns one job with its step metrics.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// handleJobRecords returns a job's completeness records in row order.
func (s *Server) handleJobRecords(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntParam(r, "limit", defaultRecordLimit), maxRecordLimit)

	records, summary, err := s.service.JobRecords(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if records == nil {
		records = []store.CompletenessRecord{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
		"summary": summary,
	})
}

// handleRollbackJob removes the completeness records a finished job wrote.
func (s *Server) handleRollbackJob(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.RollbackJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// InvalidateRequest selects the cached records to mark stale.
type InvalidateRequest struct {
	TenantID   string `json:"tenant_id"`
	TemplateID string `json:"template_id,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
}

// handleInvalidateCache marks cached outputs stale.
func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	n, err := s.service.InvalidateCache(r.Context(), req.TenantID, req.TemplateID, req.ProductID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"invalidated": n})
}
