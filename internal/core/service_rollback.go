package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/logging"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
)

var (
	// ErrJobActive is returned when a rollback targets a job that is still running.
	ErrJobActive = errors.New("job is still running")

	// ErrAlreadyRolledBack is returned when a job's records were already removed.
	ErrAlreadyRolledBack = errors.New("job already rolled back")
)

// RollbackResult reports what a rollback removed.
type RollbackResult struct {
	JobID          string `json:"job_id"`
	TemplateID     string `json:"template_id"`
	RecordsDeleted int64  `json:"records_deleted"`
}

// RollbackJob deletes the completeness records a finished job wrote and
// marks the job as rolled back. The job row itself is kept.
func (s *Service) RollbackJob(ctx context.Context, jobID string) (RollbackResult, error) {
	result := RollbackResult{JobID: jobID}

	job, err := s.Job(ctx, jobID)
	if err != nil {
		return result, err
	}
	result.TemplateID = job.TemplateID

	if !job.Status.Terminal() {
		return result, fmt.Errorf("%w: %s is at %s", ErrJobActive, jobID, job.Status)
	}
	if _, done := job.Response["rolled_back_at"]; done {
		return result, fmt.Errorf("%w: %s", ErrAlreadyRolledBack, jobID)
	}

	n, err := s.store.Delete(ctx, store.CompletenessTable, store.Filter{"job_id": jobID})
	if err != nil {
		return result, fmt.Errorf("delete job records: %w", err)
	}
	result.RecordsDeleted = n

	// Records are already gone; a failed status write is only logged.
	if err := s.jobs.MarkRolledBack(ctx, jobID, n); err != nil {
		logging.FromContext(ctx).Error("mark job rolled back", "job_id", jobID, "error", err)
	}

	logging.FromContext(ctx).Info("job rolled back",
		"job_id", jobID,
		"template_id", job.TemplateID,
		"records_deleted", n,
	)
	return result, nil
}

// InvalidateCache marks a tenant's cached outputs stale so previews and
// later runs stop comparing against them. Empty templateID or productID
// widen the match.
func (s *Service) InvalidateCache(ctx context.Context, tenantID, templateID, productID string) (int64, error) {
	if templateID != "" {
		if _, err := Lookup(templateID); err != nil {
			return 0, err
		}
	}
	n, err := store.InvalidateCache(ctx, s.store, tenantID, templateID, productID)
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Info("cache invalidated",
		"tenant_id", tenantID,
		"template_id", templateID,
		"product_id", productID,
		"records", n,
	)
	return n, nil
}
