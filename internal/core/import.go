package core

import (
	"context"
	"fmt"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

// ImportRequest describes one import job.
type ImportRequest struct {
	TemplateID string
	TenantID   string
	JobName    string

	// Type defaults to PRODUCT_IMPORT.
	Type store.JobType

	Source *fileio.Source
}

// ImportResult summarizes a finished import.
type ImportResult struct {
	JobID string `json:"job_id"`
	RowCounts
	Report validation.BatchReport `json:"report"`
}

// Import parses the source, maps every row onto the template, transforms
// and validates it, and caches the outcome per row. Rows are processed in
// input order. Row-level problems never fail the job; a missing template,
// an unreadable file or a store error does.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if req.Source == nil {
		return nil, ErrNoFile
	}
	if req.Type == "" {
		req.Type = store.JobProductImport
	}
	if req.JobName == "" {
		req.JobName = "import " + req.TemplateID
	}

	ctx, r, release, err := s.begin(ctx, store.JobSpec{
		Name:       req.JobName,
		Type:       req.Type,
		TenantID:   req.TenantID,
		TemplateID: req.TemplateID,
		RequestArgs: map[string]any{
			"source": req.Source.Name(),
			"format": string(req.Source.Format()),
			"policy": string(s.policy),
		},
	})
	if err != nil {
		return nil, err
	}
	defer release()

	if err := r.importRows(ctx, req); err != nil {
		return nil, r.fail(ctx, err)
	}
	if err := r.complete(ctx, nil); err != nil {
		return nil, r.fail(ctx, err)
	}
	return &ImportResult{JobID: r.jobID, RowCounts: r.counts, Report: r.report}, nil
}

func (r *run) importRows(ctx context.Context, req ImportRequest) error {
	if err := r.stage(ctx, store.StatusImportFileFetch); err != nil {
		return err
	}
	if err := r.loadTemplate(req.TemplateID); err != nil {
		return err
	}
	if err := r.done(ctx, 0, 0, 0); err != nil {
		return err
	}

	if err := r.stage(ctx, store.StatusImportFileParse); err != nil {
		return err
	}

	index := 0
	for raw, err := range req.Source.Rows(ctx) {
		if err != nil {
			return readError(ctx, err)
		}
		if index == 0 {
			if err := r.done(ctx, 0, 0, 0); err != nil {
				return err
			}
			if err := r.stage(ctx, store.StatusImportTemplateMap); err != nil {
				return err
			}
			if err := checkColumns(r.compiled.Template(), raw); err != nil {
				return err
			}
			if err := r.done(ctx, 0, 0, 0); err != nil {
				return err
			}
			if err := r.stage(ctx, store.StatusImportTransform); err != nil {
				return err
			}
		}
		if _, err := r.process(ctx, index, raw); err != nil {
			return err
		}
		index++
	}
	if index == 0 {
		return fmt.Errorf("%s: %w", req.Source.Name(), fileio.ErrNoData)
	}
	if err := r.done(ctx, r.counts.Total, r.counts.Total-r.counts.Rejected, r.counts.Rejected); err != nil {
		return err
	}

	if err := r.stage(ctx, store.StatusImportValidate); err != nil {
		return err
	}
	if err := r.done(ctx, r.counts.Total, r.counts.Valid, r.counts.Invalid+r.counts.Rejected); err != nil {
		return err
	}

	if err := r.stage(ctx, store.StatusImportWriteCache); err != nil {
		return err
	}
	if err := r.writer.Flush(ctx); err != nil {
		return err
	}
	written := int(r.writer.Written())
	return r.done(ctx, written, written, 0)
}
