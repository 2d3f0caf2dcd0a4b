package core

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/logging"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

// ExportRequest describes one export job.
type ExportRequest struct {
	TemplateID string
	TenantID   string
	JobName    string

	// Type defaults to PRODUCT_EXPORT.
	Type store.JobType

	// Source holds the product rows to export.
	Source *fileio.Source

	// Formats lists the files to build. Defaults to csv.
	Formats []fileio.Format

	// IncludeInvalid exports invalid rows as well. Rejected rows are
	// never exported.
	IncludeInvalid bool

	// FileName is the base name of the built files. Defaults to the
	// template id.
	FileName string

	// Build tunes the file builders. Format and Columns are set per file.
	Build fileio.Options
}

// ExportFile is one built file.
type ExportFile struct {
	Format      fileio.Format `json:"format"`
	Name        string        `json:"name"`
	Path        string        `json:"path,omitempty"`
	Size        int           `json:"size"`
	ContentType string        `json:"content_type"`
	Data        []byte        `json:"-"`
}

// ExportResult summarizes a finished export.
type ExportResult struct {
	JobID string `json:"job_id"`
	RowCounts
	Exported int                    `json:"exported"`
	Files    []ExportFile           `json:"files"`
	Report   validation.BatchReport `json:"report"`
}

// Export reads product rows, transforms and validates them against the
// template, and builds one file per requested format. Files are written
// under the configured output directory when one is set.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if req.Source == nil {
		return nil, ErrNoFile
	}
	if req.Type == "" {
		req.Type = store.JobProductExport
	}
	if len(req.Formats) == 0 {
		req.Formats = []fileio.Format{fileio.FormatCSV}
	}
	if req.FileName == "" {
		req.FileName = req.TemplateID
	}
	if req.JobName == "" {
		req.JobName = "export " + req.TemplateID
	}

	formats := make([]string, len(req.Formats))
	for i, f := range req.Formats {
		formats[i] = string(f)
	}
	ctx, r, release, err := s.begin(ctx, store.JobSpec{
		Name:       req.JobName,
		Type:       req.Type,
		TenantID:   req.TenantID,
		TemplateID: req.TemplateID,
		RequestArgs: map[string]any{
			"source":          req.Source.Name(),
			"formats":         formats,
			"include_invalid": req.IncludeInvalid,
		},
	})
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := r.exportRows(ctx, req)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	files := make([]any, len(res.Files))
	for i, f := range res.Files {
		files[i] = map[string]any{"format": string(f.Format), "name": f.Name, "path": f.Path, "size": f.Size}
	}
	if err := r.complete(ctx, map[string]any{"exported_rows": res.Exported, "files": files}); err != nil {
		return nil, r.fail(ctx, err)
	}
	return res, nil
}

func (r *run) exportRows(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if err := r.stage(ctx, store.StatusExportLoadTemplate); err != nil {
		return nil, err
	}
	if err := r.loadTemplate(req.TemplateID); err != nil {
		return nil, err
	}
	if err := r.done(ctx, 0, 0, 0); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, store.StatusExportFetchProducts); err != nil {
		return nil, err
	}
	products, err := fileio.ReadAll(ctx, req.Source)
	if err != nil {
		return nil, readError(ctx, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%s: %w", req.Source.Name(), fileio.ErrNoData)
	}
	if err := r.done(ctx, len(products), len(products), 0); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, store.StatusExportTransform); err != nil {
		return nil, err
	}
	var rows []fileio.Record
	for i, raw := range products {
		outcome, err := r.process(ctx, i, raw)
		if err != nil {
			return nil, err
		}
		switch {
		case outcome.Status == store.RowValid:
			rows = append(rows, outcome.Output)
		case outcome.Status == store.RowInvalid && req.IncludeInvalid:
			rows = append(rows, outcome.Output)
		}
	}
	if err := r.done(ctx, r.counts.Total, r.counts.Total-r.counts.Rejected, r.counts.Rejected); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, store.StatusExportValidate); err != nil {
		return nil, err
	}
	if err := r.done(ctx, r.counts.Total, r.counts.Valid, r.counts.Invalid+r.counts.Rejected); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, store.StatusExportWriteCache); err != nil {
		return nil, err
	}
	if err := r.writer.Flush(ctx); err != nil {
		return nil, err
	}
	written := int(r.writer.Written())
	if err := r.done(ctx, written, written, 0); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, store.StatusExportBuildFile); err != nil {
		return nil, err
	}
	files, err := buildFiles(ctx, rows, r.compiled.Template().Columns(), req)
	if err != nil {
		return nil, err
	}
	if err := r.done(ctx, len(rows), len(rows), 0); err != nil {
		return nil, err
	}

	if r.svc.outputDir != "" {
		if err := r.stage(ctx, store.StatusExportUploadFile); err != nil {
			return nil, err
		}
		dir := filepath.Join(r.svc.outputDir, r.jobID)
		for i := range files {
			path := filepath.Join(dir, files[i].Name)
			if err := fileio.WriteBytes(path, files[i].Data); err != nil {
				return nil, err
			}
			files[i].Path = path
		}
		if err := r.done(ctx, len(files), len(files), 0); err != nil {
			return nil, err
		}
	}

	if err := r.stage(ctx, store.StatusExportNotify); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("export files ready", "files", len(files), "rows", len(rows))
	if err := r.done(ctx, len(files), len(files), 0); err != nil {
		return nil, err
	}

	return &ExportResult{
		JobID:     r.jobID,
		RowCounts: r.counts,
		Exported:  len(rows),
		Files:     files,
		Report:    r.report,
	}, nil
}

// buildFiles renders rows once per format, concurrently.
func buildFiles(ctx context.Context, rows []fileio.Record, columns []string, req ExportRequest) ([]ExportFile, error) {
	files := make([]ExportFile, len(req.Formats))
	g, ctx := errgroup.WithContext(ctx)
	for i, format := range req.Formats {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			opts := req.Build
			opts.Format = format
			opts.Columns = columns

			start := time.Now()
			data, err := fileio.Build(rows, opts)
			if err != nil {
				return fmt.Errorf("build %s: %w", format, err)
			}
			logging.FromContext(ctx).Debug("export file built", "format", format, "bytes", len(data), "duration", time.Since(start))

			files[i] = ExportFile{
				Format:      format,
				Name:        req.FileName + "." + format.Extension(),
				Size:        len(data),
				ContentType: format.ContentType(),
				Data:        data,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
