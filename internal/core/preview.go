package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
)

// PreviewSummary contains the summary counts for a template preview.
type PreviewSummary struct {
	TotalRows       int `json:"total_rows"`
	ValidRows       int `json:"valid_rows"`
	InvalidRows     int `json:"invalid_rows"`
	RejectedRows    int `json:"rejected_rows"`
	NewProducts     int `json:"new_products"`
	ChangedProducts int `json:"changed_products"`
	Unchanged       int `json:"unchanged_products"`
	DuplicateInFile int `json:"duplicate_in_file"`

	// Truncated is set when the file holds more rows than were read.
	Truncated bool `json:"truncated,omitempty"`
}

// RowPreview is one transformed row.
type RowPreview struct {
	Index     int            `json:"index"`
	ProductID string         `json:"product_id,omitempty"`
	Values    map[string]any `json:"values"`
}

// ChangeDiff compares a row with the cached output for the same product.
type ChangeDiff struct {
	Index     int            `json:"index"`
	ProductID string         `json:"product_id"`
	Cached    map[string]any `json:"cached"`
	Incoming  map[string]any `json:"incoming"`
	Changed   []string       `json:"changed"`
}

// ErrorPreview is a row that failed a transform or a rule.
type ErrorPreview struct {
	Index     int                      `json:"index"`
	ProductID string                   `json:"product_id,omitempty"`
	Status    store.RowStatus          `json:"status"`
	Values    map[string]any           `json:"values"`
	Issues    map[string][]store.Issue `json:"issues"`
	Reason    string                   `json:"reason,omitempty"`
}

// DuplicatePreview lists the rows sharing one product id.
type DuplicatePreview struct {
	ProductID string `json:"product_id"`
	Rows      []int  `json:"rows"`
}

// PreviewResponse is the result of a dry run.
type PreviewResponse struct {
	TemplateID       string             `json:"template_id"`
	Summary          PreviewSummary     `json:"summary"`
	NewSamples       []RowPreview       `json:"new_samples"`
	ChangeDiffs      []ChangeDiff       `json:"change_diffs"`
	ErrorSamples     []ErrorPreview     `json:"error_samples"`
	DuplicateSamples []DuplicatePreview `json:"duplicate_samples"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
}

// Sample limits
const (
	maxNewSamples       = 10
	maxChangeDiffs      = 10
	maxErrorSamples     = 20
	maxDuplicateSamples = 10

	// DefaultPreviewRows bounds how many rows a preview reads.
	DefaultPreviewRows = 1000
)

// PreviewRequest describes a dry run of a template over a file.
type PreviewRequest struct {
	TemplateID string
	TenantID   string
	Source     *fileio.Source

	// MaxRows bounds the rows read. Defaults to DefaultPreviewRows.
	MaxRows int
}

// Preview runs rows through a template without creating a job or writing
// to the store. It reports row outcomes, rows whose product id repeats in
// the file and, when the template has a key, how each product compares
// with its cached output from earlier runs.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResponse, error) {
	start := time.Now()
	if req.Source == nil {
		return nil, ErrNoFile
	}
	if req.MaxRows <= 0 {
		req.MaxRows = DefaultPreviewRows
	}

	t, err := Lookup(req.TemplateID)
	if err != nil {
		return nil, err
	}
	compiled, err := Compile(t, s.engine, s.policy)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResponse{TemplateID: t.ID}
	seenKeys := make(map[string][]int)
	var firstSeen []string
	var valid []RowPreview

	index := 0
	for raw, err := range req.Source.Rows(ctx) {
		if err != nil {
			return nil, readError(ctx, err)
		}
		if index == 0 {
			if err := checkColumns(t, raw); err != nil {
				return nil, err
			}
		}
		if index >= req.MaxRows {
			resp.Summary.Truncated = true
			break
		}

		out := compiled.Process(index, raw)
		resp.Summary.TotalRows++

		var productID string
		if t.Key != "" {
			productID = convert.ToString(out.Output[t.Key])
		}

		switch out.Status {
		case store.RowValid:
			resp.Summary.ValidRows++
			if productID != "" {
				if _, seen := seenKeys[productID]; !seen {
					firstSeen = append(firstSeen, productID)
				}
				seenKeys[productID] = append(seenKeys[productID], index)
			}
			valid = append(valid, RowPreview{Index: index, ProductID: productID, Values: out.Output})
		case store.RowInvalid, store.RowRejected:
			if out.Status == store.RowInvalid {
				resp.Summary.InvalidRows++
			} else {
				resp.Summary.RejectedRows++
			}
			if len(resp.ErrorSamples) < maxErrorSamples {
				resp.ErrorSamples = append(resp.ErrorSamples, ErrorPreview{
					Index:     index,
					ProductID: productID,
					Status:    out.Status,
					Values:    out.Output,
					Issues:    out.Issues,
					Reason:    out.Reason,
				})
			}
		}
		index++
	}
	if index == 0 {
		return nil, fmt.Errorf("%s: %w", req.Source.Name(), fileio.ErrNoData)
	}

	// Track file duplicates in order of first appearance.
	for _, key := range firstSeen {
		rows := seenKeys[key]
		if len(rows) < 2 {
			continue
		}
		resp.Summary.DuplicateInFile += len(rows) - 1
		if len(resp.DuplicateSamples) < maxDuplicateSamples {
			resp.DuplicateSamples = append(resp.DuplicateSamples, DuplicatePreview{ProductID: key, Rows: rows})
		}
	}

	// Classify valid rows against the cache; the last row for a key wins.
	for _, row := range valid {
		if row.ProductID != "" {
			rows := seenKeys[row.ProductID]
			if rows[len(rows)-1] != row.Index {
				continue
			}
			cached, err := s.records.Latest(ctx, req.TenantID, t.ID, row.ProductID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			if cached != nil {
				changed := changedFields(cached.Transformed, row.Values)
				if len(changed) == 0 {
					resp.Summary.Unchanged++
					continue
				}
				resp.Summary.ChangedProducts++
				if len(resp.ChangeDiffs) < maxChangeDiffs {
					resp.ChangeDiffs = append(resp.ChangeDiffs, ChangeDiff{
						Index:     row.Index,
						ProductID: row.ProductID,
						Cached:    cached.Transformed,
						Incoming:  row.Values,
						Changed:   changed,
					})
				}
				continue
			}
		}
		resp.Summary.NewProducts++
		if len(resp.NewSamples) < maxNewSamples {
			resp.NewSamples = append(resp.NewSamples, row)
		}
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// changedFields lists the fields whose text form differs, sorted.
// Values are compared as text because cached outputs come back from JSON.
func changedFields(cached, incoming map[string]any) []string {
	var changed []string
	for field, v := range incoming {
		if c, ok := cached[field]; !ok || convert.ToString(c) != convert.ToString(v) {
			changed = append(changed, field)
		}
	}
	sort.Strings(changed)
	return changed
}
