package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// RunType says whether a completeness record came from an import or an export.
type RunType string

const (
	RunImport RunType = "IMPORT"
	RunExport RunType = "EXPORT"
)

// RowStatus is the pipeline outcome for one row.
type RowStatus string

const (
	RowValid    RowStatus = "VALID"
	RowInvalid  RowStatus = "INVALID"
	RowRejected RowStatus = "REJECTED"
)

// Issue is one validation failure as stored with a completeness record.
type Issue struct {
	Field    string `json:"field"`
	RuleType string `json:"rule_type"`
	Message  string `json:"message"`
}

// CompletenessRecord is the cached outcome of pushing one row through a template.
type CompletenessRecord struct {
	ID               string             `json:"id"`
	JobID            string             `json:"job_id"`
	RunType          RunType            `json:"run_type"`
	TenantID         string             `json:"tenant_id,omitempty"`
	TemplateID       string             `json:"template_id"`
	ProductID        string             `json:"product_id,omitempty"`
	RowIndex         int                `json:"row_index"`
	Status           RowStatus          `json:"status"`
	ErrorCount       int                `json:"error_count"`
	Transformed      map[string]any     `json:"transformed_response"`
	ValidationErrors map[string][]Issue `json:"validation_errors,omitempty"`
	InputHash        string             `json:"input_hash"`
	Fresh            bool               `json:"cache_freshness"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Fingerprint hashes a raw input row. Equal rows give equal fingerprints
// regardless of key order.
func Fingerprint(row map[string]any) (string, error) {
	// Map keys are marshaled in sorted order.
	b, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return fmt.Sprintf("%016x", xxh3.Hash(b)), nil
}

func (c CompletenessRecord) toRecord() Record {
	return Record{
		"id":                   c.ID,
		"job_id":               c.JobID,
		"run_type":             string(c.RunType),
		"tenant_id":            c.TenantID,
		"template_id":          c.TemplateID,
		"product_id":           c.ProductID,
		"row_index":            int64(c.RowIndex),
		"status":               string(c.Status),
		"error_count":          int64(c.ErrorCount),
		"transformed_response": orEmpty(c.Transformed),
		"validation_errors":    c.ValidationErrors,
		"input_hash":           c.InputHash,
		"cache_freshness":      c.Fresh,
		"created_at":           c.CreatedAt,
	}
}

func completenessFromRecord(r Record) (CompletenessRecord, error) {
	c := CompletenessRecord{
		ID:         convert.ToString(r["id"]),
		JobID:      convert.ToString(r["job_id"]),
		RunType:    RunType(convert.ToString(r["run_type"])),
		TenantID:   convert.ToString(r["tenant_id"]),
		TemplateID: convert.ToString(r["template_id"]),
		ProductID:  convert.ToString(r["product_id"]),
		Status:     RowStatus(convert.ToString(r["status"])),
		InputHash:  convert.ToString(r["input_hash"]),
	}
	if n, ok := convert.ToInt(r["row_index"]); ok {
		c.RowIndex = int(n)
	}
	if n, ok := convert.ToInt(r["error_count"]); ok {
		c.ErrorCount = int(n)
	}
	c.Fresh, _ = convert.ToBool(r["cache_freshness"])
	c.CreatedAt, _ = convert.ToTime(r["created_at"])

	if err := decodeColumn(r["transformed_response"], &c.Transformed); err != nil {
		return c, fmt.Errorf("decode transformed_response: %w", err)
	}
	if err := decodeColumn(r["validation_errors"], &c.ValidationErrors); err != nil {
		return c, fmt.Errorf("decode validation_errors: %w", err)
	}
	return c, nil
}

// DefaultCompletenessBatch is the number of records buffered before a flush.
const DefaultCompletenessBatch = 500

// CompletenessWriter buffers completeness records and writes them in batches.
type CompletenessWriter struct {
	store     Store
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	pending []Record
	written int64
}

// NewCompletenessWriter returns a writer flushing every batchSize records.
func NewCompletenessWriter(s Store, batchSize int) *CompletenessWriter {
	if batchSize <= 0 {
		batchSize = DefaultCompletenessBatch
	}
	return &CompletenessWriter{
		store:     s,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Add queues rec, assigning its id and timestamp, and flushes a full batch.
func (w *CompletenessWriter) Add(ctx context.Context, rec CompletenessRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = w.now()
	}
	rec.Fresh = true

	w.mu.Lock()
	w.pending = append(w.pending, rec.toRecord())
	full := len(w.pending) >= w.batchSize
	w.mu.Unlock()

	if full {
		if err := w.Flush(ctx); err != nil {
			return rec.ID, err
		}
	}
	return rec.ID, nil
}

// Flush writes every queued record.
func (w *CompletenessWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	n, err := w.store.InsertBatch(ctx, CompletenessTable, batch)
	w.mu.Lock()
	w.written += n
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write completeness batch: %w", err)
	}
	return nil
}

// Written returns the number of records flushed so far.
func (w *CompletenessWriter) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// InvalidateCache marks a tenant's cached records stale. Empty templateID or
// productID widen the match.
func InvalidateCache(ctx context.Context, s Store, tenantID, templateID, productID string) (int64, error) {
	filter := Filter{"tenant_id": tenantID}
	if templateID != "" {
		filter["template_id"] = templateID
	}
	if productID != "" {
		filter["product_id"] = productID
	}
	n, err := s.Update(ctx, CompletenessTable, filter, Record{"cache_freshness": false})
	if err != nil {
		return 0, fmt.Errorf("invalidate cache: %w", err)
	}
	return n, nil
}

// CompletenessSummary counts a job's records by status.
type CompletenessSummary struct {
	Total    int `json:"total"`
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	Rejected int `json:"rejected"`
	Errors   int `json:"errors"`
}

// CompletenessReader reads completeness records back.
type CompletenessReader struct {
	store Store
}

// NewCompletenessReader returns a reader over s.
func NewCompletenessReader(s Store) *CompletenessReader {
	return &CompletenessReader{store: s}
}

// ListByJob returns a job's records in row order. limit <= 0 returns all.
func (r *CompletenessReader) ListByJob(ctx context.Context, jobID string, limit int) ([]CompletenessRecord, error) {
	rows, err := r.store.Query(ctx, CompletenessTable, Filter{"job_id": jobID},
		QueryOptions{OrderBy: "row_index", Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list completeness: %w", err)
	}
	out := make([]CompletenessRecord, 0, len(rows))
	for _, row := range rows {
		c, err := completenessFromRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Latest returns the newest fresh record for a product under a template.
func (r *CompletenessReader) Latest(ctx context.Context, tenantID, templateID, productID string) (*CompletenessRecord, error) {
	rows, err := r.store.Query(ctx, CompletenessTable, Filter{
		"tenant_id":       tenantID,
		"template_id":     templateID,
		"product_id":      productID,
		"cache_freshness": true,
	}, QueryOptions{OrderBy: "created_at", Desc: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("latest completeness: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	c, err := completenessFromRecord(rows[0])
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Summarize counts a job's records by status.
func (r *CompletenessReader) Summarize(ctx context.Context, jobID string) (CompletenessSummary, error) {
	records, err := r.ListByJob(ctx, jobID, 0)
	if err != nil {
		return CompletenessSummary{}, err
	}
	var s CompletenessSummary
	for _, c := range records {
		s.Total++
		s.Errors += c.ErrorCount
		switch c.Status {
		case RowValid:
			s.Valid++
		case RowInvalid:
			s.Invalid++
		case RowRejected:
			s.Rejected++
		}
	}
	return s, nil
}
