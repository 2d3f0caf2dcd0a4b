package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// JobType identifies what a job does.
type JobType string

const (
	JobProductImport  JobType = "PRODUCT_IMPORT"
	JobVariantImport  JobType = "VARIANT_IMPORT"
	JobProductExport  JobType = "PRODUCT_EXPORT"
	JobCategoryExport JobType = "CATEGORY_EXPORT"
)

// IsImport reports whether the job type is an import.
func (t JobType) IsImport() bool { return strings.Contains(string(t), "IMPORT") }

// JobStatus is the stage a job is in. Imports and exports walk their own
// stage lists and end in COMPLETED or FAILED.
type JobStatus string

const (
	StatusImportInit        JobStatus = "IMPORT_INIT"
	StatusImportFileFetch   JobStatus = "IMPORT_FILE_FETCH"
	StatusImportFileParse   JobStatus = "IMPORT_FILE_PARSE"
	StatusImportTemplateMap JobStatus = "IMPORT_TEMPLATE_MAP"
	StatusImportTransform   JobStatus = "IMPORT_TRANSFORM"
	StatusImportValidate    JobStatus = "IMPORT_VALIDATE"
	StatusImportWriteCache  JobStatus = "IMPORT_WRITE_CACHE"
	StatusImportWriteDB     JobStatus = "IMPORT_WRITE_DB"
	StatusImportPostprocess JobStatus = "IMPORT_POSTPROCESS"

	StatusExportInit          JobStatus = "EXPORT_INIT"
	StatusExportLoadTemplate  JobStatus = "EXPORT_LOAD_TEMPLATE"
	StatusExportFetchProducts JobStatus = "EXPORT_FETCH_PRODUCTS"
	StatusExportTransform     JobStatus = "EXPORT_TRANSFORM"
	StatusExportValidate      JobStatus = "EXPORT_VALIDATE"
	StatusExportWriteCache    JobStatus = "EXPORT_WRITE_CACHE"
	StatusExportBuildFile     JobStatus = "EXPORT_BUILD_FILE"
	StatusExportUploadFile    JobStatus = "EXPORT_UPLOAD_FILE"
	StatusExportNotify        JobStatus = "EXPORT_NOTIFY"

	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further stage follows.
func (s JobStatus) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// StepMetrics records one stage of a job.
type StepMetrics struct {
	Step          JobStatus      `json:"step"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	RowsProcessed int            `json:"rows_processed"`
	RowsSuccess   int            `json:"rows_success"`
	RowsFailed    int            `json:"rows_failed"`
	Errors        []string       `json:"errors,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// JobMetrics is the per-stage progress log stored with a job.
type JobMetrics struct {
	CreatedAt   time.Time     `json:"created_at"`
	CurrentStep JobStatus     `json:"current_step"`
	Steps       []StepMetrics `json:"steps"`
}

// Job is one row of the jobs table.
type Job struct {
	ID           string         `json:"job_id"`
	Name         string         `json:"job_name"`
	Type         JobType        `json:"job_type"`
	Status       JobStatus      `json:"job_status"`
	TenantID     string         `json:"tenant_id,omitempty"`
	TemplateID   string         `json:"template_id,omitempty"`
	RequestArgs  map[string]any `json:"request_args,omitempty"`
	Response     map[string]any `json:"job_response,omitempty"`
	Metrics      JobMetrics     `json:"metrics"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Duration is the time between creation and the last update.
func (j *Job) Duration() time.Duration {
	return j.UpdatedAt.Sub(j.CreatedAt)
}

// JobSpec describes a job to create. ID is generated when empty.
type JobSpec struct {
	ID          string
	Name        string
	Type        JobType
	TenantID    string
	TemplateID  string
	RequestArgs map[string]any
}

// StepCounts closes out the current stage.
type StepCounts struct {
	Processed int
	Success   int
	Failed    int
	Errors    []string
}

// JobManager tracks job lifecycle in the jobs table.
type JobManager struct {
	store Store
	now   func() time.Time
}

// NewJobManager returns a manager writing through s.
func NewJobManager(s Store) *JobManager {
	return &JobManager{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// CreateJob inserts a job in its INIT stage and returns its id.
func (m *JobManager) CreateJob(ctx context.Context, spec JobSpec) (string, error) {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := StatusExportInit
	if spec.Type.IsImport() {
		status = StatusImportInit
	}
	now := m.now()

	rec := Record{
		"job_id":       id,
		"job_name":     spec.Name,
		"job_type":     string(spec.Type),
		"job_status":   string(status),
		"tenant_id":    spec.TenantID,
		"template_id":  spec.TemplateID,
		"request_args": orEmpty(spec.RequestArgs),
		"job_response": map[string]any{},
		"metrics":      JobMetrics{CreatedAt: now, CurrentStep: status, Steps: []StepMetrics{}},
		"created_at":   now,
		"updated_at":   now,
	}
	if err := m.store.Insert(ctx, JobsTable, rec); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

// UpdateStatus moves the job to status and opens a new step in its metrics.
func (m *JobManager) UpdateStatus(ctx context.Context, jobID string, status JobStatus, extra map[string]any) error {
	job, err := m.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	now := m.now()
	job.Metrics.Steps = append(job.Metrics.Steps, StepMetrics{Step: status, StartedAt: now, Extra: extra})
	job.Metrics.CurrentStep = status

	return m.update(ctx, jobID, Record{
		"job_status": string(status),
		"metrics":    job.Metrics,
		"updated_at": now,
	})
}

// CompleteStep records final counts on the most recent step.
func (m *JobManager) CompleteStep(ctx context.Context, jobID string, counts StepCounts) error {
	job, err := m.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	now := m.now()
	if len(job.Metrics.Steps) == 0 {
		job.Metrics.Steps = append(job.Metrics.Steps, StepMetrics{Step: job.Status, StartedAt: job.CreatedAt})
	}
	last := &job.Metrics.Steps[len(job.Metrics.Steps)-1]
	last.CompletedAt = &now
	last.RowsProcessed = counts.Processed
	last.RowsSuccess = counts.Success
	last.RowsFailed = counts.Failed
	last.Errors = counts.Errors

	return m.update(ctx, jobID, Record{"metrics": job.Metrics, "updated_at": now})
}

// CompleteJob moves the job to COMPLETED, or FAILED when success is false.
func (m *JobManager) CompleteJob(ctx context.Context, jobID string, success bool, total, succeeded, failed int, response map[string]any) error {
	now := m.now()
	resp := map[string]any{
		"total":        total,
		"success":      succeeded,
		"failed":       failed,
		"completed_at": now.Format(time.RFC3339Nano),
	}
	for k, v := range response {
		resp[k] = v
	}
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	return m.update(ctx, jobID, Record{
		"job_status":   string(status),
		"job_response": resp,
		"updated_at":   now,
	})
}

// FailJob moves the job to FAILED and records cause.
func (m *JobManager) FailJob(ctx context.Context, jobID string, cause error) error {
	now := m.now()
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return m.update(ctx, jobID, Record{
		"job_status":    string(StatusFailed),
		"job_response":  map[string]any{"error": msg, "failed_at": now.Format(time.RFC3339Nano)},
		"error_message": msg,
		"updated_at":    now,
	})
}

// MarkRolledBack records on a finished job that its completeness records
// were removed.
func (m *JobManager) MarkRolledBack(ctx context.Context, jobID string, deleted int64) error {
	job, err := m.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	now := m.now()
	resp := make(map[string]any, len(job.Response)+2)
	for k, v := range job.Response {
		resp[k] = v
	}
	resp["rolled_back_at"] = now.Format(time.RFC3339Nano)
	resp["records_deleted"] = deleted
	return m.update(ctx, jobID, Record{"job_response": resp, "updated_at": now})
}

// GetJob loads one job. Returns ErrNotFound if it does not exist.
func (m *JobManager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	rows, err := m.store.Query(ctx, JobsTable, Filter{"job_id": jobID}, QueryOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return jobFromRecord(rows[0])
}

// RecentJobs lists a tenant's jobs, newest first. An empty jobType matches all types.
func (m *JobManager) RecentJobs(ctx context.Context, tenantID string, jobType JobType, limit int) ([]Job, error) {
	filter := Filter{"tenant_id": tenantID}
	if jobType != "" {
		filter["job_type"] = string(jobType)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.store.Query(ctx, JobsTable, filter, QueryOptions{OrderBy: "created_at", Desc: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]Job, 0, len(rows))
	for _, r := range rows {
		j, err := jobFromRecord(r)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (m *JobManager) update(ctx context.Context, jobID string, changes Record) error {
	n, err := m.store.Update(ctx, JobsTable, Filter{"job_id": jobID}, changes)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

func jobFromRecord(r Record) (*Job, error) {
	j := &Job{
		ID:           convert.ToString(r["job_id"]),
		Name:         convert.ToString(r["job_name"]),
		Type:         JobType(convert.ToString(r["job_type"])),
		Status:       JobStatus(convert.ToString(r["job_status"])),
		TenantID:     convert.ToString(r["tenant_id"]),
		TemplateID:   convert.ToString(r["template_id"]),
		ErrorMessage: convert.ToString(r["error_message"]),
	}
	j.CreatedAt, _ = convert.ToTime(r["created_at"])
	j.UpdatedAt, _ = convert.ToTime(r["updated_at"])

	if err := decodeColumn(r["request_args"], &j.RequestArgs); err != nil {
		return nil, fmt.Errorf("decode request_args: %w", err)
	}
	if err := decodeColumn(r["job_response"], &j.Response); err != nil {
		return nil, fmt.Errorf("decode job_response: %w", err)
	}
	if err := decodeColumn(r["metrics"], &j.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return j, nil
}

// decodeColumn fills dst from a JSON column, which arrives as text from
// SQLite, as a decoded value from pgx, or as the original value from memory.
func decodeColumn(v any, dst any) error {
	var data []byte
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		data = []byte(t)
	case []byte:
		data = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		data = b
	}
	return json.Unmarshal(data, dst)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
