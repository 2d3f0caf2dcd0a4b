package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/logging"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/metrics"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

var (
	// ErrJobNotFound is returned when no job exists with the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoFile is returned when an import or export has no input.
	ErrNoFile = errors.New("no file provided")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrMalformedFile wraps parser failures.
	ErrMalformedFile = errors.New("malformed file")

	// ErrMissingColumns is returned when required source columns are absent.
	ErrMissingColumns = errors.New("missing required column")
)

// DefaultJobTimeout is the maximum duration of one import or export.
var DefaultJobTimeout = 10 * time.Minute

// Options configures a Service. Zero values take defaults.
type Options struct {
	Engine     *transform.Engine
	Policy     ErrorPolicy
	BatchSize  int
	Limiter    *JobLimiter
	Metrics    *metrics.Recorder
	OutputDir  string
	JobTimeout time.Duration
}

// Service runs template imports and exports and records them as jobs.
type Service struct {
	store     store.Store
	jobs      *store.JobManager
	records   *store.CompletenessReader
	engine    *transform.Engine
	policy    ErrorPolicy
	batchSize int
	limiter   *JobLimiter
	metrics   *metrics.Recorder
	outputDir string
	timeout   time.Duration
}

// NewService creates a Service writing jobs and completeness records to s.
func NewService(s store.Store, opts Options) *Service {
	if opts.Engine == nil {
		opts.Engine = transform.DefaultEngine()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyFallback
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = store.DefaultCompletenessBatch
	}
	if opts.Limiter == nil {
		opts.Limiter = NewJobLimiter(DefaultMaxConcurrentJobs, DefaultMaxWaitTime)
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	return &Service{
		store:     s,
		jobs:      store.NewJobManager(s),
		records:   store.NewCompletenessReader(s),
		engine:    opts.Engine,
		policy:    opts.Policy,
		batchSize: opts.BatchSize,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		outputDir: opts.OutputDir,
		timeout:   opts.JobTimeout,
	}
}

// Ping checks the store connection.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// Engine returns the transform engine templates are compiled with.
func (s *Service) Engine() *transform.Engine { return s.engine }

// Limiter returns the job limiter.
func (s *Service) Limiter() *JobLimiter { return s.limiter }

// ListTemplates returns every registered template.
func (s *Service) ListTemplates() []*Template { return All() }

// Template returns a registered template.
func (s *Service) Template(id string) (*Template, error) { return Lookup(id) }

// Job returns a job by id.
func (s *Service) Job(ctx context.Context, id string) (*store.Job, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, err
}

// RecentJobs lists the newest jobs, optionally filtered by tenant and type.
func (s *Service) RecentJobs(ctx context.Context, tenantID string, jobType store.JobType, limit int) ([]store.Job, error) {
	return s.jobs.RecentJobs(ctx, tenantID, jobType, limit)
}

// JobRecords returns a job's completeness records in row order with a summary.
func (s *Service) JobRecords(ctx context.Context, id string, limit int) ([]store.CompletenessRecord, store.CompletenessSummary, error) {
	if _, err := s.Job(ctx, id); err != nil {
		return nil, store.CompletenessSummary{}, err
	}
	recs, err := s.records.ListByJob(ctx, id, limit)
	if err != nil {
		return nil, store.CompletenessSummary{}, err
	}
	sum, err := s.records.Summarize(ctx, id)
	if err != nil {
		return nil, store.CompletenessSummary{}, err
	}
	return recs, sum, nil
}

// WaitForJobs blocks until no job is running or ctx is done.
func (s *Service) WaitForJobs(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// RowCounts tallies row outcomes.
type RowCounts struct {
	Total    int `json:"total"`
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	Rejected int `json:"rejected"`
}

func (c *RowCounts) add(status store.RowStatus) {
	c.Total++
	switch status {
	case store.RowValid:
		c.Valid++
	case store.RowInvalid:
		c.Invalid++
	case store.RowRejected:
		c.Rejected++
	}
}

// run is the state shared by the stages of one job.
type run struct {
	svc      *Service
	jobID    string
	jobType  store.JobType
	runType  store.RunType
	tenantID string
	compiled *CompiledTemplate
	writer   *store.CompletenessWriter
	started  time.Time

	counts        RowCounts
	report        validation.BatchReport
	fieldFailures int
	ruleFailures  int
}

// begin acquires a job slot and creates the job.
// The returned release func must be called once the job ends.
func (s *Service) begin(ctx context.Context, spec store.JobSpec) (context.Context, *run, func(), error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return ctx, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	release := func() {
		cancel()
		s.limiter.Release()
	}

	jobID, err := s.jobs.CreateJob(ctx, spec)
	if err != nil {
		release()
		return ctx, nil, nil, fmt.Errorf("create job: %w", err)
	}
	ctx = logging.ContextWithJob(ctx, jobID, spec.TemplateID)
	logging.FromContext(ctx).Info("job created", "job_type", spec.Type, "tenant_id", spec.TenantID)

	r := &run{
		svc:      s,
		jobID:    jobID,
		jobType:  spec.Type,
		runType:  store.RunExport,
		tenantID: spec.TenantID,
		writer:   store.NewCompletenessWriter(s.store, s.batchSize),
		started:  time.Now(),
		report:   validation.BatchReport{},
	}
	if spec.Type.IsImport() {
		r.runType = store.RunImport
	}
	return ctx, r, release, nil
}

func (r *run) stage(ctx context.Context, status store.JobStatus) error {
	logging.FromContext(ctx).Debug("job stage", "stage", status)
	return r.svc.jobs.UpdateStatus(ctx, r.jobID, status, nil)
}

func (r *run) done(ctx context.Context, processed, success, failed int) error {
	return r.svc.jobs.CompleteStep(ctx, r.jobID, store.StepCounts{Processed: processed, Success: success, Failed: failed})
}

func (r *run) loadTemplate(id string) error {
	t, err := Lookup(id)
	if err != nil {
		return err
	}
	r.compiled, err = Compile(t, r.svc.engine, r.svc.policy)
	return err
}

// process pushes one raw row through the template and queues its
// completeness record.
func (r *run) process(ctx context.Context, index int, raw map[string]any) (RowOutcome, error) {
	outcome := r.compiled.Process(index, raw)
	r.counts.add(outcome.Status)

	for _, list := range outcome.Issues {
		for _, is := range list {
			if is.RuleType == TransformRuleType {
				r.fieldFailures++
			} else {
				r.ruleFailures++
			}
		}
	}
	if outcome.Status != store.RowValid {
		r.report[validation.RowKey(index)] = outcome.Report()
	}

	hash, err := store.Fingerprint(raw)
	if err != nil {
		return outcome, err
	}
	tmpl := r.compiled.Template()
	rec := store.CompletenessRecord{
		JobID:            r.jobID,
		RunType:          r.runType,
		TenantID:         r.tenantID,
		TemplateID:       tmpl.ID,
		RowIndex:         index,
		Status:           outcome.Status,
		ErrorCount:       outcome.ErrorCount(),
		Transformed:      outcome.Output,
		ValidationErrors: outcome.Issues,
		InputHash:        hash,
	}
	if tmpl.Key != "" {
		rec.ProductID = convert.ToString(outcome.Output[tmpl.Key])
	}
	if _, err := r.writer.Add(ctx, rec); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// fail marks the job failed and records metrics. It returns cause.
func (r *run) fail(ctx context.Context, cause error) error {
	logging.FromContext(ctx).Error("job failed", "error", cause, "rows", r.counts.Total)
	// The job context may already be done; the failure must still be recorded.
	if err := r.svc.jobs.FailJob(context.WithoutCancel(ctx), r.jobID, cause); err != nil {
		logging.FromContext(ctx).Error("record job failure", "error", err)
	}
	r.svc.metrics.JobFinished(string(r.jobType), string(store.StatusFailed), time.Since(r.started))
	return cause
}

func (r *run) complete(ctx context.Context, response map[string]any) error {
	if response == nil {
		response = map[string]any{}
	}
	response["total_rows"] = r.counts.Total
	response["valid_rows"] = r.counts.Valid
	response["invalid_rows"] = r.counts.Invalid
	response["rejected_rows"] = r.counts.Rejected

	failed := r.counts.Invalid + r.counts.Rejected
	if err := r.svc.jobs.CompleteJob(ctx, r.jobID, true, r.counts.Total, r.counts.Valid, failed, response); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	m := r.svc.metrics
	m.Rows("valid", r.counts.Valid)
	m.Rows("invalid", r.counts.Invalid)
	m.Rows("rejected", r.counts.Rejected)
	m.FieldFailures("transform", r.fieldFailures)
	m.FieldFailures("validation", r.ruleFailures)
	m.JobFinished(string(r.jobType), string(store.StatusCompleted), time.Since(r.started))

	logging.FromContext(ctx).Info("job completed",
		"rows", r.counts.Total,
		"valid", r.counts.Valid,
		"invalid", r.counts.Invalid,
		"rejected", r.counts.Rejected,
		"duration", time.Since(r.started).Round(time.Millisecond),
	)
	return nil
}

// checkColumns fails when the first row lacks required source columns.
func checkColumns(t *Template, first map[string]any) error {
	header := make([]string, 0, len(first))
	for k := range first {
		header = append(header, k)
	}
	if missing := t.MissingColumns(header); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingColumns, missing)
	}
	return nil
}

// readError classifies an error yielded by a row source.
func readError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, fileio.ErrUnsupportedFormat) || errors.Is(err, fileio.ErrFetch) || errors.Is(err, fileio.ErrTooLarge) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformedFile, err)
}
