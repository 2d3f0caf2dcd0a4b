package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/metrics"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
)

const productsCSV = `SKU,Product Name,Price
 ab-1 ,blue widget,$10.499
cd-2,red widget,call us
,green widget,3
`

func newTestService(t *testing.T, opts Options) (*Service, store.Store) {
	t.Helper()
	Clear()
	t.Cleanup(Clear)
	MustRegister(productTemplate())

	s := store.NewMemory()
	ctx := t.Context()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { s.Disconnect() })

	return NewService(s, opts), s
}

func csvSource(data string) *fileio.Source {
	return fileio.BytesSource([]byte(data), fileio.Options{Format: fileio.FormatCSV})
}

func TestServiceImport(t *testing.T) {
	rec := metrics.New()
	svc, _ := newTestService(t, Options{Metrics: rec, BatchSize: 2})
	ctx := t.Context()

	res, err := svc.Import(ctx, ImportRequest{TemplateID: "test_products", TenantID: "t1", Source: csvSource(productsCSV)})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Total != 3 || res.Valid != 1 || res.Invalid != 2 || res.Rejected != 0 {
		t.Errorf("counts = %+v, want 3 total / 1 valid / 2 invalid", res.RowCounts)
	}
	if _, ok := res.Report["row_1"]["price"]; !ok {
		t.Errorf("report missing row_1 price failure: %v", res.Report)
	}
	if _, ok := res.Report["row_2"]["sku"]; !ok {
		t.Errorf("report missing row_2 sku failure: %v", res.Report)
	}
	if _, ok := res.Report["row_0"]; ok {
		t.Error("valid row_0 should not be in the report")
	}

	job, err := svc.Job(ctx, res.JobID)
	if err != nil {
		t.Fatalf("Job() error: %v", err)
	}
	if job.Status != store.StatusCompleted || job.Type != store.JobProductImport {
		t.Errorf("job = %s %s, want PRODUCT_IMPORT COMPLETED", job.Type, job.Status)
	}
	var steps []string
	for _, s := range job.Metrics.Steps {
		steps = append(steps, string(s.Step))
	}
	want := "IMPORT_FILE_FETCH,IMPORT_FILE_PARSE,IMPORT_TEMPLATE_MAP,IMPORT_TRANSFORM,IMPORT_VALIDATE,IMPORT_WRITE_CACHE"
	if got := strings.Join(steps, ","); got != want {
		t.Errorf("steps = %s\nwant %s", got, want)
	}

	records, sum, err := svc.JobRecords(ctx, res.JobID, 0)
	if err != nil {
		t.Fatalf("JobRecords() error: %v", err)
	}
	if len(records) != 3 || sum.Total != 3 || sum.Valid != 1 || sum.Invalid != 2 {
		t.Fatalf("records = %d, summary = %+v", len(records), sum)
	}
	first := records[0]
	if first.RowIndex != 0 || first.ProductID != "AB-1" || first.Status != store.RowValid || first.InputHash == "" {
		t.Errorf("first record = %+v", first)
	}
	if first.Transformed["title"] != "Blue Widget" {
		t.Errorf("first record transformed = %v", first.Transformed)
	}

	series, err := testutil.GatherAndCount(rec.Registry(), "edge_rows_total", "edge_jobs_total")
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if series != 3 {
		t.Errorf("metric series = %d, want valid and invalid rows plus one job", series)
	}
}

func TestServiceImport_RejectPolicy(t *testing.T) {
	svc, _ := newTestService(t, Options{Policy: PolicyReject})

	res, err := svc.Import(t.Context(), ImportRequest{TemplateID: "test_products", Source: csvSource(productsCSV)})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Rejected != 1 || res.Invalid != 1 || res.Valid != 1 {
		t.Errorf("counts = %+v, want 1 valid / 1 invalid / 1 rejected", res.RowCounts)
	}
}

func TestServiceImport_Failures(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := t.Context()

	tests := []struct {
		name   string
		req    ImportRequest
		target error
	}{
		{name: "no source", req: ImportRequest{TemplateID: "test_products"}, target: ErrNoFile},
		{name: "unknown template", req: ImportRequest{TemplateID: "nope", Source: csvSource(productsCSV)}, target: ErrTemplateNotFound},
		{name: "missing columns", req: ImportRequest{TemplateID: "test_products", Source: csvSource("Name,Price\nx,1\n")}, target: ErrMissingColumns},
		{name: "empty file", req: ImportRequest{TemplateID: "test_products", Source: csvSource("SKU,Price\n")}, target: fileio.ErrNoData},
		{name: "malformed file", req: ImportRequest{TemplateID: "test_products", Source: fileio.BytesSource([]byte(`[{"SKU": 1},`), fileio.Options{Format: fileio.FormatJSON})}, target: ErrMalformedFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(ctx, tt.req)
			if !errors.Is(err, tt.target) {
				t.Fatalf("Import() error = %v, want %v", err, tt.target)
			}
		})
	}

	jobs, err := svc.RecentJobs(ctx, "", store.JobProductImport, 10)
	if err != nil {
		t.Fatalf("RecentJobs() error: %v", err)
	}
	if len(jobs) != 4 {
		t.Fatalf("RecentJobs() = %d jobs, want 4 failed jobs", len(jobs))
	}
	for _, j := range jobs {
		if j.Status != store.StatusFailed || j.ErrorMessage == "" {
			t.Errorf("job %s = %s %q, want FAILED with a message", j.ID, j.Status, j.ErrorMessage)
		}
	}
}

func TestServiceImport_BusyLimiter(t *testing.T) {
	limiter := NewJobLimiter(1, 20*time.Millisecond)
	svc, _ := newTestService(t, Options{Limiter: limiter})

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer limiter.Release()

	_, err := svc.Import(t.Context(), ImportRequest{TemplateID: "test_products", Source: csvSource(productsCSV)})
	if !errors.Is(err, ErrTooManyJobs) {
		t.Errorf("Import() error = %v, want ErrTooManyJobs", err)
	}
}

func TestServiceExport(t *testing.T) {
	out := t.TempDir()
	svc, _ := newTestService(t, Options{OutputDir: out})
	ctx := t.Context()

	res, err := svc.Export(ctx, ExportRequest{
		TemplateID: "test_products",
		Source:     csvSource(productsCSV),
		Formats:    []fileio.Format{fileio.FormatCSV, fileio.FormatJSON},
		FileName:   "feed",
	})
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if res.Exported != 1 || res.Total != 3 {
		t.Errorf("Exported = %d of %d, want 1 of 3", res.Exported, res.Total)
	}
	if len(res.Files) != 2 {
		t.Fatalf("Files = %d, want 2", len(res.Files))
	}

	csvFile := res.Files[0]
	if csvFile.Name != "feed.csv" || csvFile.Format != fileio.FormatCSV {
		t.Errorf("first file = %s %s", csvFile.Name, csvFile.Format)
	}
	wantCSV := "sku,title,price,status\nAB-1,Blue Widget,10.5,active\n"
	if string(csvFile.Data) != wantCSV {
		t.Errorf("csv = %q\nwant %q", csvFile.Data, wantCSV)
	}
	onDisk, err := os.ReadFile(filepath.Join(out, res.JobID, "feed.json"))
	if err != nil {
		t.Fatalf("read written json: %v", err)
	}
	if !strings.Contains(string(onDisk), `"sku": "AB-1"`) {
		t.Errorf("json file = %s", onDisk)
	}

	job, err := svc.Job(ctx, res.JobID)
	if err != nil {
		t.Fatalf("Job() error: %v", err)
	}
	if job.Status != store.StatusCompleted || job.Response["exported_rows"] == nil {
		t.Errorf("job = %s, response = %v", job.Status, job.Response)
	}
}

func TestServiceExport_IncludeInvalid(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	res, err := svc.Export(t.Context(), ExportRequest{
		TemplateID:     "test_products",
		Source:         csvSource(productsCSV),
		IncludeInvalid: true,
	})
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if res.Exported != 3 || len(res.Files) != 1 || res.Files[0].Path != "" {
		t.Errorf("Exported = %d, files = %+v", res.Exported, res.Files)
	}
}

func TestServiceExport_NothingValid(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	_, err := svc.Export(t.Context(), ExportRequest{TemplateID: "test_products", Source: csvSource("SKU,Price\n,abc\n")})
	if !errors.Is(err, fileio.ErrNoData) {
		t.Errorf("Export() error = %v, want ErrNoData", err)
	}
}

func TestServiceJobNotFound(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	if _, err := svc.Job(t.Context(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Job(missing) = %v, want ErrJobNotFound", err)
	}
	if _, _, err := svc.JobRecords(t.Context(), "missing", 0); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("JobRecords(missing) = %v, want ErrJobNotFound", err)
	}
}
