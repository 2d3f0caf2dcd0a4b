package web

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/config"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/core"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/metrics"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
)

const webTemplate = `
id: web_products
channel: test
key: sku
attributes:
  - name: sku
    column: SKU
    required: true
    transform: strip + uppercase
  - name: price
    column: Price
    data_type: number
    transform: clean_numeric_value + round_decimal|2
`

const webCSV = "SKU,Price\n ab-1 ,$10.499\ncd-2,call us\n"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Pipeline.MaxUploadMB = 1
	cfg.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	core.Clear()
	t.Cleanup(core.Clear)

	templates, err := core.ParseTemplates("web.yaml", []byte(webTemplate))
	require.NoError(t, err)
	for _, tmpl := range templates {
		require.NoError(t, core.Register(tmpl))
	}

	st := store.NewMemory()
	require.NoError(t, st.Connect(t.Context()))
	require.NoError(t, st.EnsureSchema(t.Context()))
	t.Cleanup(func() { st.Disconnect() })

	rec := metrics.New()
	svc := core.NewService(st, core.Options{Metrics: rec})
	srv := NewServer(svc, cfg, rec)
	t.Cleanup(func() { srv.Shutdown(t.Context()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target string, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["templates"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestListOperations(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(t, srv, http.MethodGet, "/api/operations?category=numeric", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	ops := body["operations"].([]any)
	require.NotEmpty(t, ops)
	for _, op := range ops {
		assert.Equal(t, "numeric", op.(map[string]any)["category"])
	}

	w = do(t, srv, http.MethodGet, "/api/rule-types", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"required"`)
}

func TestTransformEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	tests := []struct {
		name     string
		body     string
		status   int
		contains string
	}{
		{name: "single rule", body: `{"value": " hello ", "rule": "strip + uppercase"}`, status: http.StatusOK, contains: `"value":"HELLO"`},
		{name: "pipeline", body: `{"value": "a b", "pipeline": [{"operation": "replace", "args": [" ", "-"]}]}`, status: http.StatusOK, contains: `"value":"a-b"`},
		{name: "bulk values", body: `{"values": ["a", "b"], "rules": ["uppercase"]}`, status: http.StatusOK, contains: `"values":["A","B"]`},
		{name: "unknown operation", body: `{"value": "x", "rule": "nope"}`, status: http.StatusBadRequest, contains: `"code":"TRN001"`},
		{name: "conversion failure", body: `{"value": "abc", "rule": "clean_numeric_value"}`, status: http.StatusUnprocessableEntity, contains: `"code":"TRN002"`},
		{name: "malformed body", body: `{"value":`, status: http.StatusBadRequest, contains: `"code":"REQ002"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/transform", tt.body, "Content-Type", "application/json")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestTransformEndpoint_Rows(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(t, srv, http.MethodPost, "/api/transform",
		`{"rows": [{"p": "1.5"}, {"p": "call us"}], "field_rules": {"p": "clean_numeric_value"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	rows := body["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, 1.5, rows[0].(map[string]any)["p"])
	assert.Equal(t, "call us", rows[1].(map[string]any)["p"])

	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, float64(1), errs[0].(map[string]any)["row"])
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(t, srv, http.MethodPost, "/api/validate", `{"value": "", "rules": [{"rule_type": "required"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])

	w = do(t, srv, http.MethodPost, "/api/validate", `{
		"rows": [{"sku": "A"}, {"sku": ""}],
		"field_rules": {"sku": [{"rule_type": "required"}]}
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["invalid"])
	assert.Contains(t, body["report"], "row_1")

	w = do(t, srv, http.MethodPost, "/api/validate", `{"value": 1, "rules": [{"rule_type": "bogus"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"RULE001"`)
}

func TestTemplatesEndpoints(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(t, srv, http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = do(t, srv, http.MethodGet, "/api/templates/web_products", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"sku", "price"}, decode(t, w)["columns"])

	w = do(t, srv, http.MethodGet, "/api/templates/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"TPL001"`)
}

func TestImportAndJobs(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(t, srv, http.MethodPost, "/api/templates/web_products/import?format=csv&tenant_id=t1", webCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode(t, w)
	assert.Equal(t, float64(2), res["total"])
	assert.Equal(t, float64(1), res["valid"])
	assert.Equal(t, float64(1), res["invalid"])
	jobID := res["job_id"].(string)
	require.NotEmpty(t, jobID)

	w = do(t, srv, http.MethodGet, "/api/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, w.Code)
	job := decode(t, w)
	assert.Equal(t, "COMPLETED", job["job_status"])
	assert.Equal(t, "t1", job["tenant_id"])

	w = do(t, srv, http.MethodGet, "/api/jobs/"+jobID+"/records?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	records := decode(t, w)
	assert.Equal(t, float64(1), records["count"])
	assert.Equal(t, float64(2), records["summary"].(map[string]any)["total"])

	w = do(t, srv, http.MethodGet, "/api/jobs?tenant_id=t1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = do(t, srv, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"JOB002"`)
}

func TestPreviewRollbackAndCache(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(t, srv, http.MethodPost, "/api/templates/web_products/import?format=csv&tenant_id=t1", webCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	jobID := decode(t, w)["job_id"].(string)

	preview := func() map[string]any {
		t.Helper()
		w := do(t, srv, http.MethodPost, "/api/templates/web_products/preview?format=csv&tenant_id=t1", "SKU,Price\nab-1,12\n")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode(t, w)["summary"].(map[string]any)
	}

	sum := preview()
	assert.Equal(t, float64(1), sum["changed_products"])
	assert.Equal(t, float64(0), sum["new_products"])

	w = do(t, srv, http.MethodGet, "/api/jobs?tenant_id=t1", "")
	assert.Equal(t, float64(1), decode(t, w)["count"], "preview must not create a job")

	w = do(t, srv, http.MethodPost, "/api/cache/invalidate", `{"tenant_id":"t1","template_id":"web_products"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode(t, w)["invalidated"])
	assert.Equal(t, float64(1), preview()["new_products"])

	w = do(t, srv, http.MethodPost, "/api/cache/invalidate", `{"tenant_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"REQ002"`)

	w = do(t, srv, http.MethodPost, "/api/jobs/"+jobID+"/rollback", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode(t, w)["records_deleted"])

	w = do(t, srv, http.MethodPost, "/api/jobs/"+jobID+"/rollback", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"JOB004"`)
}

func TestImportMultipart(t *testing.T) {
	srv := newTestServer(t, testConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "products.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(webCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := do(t, srv, http.MethodPost, "/api/templates/web_products/import", buf.String(), "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode(t, w)["total"])
}

func TestImportErrors(t *testing.T) {
	srv := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{name: "empty body", target: "/api/templates/web_products/import?format=csv", body: "", status: http.StatusBadRequest, code: "FILE004"},
		{name: "unknown format", target: "/api/templates/web_products/import", body: webCSV, status: http.StatusBadRequest, code: "FILE002"},
		{name: "missing columns", target: "/api/templates/web_products/import?format=csv", body: "Name\nx\n", status: http.StatusUnprocessableEntity, code: "TPL003"},
		{name: "unknown template", target: "/api/templates/nope/import?format=csv", body: webCSV, status: http.StatusNotFound, code: "TPL001"},
		{name: "too large", target: "/api/templates/web_products/import?format=csv", body: "SKU\n" + strings.Repeat("x", 2<<20), status: http.StatusRequestEntityTooLarge, code: "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestExportDownload(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(t, srv, http.MethodPost, "/api/templates/web_products/export?format=csv&download=csv&name=feed", webCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "sku,price\nAB-1,10.5\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename=feed.csv`)
	assert.NotEmpty(t, w.Header().Get("X-Job-ID"))

	w = do(t, srv, http.MethodPost, "/api/templates/web_products/export?format=csv&formats=csv,json&include_invalid=true", webCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, float64(2), res["exported"])
	assert.Len(t, res["files"], 2)
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	srv := newTestServer(t, cfg)

	w := do(t, srv, http.MethodGet, "/api/templates", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_MISSING_KEY", decode(t, w)["code"])

	w = do(t, srv, http.MethodGet, "/api/templates", "", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, srv, http.MethodGet, "/api/templates", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/api/templates", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code, "health is not behind the api key")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	srv := newTestServer(t, cfg)

	for range 2 {
		w := do(t, srv, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode(t, w)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	do(t, srv, http.MethodGet, "/api/templates/web_products", "")

	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `edge_http_requests_total{method="GET",route="/api/templates/{id}",status="200"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyJobs, http.StatusServiceUnavailable},
		{core.ErrJobNotFound, http.StatusNotFound},
		{core.ErrMalformedFile, http.StatusBadRequest},
		{errBadRequest, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestImportFromURL(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(webCSV))
	}))
	t.Cleanup(feed.Close)

	disabled := newTestServer(t, testConfig())
	w := do(t, disabled, http.MethodPost, "/api/templates/web_products/import?file_url="+feed.URL+"/products.csv", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "REQ002", decode(t, w)["code"])

	cfg := testConfig()
	cfg.Pipeline.RemoteFiles = true
	srv := newTestServer(t, cfg)

	w = do(t, srv, http.MethodPost, "/api/templates/web_products/import?tenant_id=t1&file_url="+feed.URL+"/products.csv", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, float64(2), res["total"])
	assert.Equal(t, float64(1), res["valid"])

	w = do(t, srv, http.MethodPost, "/api/templates/web_products/preview?file_url="+feed.URL+"/missing.csv", "")
	assert.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
	assert.Equal(t, "FILE005", decode(t, w)["code"])

	w = do(t, srv, http.MethodPost, "/api/templates/web_products/import?file_url=ftp://example.com/a.csv", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "REQ002", decode(t, w)["code"])
}

func TestImportXLSXUpload(t *testing.T) {
	srv := newTestServer(t, testConfig())

	book, err := fileio.Build([]fileio.Record{
		{"SKU": " ab-1 ", "Price": "$10.499"},
		{"SKU": "cd-2", "Price": "call us"},
	}, fileio.Options{Format: fileio.FormatXLSX, Columns: []string{"SKU", "Price"}})
	require.NoError(t, err)

	w := do(t, srv, http.MethodPost, "/api/templates/web_products/import?filename=feed.xlsx", string(book))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, float64(2), res["total"])
	assert.Equal(t, float64(1), res["valid"])
}
