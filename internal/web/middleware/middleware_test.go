package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/config"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/metrics"
)

func echoRemote(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(r.RemoteAddr))
}

func TestTrustedRealIP(t *testing.T) {
	h := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.1", "not-a-cidr"})(http.HandlerFunc(echoRemote))

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted peer keeps address", "203.0.113.9:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9:4000"},
		{"real ip from proxy", "10.1.2.3:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"bare trusted address", "192.168.1.1:80", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"invalid real ip ignored", "10.1.2.3:4000", map[string]string{"X-Real-IP": "bogus"}, "10.1.2.3:4000"},
		{"forwarded skips trusted hops", "10.1.2.3:4000", map[string]string{"X-Forwarded-For": "9.9.9.9, 5.6.7.8, 10.0.0.7"}, "5.6.7.8"},
		{"forwarded all trusted", "10.1.2.3:4000", map[string]string{"X-Forwarded-For": "10.0.0.8, 10.0.0.7"}, "10.0.0.8"},
		{"no headers", "10.1.2.3:4000", nil, "10.1.2.3:4000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestTrustedRealIP_NoProxies(t *testing.T) {
	h := TrustedRealIP(nil)(http.HandlerFunc(echoRemote))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	req.Header.Set("X-Real-IP", "1.2.3.4")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "10.1.2.3:4000", w.Body.String())
}

func TestAPIKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		cfg    config.SecurityConfig
		header [2]string
		status int
	}{
		{"disabled", config.SecurityConfig{}, [2]string{}, http.StatusNoContent},
		{"missing", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, [2]string{}, http.StatusUnauthorized},
		{"wrong", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, [2]string{"X-API-Key", "k2"}, http.StatusForbidden},
		{"second key", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}, [2]string{"X-API-Key", "k2"}, http.StatusNoContent},
		{"bearer", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, [2]string{"Authorization", "bearer k1"}, http.StatusNoContent},
		{"no keys configured", config.SecurityConfig{RequireAPIKey: true}, [2]string{"X-API-Key", "k1"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			h := APIKeyAuth(&cfg)(ok)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header[0] != "" {
				req.Header.Set(tt.header[0], tt.header[1])
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status >= 400 {
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestLoggerAndMetrics_ShareStatus(t *testing.T) {
	rec := metrics.New()
	r := chi.NewRouter()
	r.Use(Logger, Metrics(rec))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	mw := httptest.NewRecorder()
	rec.Handler().ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, mw.Body.String(), `route="/items/{id}",status="418"`)
}

func TestStatusWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sw := newStatusWriter(w)
	assert.Same(t, sw, newStatusWriter(sw))

	sw.Write([]byte("abc"))
	sw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, sw.status)
	assert.Equal(t, 3, sw.bytes)
	assert.Equal(t, w, sw.Unwrap())
}
