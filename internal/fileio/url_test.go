package fileio

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLSource(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/feeds/products.csv":
			w.Write([]byte("sku,price\nA-1,9.99\nB-2,5\n"))
		case "/big.csv":
			w.Write([]byte("sku\n" + strings.Repeat("x", 4096) + "\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	src, err := URLSource(srv.URL+"/feeds/products.csv?token=abc", Options{}, Fetcher{Client: srv.Client()})
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, src.Format())
	assert.Equal(t, "products.csv", src.Name())

	rows, err := ReadAll(t.Context(), src)
	require.NoError(t, err)
	assert.Equal(t, []Record{{"sku": "A-1", "price": "9.99"}, {"sku": "B-2", "price": "5"}}, rows)

	// every pass downloads again
	_, err = ReadAll(t.Context(), src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	missing, err := URLSource(srv.URL+"/gone.csv", Options{}, Fetcher{Client: srv.Client()})
	require.NoError(t, err)
	_, err = ReadAll(t.Context(), missing)
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorContains(t, err, "404")

	big, err := URLSource(srv.URL+"/big.csv", Options{}, Fetcher{Client: srv.Client(), MaxBytes: 1024})
	require.NoError(t, err)
	_, err = ReadAll(t.Context(), big)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestURLSourceErrors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts Options
		want error
	}{
		{name: "file scheme", url: "file:///etc/passwd.csv", want: ErrFetch},
		{name: "no host", url: "http:///a.csv", want: ErrFetch},
		{name: "unknown extension", url: "https://example.com/export", want: ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := URLSource(tt.url, tt.opts, Fetcher{})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	src, err := URLSource("https://example.com/export", Options{Format: FormatJSON}, Fetcher{})
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, src.Format())
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.csv"))
	assert.True(t, IsURL(" HTTP://example.com/a.csv"))
	assert.False(t, IsURL("data/a.csv"))
	assert.False(t, IsURL("s3://bucket/a.csv"))
}
