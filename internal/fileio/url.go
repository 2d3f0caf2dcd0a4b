package fileio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

var (
	ErrFetch    = errors.New("fetch remote file")
	ErrTooLarge = errors.New("remote file too large")
)

// DefaultFetchTimeout bounds a download when Fetcher.Client is nil.
const DefaultFetchTimeout = 5 * time.Minute

// Fetcher downloads remote input.
type Fetcher struct {
	// Client performs the request. Nil uses a client with DefaultFetchTimeout.
	Client *http.Client

	// MaxBytes caps the body size. Zero means no limit.
	MaxBytes int64
}

// IsURL reports whether s names an http or https resource.
func IsURL(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// URLSource reads rows from an http or https URL. The file is downloaded
// again on every call to Rows. An empty opts.Format is derived from the
// extension of the URL path.
func URLSource(rawURL string, opts Options, fetch Fetcher) (*Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q is not http or https", ErrFetch, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrFetch, rawURL)
	}
	if opts.Format == "" {
		f, err := FormatFromPath(u.Path)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}

	client := fetch.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	target := u.String()
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = u.Host
	}

	return &Source{
		open: func(ctx context.Context) (io.ReadCloser, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFetch, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrFetch, err)
			}
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %s: %s", ErrFetch, target, resp.Status)
			}
			if fetch.MaxBytes > 0 && resp.ContentLength > fetch.MaxBytes {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, resp.ContentLength, fetch.MaxBytes)
			}
			if fetch.MaxBytes > 0 {
				return &cappedBody{ReadCloser: resp.Body, left: fetch.MaxBytes}, nil
			}
			return resp.Body, nil
		},
		opts: opts,
		name: name,
	}, nil
}

// cappedBody fails with ErrTooLarge once more than left bytes are read.
type cappedBody struct {
	io.ReadCloser
	left int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.left < 0 {
		return 0, fmt.Errorf("%w: read past limit", ErrTooLarge)
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return n, fmt.Errorf("%w: read past limit", ErrTooLarge)
	}
	return n, err
}
