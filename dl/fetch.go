package dl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// Fetcher reads one object, or the byte range [offset, offset+length) of
// it when length is positive.
type Fetcher interface {
	Fetch(ctx context.Context, url string, offset, length int64) ([]byte, error)
}

type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, u string, offset, length int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if length > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		// The server ignored the Range header.
		if length > 0 {
			return sliceRange(data, offset, length)
		}
		return data, nil
	case http.StatusPartialContent:
		return io.ReadAll(resp.Body)
	default:
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}
}

func sliceRange(data []byte, offset, length int64) ([]byte, error) {
	if offset < 0 || offset+length > int64(len(data)) {
		return nil, fmt.Errorf("range %d+%d outside of %d byte object", offset, length, len(data))
	}
	return data[offset : offset+length], nil
}

// FileFetcher reads objects from the local filesystem. Relative paths and
// file:// URLs are resolved against Root.
type FileFetcher struct {
	Root string
}

func (f *FileFetcher) path(u string) string {
	p := strings.TrimPrefix(u, "file://")
	if !filepath.IsAbs(p) && f.Root != "" {
		p = filepath.Join(f.Root, p)
	}
	return p
}

func (f *FileFetcher) Fetch(ctx context.Context, u string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := f.path(u)
	if length <= 0 {
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return data, err
	}

	fd, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	defer fd.Close()

	data := make([]byte, length)
	if _, err := fd.ReadAt(data, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("range %d+%d outside of %s: %w", offset, length, p, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return data, nil
}

// Mux dispatches on the URL scheme. URLs without a scheme go to Default.
type Mux struct {
	Schemes map[string]Fetcher
	Default Fetcher
}

func NewMux(timeout time.Duration, root string) *Mux {
	httpFetcher := NewHTTPFetcher(timeout)
	fileFetcher := &FileFetcher{Root: root}
	return &Mux{
		Schemes: map[string]Fetcher{
			"http":  httpFetcher,
			"https": httpFetcher,
			"file":  fileFetcher,
		},
		Default: fileFetcher,
	}
}

func (m *Mux) Fetch(ctx context.Context, u string, offset, length int64) ([]byte, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, err
	}

	fetcher := m.Default
	if parsed.Scheme != "" {
		var ok bool
		fetcher, ok = m.Schemes[parsed.Scheme]
		if !ok {
			return nil, fmt.Errorf("unsupported scheme '%s' in %s", parsed.Scheme, u)
		}
	}
	if fetcher == nil {
		return nil, fmt.Errorf("no fetcher for %s", u)
	}
	return fetcher.Fetch(ctx, u, offset, length)
}
