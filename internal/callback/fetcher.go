package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrFetchFailed marks transport-level failures fetching changed bytes.
	// The Document Server retries these; the gateway leaves state unchanged.
	ErrFetchFailed = errors.New("changed bytes fetch failed")

	// ErrCorruptPayload marks a fetch that succeeded but produced an empty
	// or oversized body. These saves are discarded, not retried blindly.
	ErrCorruptPayload = errors.New("changed bytes payload rejected")
)

// Fetcher retrieves the changed document bytes from the URL supplied in a
// save callback.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches over HTTP with a bounded timeout and size cap so a
// slow or hostile Document Server cannot hang the callback handler.
type HTTPFetcher struct {
	client      *http.Client
	maxBytes    int64
	allowedHost string
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// RestrictHost confines fetches to the host of the given Document Server base
// URL. A callback download URL pointing anywhere else is rejected without a
// request: changed bytes must only ever come from the configured server.
func (f *HTTPFetcher) RestrictHost(base string) error {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid document server base url %q", base)
	}
	f.allowedHost = u.Host
	return nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if f.allowedHost != "" && req.URL.Host != f.allowedHost {
		return nil, fmt.Errorf("%w: download url host %q is not the document server", ErrProtocol, req.URL.Host)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream returned %d", ErrFetchFailed, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(b)) > f.maxBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrCorruptPayload, f.maxBytes)
	}
	return b, nil
}
