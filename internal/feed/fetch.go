package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"playlist-resolver/internal/retry"
)

const (
	// maxDocumentBytes bounds source document reads; playlist feeds are
	// small and anything larger is almost certainly not one.
	maxDocumentBytes = 8 << 20

	fetchUserAgent = "playlist-resolver/1.0"
)

// Fetcher retrieves playlist source documents over HTTP with bounded retries
// for transient failures.
type Fetcher struct {
	client   *http.Client
	retryCfg retry.Config
}

// NewFetcher creates a fetcher with the given per-attempt timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		retryCfg: retry.DefaultConfig(),
	}
}

// statusError marks HTTP-level fetch failures so retry can distinguish
// server-side trouble from permanent client errors.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func retryableFetch(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	// Network-level errors are worth one more try.
	return true
}

// Fetch downloads the source document at url. A non-2xx final status or
// transport failure after retries is a request-level error; the caller treats
// it as a failed playlist request, not a per-item outcome.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := retry.Do(ctx, f.retryCfg, retryableFetch, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", fetchUserAgent)
		req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &statusError{status: resp.StatusCode}
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching source document %s: %w", url, err)
	}

	return body, nil
}
