package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Feed is the index's record of a feed located by guid.
type Feed struct {
	ID      int64  `json:"id"`
	GUID    string `json:"podcastGuid"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Artwork string `json:"artwork"`
}

// Item is one entry of a feed as reported by the index.
type Item struct {
	GUID            string `json:"guid"`
	Title           string `json:"title"`
	EnclosureURL    string `json:"enclosureUrl"`
	DurationSeconds int    `json:"duration"`
	DatePublished   int64  `json:"datePublished"`
	Image           string `json:"image"`
	FeedImage       string `json:"feedImage"`
}

// feedResponse mirrors the byguid endpoint envelope. The feed field is an
// object on a hit and an empty array on a miss, so it stays raw until
// inspected.
type feedResponse struct {
	Status string          `json:"status"`
	Feed   json.RawMessage `json:"feed"`
}

// itemsResponse mirrors the byfeedid endpoint envelope.
type itemsResponse struct {
	Status string `json:"status"`
	Items  []Item `json:"items"`
	Count  int    `json:"count"`
}

// ErrFeedNotIndexed is returned when the index has no record of a feed guid.
var ErrFeedNotIndexed = errors.New("feed not indexed")

// APIError is a transport-level or HTTP-level failure against the index.
type APIError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("discovery %s: unexpected status %d", e.Endpoint, e.Status)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is the index telling us to slow down.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

// Retryable reports whether a call that failed with err is worth repeating:
// rate limits and server-side errors are, auth failures and unknown feeds
// are not.
func Retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Err != nil {
		// Transport failure.
		return true
	}
	return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
}
