package discovery

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/metrics"
)

// DefaultBaseURL is the public podcast index API root.
const DefaultBaseURL = "https://api.podcastindex.org/api/1.0"

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "playlist-resolver/1.0"

	// maxItemsPerFeed caps the item listing per feed lookup. Music feeds on
	// the index rarely exceed a few hundred entries.
	maxItemsPerFeed = 1000
)

// Client talks to the podcast index API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client

	// now is replaceable in tests so signatures are deterministic
	now func() time.Time
}

// NewClient creates an index client. baseURL should not end with a slash; an
// empty baseURL selects the public index.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		now: time.Now,
	}
}

// FeedByGUID resolves a feed guid to the index's feed record. Returns
// ErrFeedNotIndexed when the index does not know the guid.
func (c *Client) FeedByGUID(ctx context.Context, feedGUID string) (*Feed, error) {
	query := url.Values{}
	query.Set("guid", feedGUID)

	body, err := c.get(ctx, "/podcasts/byguid", query)
	if err != nil {
		return nil, err
	}

	var resp feedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Endpoint: "/podcasts/byguid", Err: fmt.Errorf("decoding response: %w", err)}
	}

	// A miss comes back as status true with an empty feed array, so probe
	// the raw field rather than trusting the status flag.
	var feed Feed
	if err := json.Unmarshal(resp.Feed, &feed); err != nil || feed.ID == 0 {
		return nil, ErrFeedNotIndexed
	}

	return &feed, nil
}

// ItemsByFeedID lists a feed's items.
func (c *Client) ItemsByFeedID(ctx context.Context, feedID int64) ([]Item, error) {
	query := url.Values{}
	query.Set("id", strconv.FormatInt(feedID, 10))
	query.Set("max", strconv.Itoa(maxItemsPerFeed))

	body, err := c.get(ctx, "/episodes/byfeedid", query)
	if err != nil {
		return nil, err
	}

	var resp itemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Endpoint: "/episodes/byfeedid", Err: fmt.Errorf("decoding response: %w", err)}
	}

	return resp.Items, nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	c.sign(req)

	logging.Debug("discovery request: GET %s", reqURL)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	metrics.DiscoveryRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DiscoveryRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	metrics.DiscoveryRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}

	return body, nil
}

// sign adds the index's time-based request signature headers.
func (c *Client) sign(req *http.Request) {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	hash := sha1.Sum([]byte(c.apiKey + c.apiSecret + ts))

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Auth-Key", c.apiKey)
	req.Header.Set("X-Auth-Date", ts)
	req.Header.Set("Authorization", hex.EncodeToString(hash[:]))
}
