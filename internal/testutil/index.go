// Package testutil provides a fake discovery index server for tests that
// exercise the resolution pipeline end to end.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"playlist-resolver/internal/discovery"
)

// Feed describes one feed known to the fake index.
type Feed struct {
	ID      int64
	GUID    string
	Title   string
	Author  string
	Artwork string
}

// Item describes one feed entry known to the fake index.
type Item struct {
	GUID         string
	Title        string
	EnclosureURL string
	Duration     int
	Published    int64
	Image        string
}

// IndexServer emulates the discovery service's byguid and byfeedid endpoints.
type IndexServer struct {
	mu        sync.Mutex
	feeds     map[string]Feed
	items     map[int64][]Item
	onRequest func()

	server *httptest.Server
}

// NewIndexServer starts a fake index that is torn down with the test.
func NewIndexServer(t *testing.T) *IndexServer {
	t.Helper()

	s := &IndexServer{
		feeds: make(map[string]Feed),
		items: make(map[int64][]Item),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

// AddFeed registers a feed and its items.
func (s *IndexServer) AddFeed(feed Feed, items ...Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[feed.GUID] = feed
	s.items[feed.ID] = items
}

// OnRequest registers a hook invoked on every request, for call counting.
func (s *IndexServer) OnRequest(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRequest = fn
}

// Client returns a discovery client pointed at the fake server.
func (s *IndexServer) Client() *discovery.Client {
	return discovery.NewClient(s.server.URL, "test-key", "test-secret")
}

// URL returns the fake server's base URL.
func (s *IndexServer) URL() string {
	return s.server.URL
}

func (s *IndexServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hook := s.onRequest
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	switch r.URL.Path {
	case "/podcasts/byguid":
		s.handleFeed(w, r)
	case "/episodes/byfeedid":
		s.handleItems(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *IndexServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	feed, ok := s.feeds[r.URL.Query().Get("guid")]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		// A miss is an empty array in the feed field, matching the real
		// service.
		fmt.Fprint(w, `{"status":"true","feed":[]}`)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "true",
		"feed": map[string]interface{}{
			"id":          feed.ID,
			"podcastGuid": feed.GUID,
			"title":       feed.Title,
			"author":      feed.Author,
			"artwork":     feed.Artwork,
		},
	})
}

func (s *IndexServer) handleItems(w http.ResponseWriter, r *http.Request) {
	feedID, _ := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)

	s.mu.Lock()
	items := s.items[feedID]
	s.mu.Unlock()

	encoded := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		encoded = append(encoded, map[string]interface{}{
			"guid":          item.GUID,
			"title":         item.Title,
			"enclosureUrl":  item.EnclosureURL,
			"duration":      item.Duration,
			"datePublished": item.Published,
			"image":         item.Image,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "true",
		"items":  encoded,
		"count":  len(encoded),
	})
}
