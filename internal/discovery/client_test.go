package discovery

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	c := NewClient(baseURL, "test-key", "test-secret")
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestSigning(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Auth-Key"); got != "test-key" {
			t.Errorf("X-Auth-Key = %q", got)
		}
		if got := r.Header.Get("X-Auth-Date"); got != "1700000000" {
			t.Errorf("X-Auth-Date = %q", got)
		}
		want := sha1.Sum([]byte("test-key" + "test-secret" + "1700000000"))
		if got := r.Header.Get("Authorization"); got != hex.EncodeToString(want[:]) {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(`{"status":"true","feed":{"id":7,"title":"A Feed"}}`))
	}))
	defer srv.Close()

	feed, err := newTestClient(srv.URL).FeedByGUID(context.Background(), "guid-1")
	if err != nil {
		t.Fatalf("FeedByGUID returned error: %v", err)
	}
	if feed.ID != 7 || feed.Title != "A Feed" {
		t.Errorf("feed = %+v", feed)
	}
}

func TestFeedByGUIDNotIndexed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"empty array feed", `{"status":"true","feed":[]}`},
		{"null feed", `{"status":"false","feed":null}`},
		{"zero id", `{"status":"true","feed":{"id":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).FeedByGUID(context.Background(), "nope")
			if !errors.Is(err, ErrFeedNotIndexed) {
				t.Errorf("err = %v, want ErrFeedNotIndexed", err)
			}
		})
	}
}

func TestItemsByFeedID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/episodes/byfeedid" {
			t.Errorf("path = %q", got)
		}
		if got := r.URL.Query().Get("id"); got != "42" {
			t.Errorf("id = %q", got)
		}
		w.Write([]byte(`{"status":"true","items":[
			{"guid":"g1","title":"Track One","enclosureUrl":"https://cdn/x.mp3","duration":181,"datePublished":1700000100},
			{"guid":"g2","title":"Track Two"}
		],"count":2}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).ItemsByFeedID(context.Background(), 42)
	if err != nil {
		t.Fatalf("ItemsByFeedID returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].GUID != "g1" || items[0].DurationSeconds != 181 {
		t.Errorf("items[0] = %+v", items[0])
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantRetryable bool
		wantRateLimit bool
	}{
		{"rate limited", http.StatusTooManyRequests, true, true},
		{"server error", http.StatusInternalServerError, true, false},
		{"unauthorized", http.StatusUnauthorized, false, false},
		{"bad request", http.StatusBadRequest, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).FeedByGUID(context.Background(), "g")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Retryable(err); got != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got, tt.wantRetryable)
			}
			if got := IsRateLimited(err); got != tt.wantRateLimit {
				t.Errorf("IsRateLimited = %v, want %v", got, tt.wantRateLimit)
			}
		})
	}
}

func TestTransportErrorRetryable(t *testing.T) {
	t.Parallel()

	// Point at a closed server to force a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL).FeedByGUID(context.Background(), "g")
	if err == nil {
		t.Fatal("expected error")
	}
	if !Retryable(err) {
		t.Error("transport errors must be retryable")
	}
	if errors.Is(err, ErrFeedNotIndexed) {
		t.Error("transport error must not be classified as not-indexed")
	}
}
