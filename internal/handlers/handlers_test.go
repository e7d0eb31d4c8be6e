package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"playlist-resolver/internal/cache"
	"playlist-resolver/internal/database"
	"playlist-resolver/internal/feed"
	"playlist-resolver/internal/model"
	"playlist-resolver/internal/resolver"
	"playlist-resolver/internal/startup"
	"playlist-resolver/internal/testutil"
)

const sampleDocument = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:podcast="https://podcastindex.org/namespace/1.0">
<channel>
  <title>Morning Mix</title>
  <link>https://example.com/mix</link>
  <image><url>https://example.com/mix.jpg</url></image>
  <podcast:remoteItem feedGuid="feed-a" itemGuid="item-1"/>
  <podcast:remoteItem feedGuid="feed-a" itemGuid="item-2"/>
  <item>
    <title>Week One</title>
    <podcast:remoteItem feedGuid="feed-b" itemGuid="item-3"/>
    <podcast:remoteItem feedGuid="feed-a" itemGuid="item-4"/>
  </item>
</channel>
</rss>`

// testEnv wires the full stack against fake upstream servers.
type testEnv struct {
	h          *Handlers
	db         *database.Database
	docServer  *httptest.Server
	docBody    atomic.Value
	docStatus  atomic.Int64
	indexCalls atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{}
	env.docBody.Store(sampleDocument)
	env.docStatus.Store(http.StatusOK)

	env.docServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := int(env.docStatus.Load())
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		fmt.Fprint(w, env.docBody.Load().(string))
	}))
	t.Cleanup(env.docServer.Close)

	index := testutil.NewIndexServer(t)
	index.OnRequest(func() { env.indexCalls.Add(1) })
	index.AddFeed(testutil.Feed{ID: 1, GUID: "feed-a", Title: "Feed A", Author: "Host A"},
		testutil.Item{GUID: "item-1", Title: "Alpha", EnclosureURL: "https://cdn.example.com/1.mp3", Duration: 60},
		testutil.Item{GUID: "item-2", Title: "Beta", EnclosureURL: "https://cdn.example.com/2.mp3", Duration: 120},
		testutil.Item{GUID: "item-4", Title: "Delta", EnclosureURL: "https://cdn.example.com/4.mp3", Duration: 240},
	)
	index.AddFeed(testutil.Feed{ID: 2, GUID: "feed-b", Title: "Feed B"},
		testutil.Item{GUID: "item-3", Title: "Gamma", EnclosureURL: "https://cdn.example.com/3.mp3", Duration: 180},
	)

	db, err := database.New(t.Context(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	env.db = db

	trackCache := cache.New(cache.DefaultTTL)
	res := resolver.New(db, trackCache, index.Client(), resolver.Config{Concurrency: 4, RetryMax: 1})

	config := &startup.Config{
		RequestBudget:    10 * time.Second,
		FeedFetchTimeout: 5 * time.Second,
	}
	env.h = New(db, trackCache, res, feed.NewFetcher(config.FeedFetchTimeout), config)
	return env
}

func (env *testEnv) router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/playlists", env.h.ListPlaylists).Methods(http.MethodGet)
	api.HandleFunc("/playlists", env.h.CreatePlaylist).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}", env.h.GetPlaylist).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{id}", env.h.DeletePlaylist).Methods(http.MethodDelete)
	api.HandleFunc("/playlists/{id}/refresh", env.h.RefreshPlaylist).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id}", env.h.GetTrack).Methods(http.MethodGet)
	r.HandleFunc("/healthz", env.h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", env.h.GetVersion).Methods(http.MethodGet)
	return r
}

func (env *testEnv) addPlaylist(t *testing.T) database.Playlist {
	t.Helper()
	p := database.Playlist{
		ID:      uuid.NewString(),
		Title:   "Seeded Playlist",
		FeedURL: env.docServer.URL,
	}
	if err := env.db.CreatePlaylist(t.Context(), p); err != nil {
		t.Fatalf("seeding playlist: %v", err)
	}
	return p
}

func decodeResolve(t *testing.T, w *httptest.ResponseRecorder) resolveResponse {
	t.Helper()
	var resp resolveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v\nbody: %s", err, w.Body.String())
	}
	return resp
}

func TestGetPlaylistFreshResolution(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPlaylist(t)

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/playlists/"+p.ID, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeResolve(t, w)

	if !resp.Success {
		t.Error("success = false")
	}
	if resp.Source != sourceFresh {
		t.Errorf("source = %q, want fresh", resp.Source)
	}
	if resp.Title != "Morning Mix" {
		t.Errorf("title = %q", resp.Title)
	}
	if resp.TotalReferences != 4 || resp.ResolvedCount != 4 {
		t.Errorf("references = %d/%d, want 4/4", resp.ResolvedCount, resp.TotalReferences)
	}

	wantOrder := []string{"Alpha", "Beta", "Gamma", "Delta"}
	if len(resp.Tracks) != len(wantOrder) {
		t.Fatalf("tracks = %d, want %d", len(resp.Tracks), len(wantOrder))
	}
	for i, want := range wantOrder {
		if resp.Tracks[i].Title != want {
			t.Errorf("tracks[%d] = %q, want %q", i, resp.Tracks[i].Title, want)
		}
	}

	// Channel-level refs land in the ungrouped bucket, the item's refs in
	// episode one.
	if len(resp.Episodes) != 2 {
		t.Fatalf("episodes = %d, want 2", len(resp.Episodes))
	}
	if resp.Episodes[0].ID != 0 || len(resp.Episodes[0].Tracks) != 2 {
		t.Errorf("ungrouped episode = %+v", resp.Episodes[0])
	}
	if resp.Episodes[1].Title != "Week One" || len(resp.Episodes[1].Tracks) != 2 {
		t.Errorf("grouped episode = %+v", resp.Episodes[1])
	}
}

func TestGetPlaylistServedFromStore(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPlaylist(t)

	tracks := []model.ResolvedTrack{
		seedTrack("feed-a", "item-1", "Alpha"),
		seedTrack("feed-a", "item-2", "Beta"),
		seedTrack("feed-b", "item-3", "Gamma"),
		seedTrack("feed-a", "item-4", "Delta"),
	}
	if err := env.db.UpsertTracks(t.Context(), tracks); err != nil {
		t.Fatalf("seeding tracks: %v", err)
	}

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/playlists/"+p.ID, nil))

	resp := decodeResolve(t, w)
	if resp.Source != sourceDatabase {
		t.Errorf("source = %q, want database", resp.Source)
	}
	if resp.ResolvedCount != 4 {
		t.Errorf("resolvedCount = %d, want 4", resp.ResolvedCount)
	}
	if calls := env.indexCalls.Load(); calls != 0 {
		t.Errorf("index calls = %d, want 0", calls)
	}
}

func TestGetPlaylistSnapshotFastPath(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPlaylist(t)

	items := []database.SnapshotItem{
		{Track: seedTrack("feed-a", "item-1", "Alpha"), EpisodeIndex: -1},
		{Track: seedTrack("feed-a", "item-2", "Beta"), EpisodeIndex: -1},
		{Track: seedTrack("feed-b", "item-3", "Gamma"), EpisodeIndex: 0, EpisodeTitle: "Week One"},
	}
	if err := env.db.ReplaceSnapshot(t.Context(), p.ID, items); err != nil {
		t.Fatalf("seeding snapshot: %v", err)
	}

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/playlists/"+p.ID, nil))

	resp := decodeResolve(t, w)
	if resp.Source != sourceDatabase {
		t.Errorf("source = %q, want database", resp.Source)
	}
	if len(resp.Tracks) != 3 {
		t.Fatalf("tracks = %d, want 3", len(resp.Tracks))
	}
	if resp.Tracks[0].Title != "Alpha" || resp.Tracks[2].Title != "Gamma" {
		t.Errorf("snapshot order lost: %+v", resp.Tracks)
	}
	if len(resp.Episodes) != 2 {
		t.Errorf("episodes = %d, want 2", len(resp.Episodes))
	}
	if calls := env.indexCalls.Load(); calls != 0 {
		t.Errorf("index calls = %d, want 0", calls)
	}
}

func TestGetPlaylistRefreshBypassesSnapshot(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPlaylist(t)

	items := []database.SnapshotItem{
		{Track: seedTrack("feed-a", "item-1", "Stale"), EpisodeIndex: -1},
	}
	if err := env.db.ReplaceSnapshot(t.Context(), p.ID, items); err != nil {
		t.Fatalf("seeding snapshot: %v", err)
	}

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/playlists/"+p.ID+"?refresh=true", nil))

	resp := decodeResolve(t, w)
	if resp.Source != sourceFresh {
		t.Errorf("source = %q, want fresh", resp.Source)
	}
	if resp.ResolvedCount != 4 {
		t.Errorf("resolvedCount = %d, want full re-resolution", resp.ResolvedCount)
	}
	if env.indexCalls.Load() == 0 {
		t.Error("refresh made no index calls")
	}
}

func TestGetPlaylistPartialResolution(t *testing.T) {
	env := newTestEnv(t)
	env.docBody.Store(strings.Replace(sampleDocument,
		`itemGuid="item-3"`, `itemGuid="item-unknown"`, 1))
	p := env.addPlaylist(t)

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/playlists/"+p.ID, nil))

	resp := decodeResolve(t, w)
	if !resp.Success {
		t.Error("partial resolution should still succeed")
	}
	if resp.TotalReferences != 4 || resp.ResolvedCount != 3 {
		t.Errorf("references = %d/%d, want 3/4", resp.ResolvedCount, resp.TotalReferences)
	}
	wantOrder := []string{"Alpha", "Beta", "Delta"}
	for i, want := range wantOrder {
		if resp.Tracks[i].Title != want {
			t.Errorf("tracks[%d] = %q, want %q", i, resp.Tracks[i].Title, want)
		}
	}
}

func TestGetPlaylistNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/playlists/"+uuid.NewString(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetPlaylistFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.docStatus.Store(http.StatusNotFound)
	p := env.addPlaylist(t)

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/playlists/"+p.ID, nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestGetPlaylistUnparsableDocument(t *testing.T) {
	env := newTestEnv(t)
	env.docBody.Store(`<html><body>not a playlist</body></html>`)
	p := env.addPlaylist(t)

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/playlists/"+p.ID, nil))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestCreatePlaylist(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(createPlaylistRequest{FeedURL: env.docServer.URL, Title: "New Mix"})
	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/playlists", bytes.NewReader(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var created database.Playlist
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.ID == "" || created.FeedURL != env.docServer.URL {
		t.Errorf("created = %+v", created)
	}

	stored, err := env.db.GetPlaylist(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("playlist not persisted: %v", err)
	}
	if stored.Title != "New Mix" {
		t.Errorf("stored title = %q", stored.Title)
	}
}

func TestCreatePlaylistValidation(t *testing.T) {
	env := newTestEnv(t)
	router := env.router()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"missing url", `{"title":"x"}`},
		{"relative url", `{"feedUrl":"/feed.xml"}`},
		{"bad scheme", `{"feedUrl":"ftp://example.com/feed.xml"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/playlists", strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestDeletePlaylist(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPlaylist(t)
	router := env.router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/playlists/"+p.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/playlists/"+p.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestRefreshPlaylistSchedules(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPlaylist(t)

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/playlists/"+p.ID+"/refresh", nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := env.db.GetPlaylist(t.Context(), p.ID)
		if err == nil && stored.HasSnapshot() {
			if stored.Title != "Morning Mix" {
				t.Errorf("metadata not refreshed: title = %q", stored.Title)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("snapshot never materialized after refresh")
}

func TestGetTrack(t *testing.T) {
	env := newTestEnv(t)

	track := seedTrack("feed-a", "item-1", "Alpha")
	if err := env.db.UpsertTracks(t.Context(), []model.ResolvedTrack{track}); err != nil {
		t.Fatalf("seeding track: %v", err)
	}
	router := env.router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tracks/"+track.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tracks/ffffffffffffffff", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown track status = %d, want 404", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if resp.Status != statusHealthy {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}

func TestRequestBudget(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		want  time.Duration
	}{
		{"default", "", 10 * time.Second},
		{"seconds", "timeout=3", 3 * time.Second},
		{"duration", "timeout=1500ms", 1500 * time.Millisecond},
		{"over budget", "timeout=300", 10 * time.Second},
		{"garbage", "timeout=soon", 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/playlists/x?"+tt.query, nil)
			if got := env.h.requestBudget(r); got != tt.want {
				t.Errorf("requestBudget = %v, want %v", got, tt.want)
			}
		})
	}
}

func seedTrack(feedGUID, itemGUID, title string) model.ResolvedTrack {
	key := model.RefKey{FeedGUID: feedGUID, ItemGUID: itemGUID}
	return model.ResolvedTrack{
		ID:         model.TrackID(key),
		FeedGUID:   feedGUID,
		ItemGUID:   itemGUID,
		Title:      title,
		Artist:     "Host",
		AudioURL:   "https://cdn.example.com/" + itemGUID + ".mp3",
		Provenance: model.ProvenancePersisted,
	}
}
