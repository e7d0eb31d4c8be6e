package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"playlist-resolver/internal/database"
	"playlist-resolver/internal/feed"
	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/model"
	"playlist-resolver/internal/resolver"
)

// Source labels for the resolve response, ordered by freshness.
const (
	sourceDatabase = "database"
	sourceCache    = "cache"
	sourceFresh    = "fresh"
)

// resolveResponse is the playlist detail payload: the ordered playable track
// list plus the episode grouping and resolution accounting.
type resolveResponse struct {
	Success         bool                  `json:"success"`
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	ArtworkURL      string                `json:"artworkUrl,omitempty"`
	Link            string                `json:"link,omitempty"`
	Tracks          []model.ResolvedTrack `json:"tracks"`
	Episodes        []model.Episode       `json:"episodes"`
	TotalReferences int                   `json:"totalReferences"`
	ResolvedCount   int                   `json:"resolvedCount"`
	Source          string                `json:"source"`
}

// GetPlaylist returns a playlist's resolved track list. Without
// ?refresh=true a stored snapshot is served directly; otherwise the full
// pipeline runs: fetch the source document, extract references, resolve them
// tier by tier, and reassemble in document order. An optional ?timeout=
// (seconds or a Go duration) tightens the request budget.
func (h *Handlers) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	refresh := r.URL.Query().Get("refresh") == "true"

	playlist, err := h.db.GetPlaylist(r.Context(), id)
	if errors.Is(err, database.ErrPlaylistNotFound) {
		writeJSONError(w, "playlist not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("fetching playlist %s: %v", id, err)
		writeJSONError(w, "failed to fetch playlist", http.StatusInternalServerError)
		return
	}

	if !refresh && playlist.HasSnapshot() {
		items, err := h.db.ActiveSnapshot(r.Context(), id)
		if err != nil {
			logging.Error("loading snapshot for playlist %s: %v", id, err)
		} else if items != nil {
			w.Header().Set("Content-Type", "application/json")
			writeJSON(w, snapshotResponse(playlist, items))
			return
		}
		// A broken or missing snapshot falls through to a live pass.
	}

	budget := h.requestBudget(r)
	ctx, cancel := context.WithTimeout(r.Context(), budget)
	defer cancel()

	doc, asm, result, errStatus := h.resolveFeed(ctx, playlist.FeedURL, refresh)
	if errStatus != 0 {
		writeJSONError(w, resolveErrorMessage(errStatus), errStatus)
		return
	}

	go h.storeSnapshot(playlist.ID, doc, asm)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, liveResponse(playlist, doc, asm, result))
}

// RefreshPlaylist schedules a background re-resolution of the playlist and
// returns immediately.
func (h *Handlers) RefreshPlaylist(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	playlist, err := h.db.GetPlaylist(r.Context(), id)
	if errors.Is(err, database.ErrPlaylistNotFound) {
		writeJSONError(w, "playlist not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("fetching playlist %s: %v", id, err)
		writeJSONError(w, "failed to fetch playlist", http.StatusInternalServerError)
		return
	}

	go h.refreshInBackground(playlist)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "refresh scheduled", "id": playlist.ID})
}

// resolveFeed runs the full pipeline for one source document. A non-zero
// status return means the pipeline failed before producing any result;
// item-level failures are part of the assembly, not an error.
func (h *Handlers) resolveFeed(ctx context.Context, feedURL string, skipCache bool) (*feed.Document, feed.Assembly, *resolver.Result, int) {
	data, err := h.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		logging.Warn("fetching source document %s: %v", feedURL, err)
		return nil, feed.Assembly{}, nil, http.StatusBadGateway
	}

	doc, err := feed.Parse(data)
	if err != nil {
		logging.Warn("parsing source document %s: %v", feedURL, err)
		return nil, feed.Assembly{}, nil, http.StatusUnprocessableEntity
	}

	keys := model.DedupeKeys(doc.References)
	result := h.resolver.ResolveMany(ctx, keys, resolver.Options{SkipCache: skipCache})
	asm := feed.Assemble(doc, result.Outcomes)

	return doc, asm, result, 0
}

func resolveErrorMessage(status int) string {
	switch status {
	case http.StatusBadGateway:
		return "failed to fetch playlist source document"
	case http.StatusUnprocessableEntity:
		return "playlist source document could not be parsed"
	default:
		return "resolution failed"
	}
}

// liveResponse builds the response for a freshly resolved pass. The source
// label reflects the deepest tier that did real work: any external call makes
// the result fresh, otherwise cache hits beat pure store reads.
func liveResponse(p database.Playlist, doc *feed.Document, asm feed.Assembly, result *resolver.Result) resolveResponse {
	source := sourceDatabase
	switch {
	case result.ExternalCalls > 0:
		source = sourceFresh
	case result.CacheHits > 0:
		source = sourceCache
	}

	title := doc.Title
	if title == "" {
		title = p.Title
	}

	return resolveResponse{
		Success:         true,
		ID:              p.ID,
		Title:           title,
		ArtworkURL:      doc.ArtworkURL,
		Link:            doc.Link,
		Tracks:          asm.Tracks,
		Episodes:        asm.Episodes,
		TotalReferences: asm.TotalReferences,
		ResolvedCount:   asm.ResolvedCount,
		Source:          source,
	}
}

// snapshotResponse rebuilds the response shape from stored snapshot rows,
// regrouping tracks under their episode markers in stored order.
func snapshotResponse(p database.Playlist, items []database.SnapshotItem) resolveResponse {
	resp := resolveResponse{
		Success:         true,
		ID:              p.ID,
		Title:           p.Title,
		ArtworkURL:      p.ArtworkURL,
		Link:            p.Link,
		Tracks:          []model.ResolvedTrack{},
		Episodes:        []model.Episode{},
		TotalReferences: len(items),
		ResolvedCount:   len(items),
		Source:          sourceDatabase,
	}

	episodeAt := map[int]int{}
	for _, item := range items {
		resp.Tracks = append(resp.Tracks, item.Track)

		epID := item.EpisodeIndex + 1
		if item.EpisodeIndex < 0 {
			epID = 0
		}
		idx, ok := episodeAt[epID]
		if !ok {
			idx = len(resp.Episodes)
			episodeAt[epID] = idx
			resp.Episodes = append(resp.Episodes, model.Episode{
				ID:     epID,
				Title:  item.EpisodeTitle,
				Tracks: []model.ResolvedTrack{},
			})
		}
		resp.Episodes[idx].TrackCount++
		resp.Episodes[idx].Tracks = append(resp.Episodes[idx].Tracks, item.Track)
	}

	return resp
}

// storeSnapshot persists the assembly as the playlist's new active snapshot
// and refreshes the playlist metadata. Runs off the request path; a pass
// that resolved nothing leaves the previous snapshot in place.
func (h *Handlers) storeSnapshot(playlistID string, doc *feed.Document, asm feed.Assembly) {
	if asm.ResolvedCount == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.db.UpdatePlaylistMeta(ctx, playlistID, doc.Title, doc.ArtworkURL, doc.Link); err != nil {
		logging.Warn("updating playlist %s metadata: %v", playlistID, err)
	}

	items := make([]database.SnapshotItem, 0, asm.ResolvedCount)
	for _, ep := range asm.Episodes {
		for _, track := range ep.Tracks {
			items = append(items, database.SnapshotItem{
				Track:        track,
				EpisodeIndex: ep.ID - 1,
				EpisodeTitle: ep.Title,
			})
		}
	}

	if err := h.db.ReplaceSnapshot(ctx, playlistID, items); err != nil {
		logging.Error("replacing snapshot for playlist %s: %v", playlistID, err)
	}
}

// RefreshNow runs a full forced pass for one playlist and stores the
// resulting snapshot. Used by the background refresher and the async
// endpoints.
func (h *Handlers) RefreshNow(ctx context.Context, p database.Playlist) error {
	doc, asm, _, errStatus := h.resolveFeed(ctx, p.FeedURL, true)
	if errStatus != 0 {
		return fmt.Errorf("refreshing playlist %s: upstream failure (%d)", p.ID, errStatus)
	}
	h.storeSnapshot(p.ID, doc, asm)
	logging.Info("refreshed playlist %s: %d/%d references resolved",
		p.ID, asm.ResolvedCount, asm.TotalReferences)
	return nil
}

// refreshInBackground runs RefreshNow outside any request.
func (h *Handlers) refreshInBackground(p database.Playlist) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*h.config.RequestBudget)
	defer cancel()

	if err := h.RefreshNow(ctx, p); err != nil {
		logging.Warn("background refresh: %v", err)
	}
}

// requestBudget returns the wall-clock budget for one resolve request. The
// ?timeout= override accepts bare seconds or a Go duration and never exceeds
// the configured budget.
func (h *Handlers) requestBudget(r *http.Request) time.Duration {
	budget := h.config.RequestBudget

	raw := r.URL.Query().Get("timeout")
	if raw == "" {
		return budget
	}

	var override time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		override = time.Duration(secs) * time.Second
	} else if d, err := time.ParseDuration(raw); err == nil {
		override = d
	}
	if override > 0 && override < budget {
		return override
	}
	return budget
}
