package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"playlist-resolver/internal/database"
	"playlist-resolver/internal/logging"
)

// createPlaylistRequest is the body of POST /api/playlists.
type createPlaylistRequest struct {
	FeedURL string `json:"feedUrl"`
	Title   string `json:"title"`
}

const maxRequestBody = 64 * 1024

// ListPlaylists returns all registered playlists.
func (h *Handlers) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.db.ListPlaylists(r.Context())
	if err != nil {
		logging.Error("listing playlists: %v", err)
		writeJSONError(w, "failed to list playlists", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, playlists)
}

// CreatePlaylist registers a playlist source feed and kicks off its first
// resolution pass in the background.
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	feedURL := strings.TrimSpace(req.FeedURL)
	if feedURL == "" {
		writeJSONError(w, "feedUrl is required", http.StatusBadRequest)
		return
	}
	parsed, err := url.Parse(feedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeJSONError(w, "feedUrl must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}

	p := database.Playlist{
		ID:      uuid.NewString(),
		Title:   strings.TrimSpace(req.Title),
		FeedURL: feedURL,
	}
	if err := h.db.CreatePlaylist(r.Context(), p); err != nil {
		logging.Error("creating playlist: %v", err)
		writeJSONError(w, "failed to create playlist", http.StatusInternalServerError)
		return
	}

	// Warm the first snapshot without holding up the response.
	go h.refreshInBackground(p)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, p)
}

// DeletePlaylist removes a playlist and its stored snapshots.
func (h *Handlers) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := h.db.DeletePlaylist(r.Context(), id)
	if errors.Is(err, database.ErrPlaylistNotFound) {
		writeJSONError(w, "playlist not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("deleting playlist %s: %v", id, err)
		writeJSONError(w, "failed to delete playlist", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, "deleted")
}

// GetTrack returns one resolved track by id.
func (h *Handlers) GetTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	track, err := h.db.TrackByID(r.Context(), id)
	if errors.Is(err, database.ErrTrackNotFound) {
		writeJSONError(w, "track not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("fetching track %s: %v", id, err)
		writeJSONError(w, "failed to fetch track", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, track)
}
