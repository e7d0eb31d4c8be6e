package database

import "time"

// Playlist is one registered playlist: the curator's feed URL plus the
// metadata captured from its last successful parse.
type Playlist struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	FeedURL        string    `json:"feedUrl"`
	ArtworkURL     string    `json:"artworkUrl,omitempty"`
	Link           string    `json:"link,omitempty"`
	ActiveSnapshot string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// HasSnapshot reports whether the playlist has a live resolved snapshot.
func (p Playlist) HasSnapshot() bool {
	return p.ActiveSnapshot != ""
}
