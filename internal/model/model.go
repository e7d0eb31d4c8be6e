package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefKey is the identity of a remote item reference: the (feedGuid, itemGuid)
// pair that names a track hosted in an independently operated feed.
type RefKey struct {
	FeedGUID string `json:"feedGuid"`
	ItemGUID string `json:"itemGuid"`
}

// ReferenceItem is one remote item reference as it appeared in a playlist
// source document, plus the episode grouping context it was found in.
// EpisodeIndex is zero-based; -1 means the reference precedes any episode
// marker and belongs to the ungrouped bucket.
type ReferenceItem struct {
	FeedGUID     string `json:"feedGuid"`
	ItemGUID     string `json:"itemGuid"`
	EpisodeTitle string `json:"episodeTitle,omitempty"`
	EpisodeIndex int    `json:"episodeIndex"`
}

// Key returns the reference's identity.
func (r ReferenceItem) Key() RefKey {
	return RefKey{FeedGUID: r.FeedGUID, ItemGUID: r.ItemGUID}
}

// Provenance records which resolution tier produced a track.
type Provenance string

const (
	ProvenancePersisted Provenance = "persisted"
	ProvenanceCache     Provenance = "cache"
	ProvenanceExternal  Provenance = "external"
)

// ResolvedTrack is the canonical playable track record. Both record shapes in
// the system (persisted store rows and discovery API items) are projected into
// this one type; nothing downstream inspects the original shapes.
type ResolvedTrack struct {
	ID              string     `json:"id"`
	FeedGUID        string     `json:"feedGuid"`
	ItemGUID        string     `json:"itemGuid"`
	Title           string     `json:"title"`
	Artist          string     `json:"artist"`
	AudioURL        string     `json:"audioUrl"`
	DurationSeconds int        `json:"durationSeconds"`
	ArtworkURL      string     `json:"artworkUrl,omitempty"`
	PublishedAt     time.Time  `json:"publishedAt"`
	Provenance      Provenance `json:"provenance"`
}

// Key returns the track's reference identity.
func (t ResolvedTrack) Key() RefKey {
	return RefKey{FeedGUID: t.FeedGUID, ItemGUID: t.ItemGUID}
}

// Playable reports whether the track carries a usable audio locator. A track
// that resolved on metadata but has no audio URL is treated as unresolved for
// playback purposes.
func (t ResolvedTrack) Playable() bool {
	return t.AudioURL != ""
}

// TrackID derives the stable track identifier for a reference. The same
// (feedGuid, itemGuid) pair always yields the same id, which keeps resolution
// idempotent across tiers and across requests.
func TrackID(key RefKey) string {
	sum := sha256.Sum256([]byte(key.FeedGUID + "|" + key.ItemGUID))
	return hex.EncodeToString(sum[:8])
}

// Reason explains why a reference could not be resolved.
type Reason string

const (
	// ReasonNotIndexed means the discovery service does not know the feed.
	ReasonNotIndexed Reason = "not_indexed"
	// ReasonItemNotFound means the feed is known but the item is absent.
	ReasonItemNotFound Reason = "item_not_found"
	// ReasonAPIError means a transport or auth failure talking to discovery.
	ReasonAPIError Reason = "api_error"
	// ReasonMalformed means the discovery record lacked a required field.
	ReasonMalformed Reason = "malformed"
	// ReasonTimeout means the request deadline expired before resolution.
	ReasonTimeout Reason = "timeout"
	// ReasonNoAudio means the track resolved but carries no audio locator.
	ReasonNoAudio Reason = "no_audio"
)

// Outcome is the per-reference result of a resolution pass: either a resolved
// track or an unresolved reason, never both.
type Outcome struct {
	Track  *ResolvedTrack `json:"track,omitempty"`
	Reason Reason         `json:"reason,omitempty"`
}

// Resolved wraps a track in a successful outcome.
func Resolved(t ResolvedTrack) Outcome {
	return Outcome{Track: &t}
}

// Unresolved creates a failed outcome with the given reason.
func Unresolved(r Reason) Outcome {
	return Outcome{Reason: r}
}

// OK reports whether the outcome carries a resolved track.
func (o Outcome) OK() bool {
	return o.Track != nil
}

// Episode is an ordered group of tracks reconstructed from the curator's
// episode markers. TrackCount counts all references assigned to the group,
// including ones that did not resolve to a playable track.
type Episode struct {
	ID         int             `json:"id"`
	Title      string          `json:"title"`
	TrackCount int             `json:"trackCount"`
	Tracks     []ResolvedTrack `json:"tracks"`
}

// DedupeKeys returns the distinct reference identities of refs, preserving
// first-seen order. Resolution always operates on deduplicated identities so
// a pair appearing twice in a document triggers at most one lookup.
func DedupeKeys(refs []ReferenceItem) []RefKey {
	seen := make(map[RefKey]struct{}, len(refs))
	keys := make([]RefKey, 0, len(refs))
	for _, r := range refs {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
