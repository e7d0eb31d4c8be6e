package resolver

import (
	"strings"
	"time"

	"playlist-resolver/internal/discovery"
	"playlist-resolver/internal/model"
)

// trackFromItem projects a discovery item into the canonical track record.
// A title is required; an item without one is treated as malformed. A missing
// enclosure produces a track anyway, left for the assembler to filter as
// unplayable.
func trackFromItem(key model.RefKey, feed *discovery.Feed, item discovery.Item) model.Outcome {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return model.Unresolved(model.ReasonMalformed)
	}

	track := model.ResolvedTrack{
		ID:              model.TrackID(key),
		FeedGUID:        key.FeedGUID,
		ItemGUID:        key.ItemGUID,
		Title:           title,
		Artist:          artistFor(feed),
		AudioURL:        strings.TrimSpace(item.EnclosureURL),
		DurationSeconds: item.DurationSeconds,
		ArtworkURL:      artworkFor(feed, item),
		Provenance:      model.ProvenanceExternal,
	}
	if item.DatePublished > 0 {
		track.PublishedAt = time.Unix(item.DatePublished, 0).UTC()
	}
	return model.Resolved(track)
}

func artistFor(feed *discovery.Feed) string {
	if feed.Author != "" {
		return feed.Author
	}
	return feed.Title
}

// artworkFor prefers item art over feed art, most specific first.
func artworkFor(feed *discovery.Feed, item discovery.Item) string {
	for _, candidate := range []string{item.Image, item.FeedImage, feed.Artwork} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
