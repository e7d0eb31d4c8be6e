package feed

import "playlist-resolver/internal/model"

// Assembly is the ordered result of merging resolution outcomes back into the
// source document structure. Tracks is the flat, playable-only track list;
// Episodes preserves the curator's grouping. Both follow source-document
// order exactly, regardless of the order resolutions completed in.
type Assembly struct {
	Tracks          []model.ResolvedTrack
	Episodes        []model.Episode
	TotalReferences int
	ResolvedCount   int
}

// Assemble walks the document's reference sequence in order and attaches each
// reference's outcome to its episode group. A resolved track without a usable
// audio locator counts as unresolved for playback even though its metadata
// matched.
func Assemble(doc *Document, outcomes map[model.RefKey]model.Outcome) Assembly {
	asm := Assembly{
		Tracks:          []model.ResolvedTrack{},
		Episodes:        []model.Episode{},
		TotalReferences: len(doc.References),
	}

	// Episode slots in document order: index 0 is the ungrouped bucket,
	// present in the output only if it receives references.
	ungrouped := model.Episode{ID: 0, Title: "", Tracks: []model.ResolvedTrack{}}
	grouped := make([]model.Episode, len(doc.EpisodeTitles))
	for i, title := range doc.EpisodeTitles {
		grouped[i] = model.Episode{ID: i + 1, Title: title, Tracks: []model.ResolvedTrack{}}
	}

	for _, ref := range doc.References {
		ep := &ungrouped
		if ref.EpisodeIndex >= 0 && ref.EpisodeIndex < len(grouped) {
			ep = &grouped[ref.EpisodeIndex]
		}
		ep.TrackCount++

		outcome, ok := outcomes[ref.Key()]
		if !ok || !outcome.OK() || !outcome.Track.Playable() {
			continue
		}

		asm.ResolvedCount++
		asm.Tracks = append(asm.Tracks, *outcome.Track)
		ep.Tracks = append(ep.Tracks, *outcome.Track)
	}

	if ungrouped.TrackCount > 0 {
		asm.Episodes = append(asm.Episodes, ungrouped)
	}
	asm.Episodes = append(asm.Episodes, grouped...)

	return asm
}
