package feed

import (
	"testing"

	"playlist-resolver/internal/model"
)

func docWithRefs() *Document {
	return &Document{
		Title:         "Mix",
		EpisodeTitles: []string{"Ep 1", "Ep 2"},
		References: []model.ReferenceItem{
			{FeedGUID: "f1", ItemGUID: "a", EpisodeIndex: -1},
			{FeedGUID: "f1", ItemGUID: "b", EpisodeIndex: 0, EpisodeTitle: "Ep 1"},
			{FeedGUID: "f2", ItemGUID: "c", EpisodeIndex: 0, EpisodeTitle: "Ep 1"},
			{FeedGUID: "f2", ItemGUID: "d", EpisodeIndex: 1, EpisodeTitle: "Ep 2"},
		},
	}
}

func resolvedOutcome(feed, item string) model.Outcome {
	key := model.RefKey{FeedGUID: feed, ItemGUID: item}
	return model.Resolved(model.ResolvedTrack{
		ID:       model.TrackID(key),
		FeedGUID: feed,
		ItemGUID: item,
		Title:    "t-" + item,
		AudioURL: "https://cdn.example.com/" + item + ".mp3",
	})
}

func TestAssembleOrderPreserved(t *testing.T) {
	t.Parallel()

	doc := docWithRefs()
	// Outcome map iteration order is random; assembly must follow document
	// order regardless.
	outcomes := map[model.RefKey]model.Outcome{
		{FeedGUID: "f2", ItemGUID: "d"}: resolvedOutcome("f2", "d"),
		{FeedGUID: "f1", ItemGUID: "a"}: resolvedOutcome("f1", "a"),
		{FeedGUID: "f2", ItemGUID: "c"}: resolvedOutcome("f2", "c"),
		{FeedGUID: "f1", ItemGUID: "b"}: resolvedOutcome("f1", "b"),
	}

	asm := Assemble(doc, outcomes)

	if asm.TotalReferences != 4 || asm.ResolvedCount != 4 {
		t.Fatalf("TotalReferences=%d ResolvedCount=%d, want 4/4", asm.TotalReferences, asm.ResolvedCount)
	}

	wantOrder := []string{"a", "b", "c", "d"}
	for i, track := range asm.Tracks {
		if track.ItemGUID != wantOrder[i] {
			t.Errorf("Tracks[%d] = %q, want %q", i, track.ItemGUID, wantOrder[i])
		}
	}

	if len(asm.Episodes) != 3 {
		t.Fatalf("got %d episodes, want 3 (ungrouped + 2 marked)", len(asm.Episodes))
	}
	if asm.Episodes[0].Title != "" || len(asm.Episodes[0].Tracks) != 1 {
		t.Errorf("ungrouped bucket = %+v", asm.Episodes[0])
	}
	if asm.Episodes[1].Title != "Ep 1" || len(asm.Episodes[1].Tracks) != 2 {
		t.Errorf("episode 1 = %+v", asm.Episodes[1])
	}
	if asm.Episodes[2].Title != "Ep 2" || len(asm.Episodes[2].Tracks) != 1 {
		t.Errorf("episode 2 = %+v", asm.Episodes[2])
	}
}

func TestAssemblePartialResolution(t *testing.T) {
	t.Parallel()

	doc := docWithRefs()
	outcomes := map[model.RefKey]model.Outcome{
		{FeedGUID: "f1", ItemGUID: "a"}: resolvedOutcome("f1", "a"),
		{FeedGUID: "f1", ItemGUID: "b"}: model.Unresolved(model.ReasonItemNotFound),
		{FeedGUID: "f2", ItemGUID: "c"}: model.Unresolved(model.ReasonTimeout),
		// "d" has no outcome at all; assembly must tolerate that too.
	}

	asm := Assemble(doc, outcomes)

	if asm.ResolvedCount != 1 || len(asm.Tracks) != 1 {
		t.Errorf("ResolvedCount=%d len(Tracks)=%d, want 1/1", asm.ResolvedCount, len(asm.Tracks))
	}
	// Unresolved references still count toward their episode's track count.
	if asm.Episodes[1].TrackCount != 2 {
		t.Errorf("episode 1 TrackCount = %d, want 2", asm.Episodes[1].TrackCount)
	}
}

func TestAssembleZeroResolution(t *testing.T) {
	t.Parallel()

	doc := docWithRefs()
	outcomes := map[model.RefKey]model.Outcome{}
	for _, ref := range doc.References {
		outcomes[ref.Key()] = model.Unresolved(model.ReasonAPIError)
	}

	asm := Assemble(doc, outcomes)

	if asm.ResolvedCount != 0 {
		t.Errorf("ResolvedCount = %d, want 0", asm.ResolvedCount)
	}
	if asm.Tracks == nil || asm.Episodes == nil {
		t.Error("assembly slices must be non-nil even at zero resolution")
	}
	if asm.TotalReferences != 4 {
		t.Errorf("TotalReferences = %d, want 4", asm.TotalReferences)
	}
}

func TestAssembleFiltersUnplayableTracks(t *testing.T) {
	t.Parallel()

	doc := &Document{
		References: []model.ReferenceItem{{FeedGUID: "f", ItemGUID: "a", EpisodeIndex: -1}},
	}
	noAudio := model.Resolved(model.ResolvedTrack{ID: "x", FeedGUID: "f", ItemGUID: "a", Title: "metadata only"})
	asm := Assemble(doc, map[model.RefKey]model.Outcome{
		{FeedGUID: "f", ItemGUID: "a"}: noAudio,
	})

	if asm.ResolvedCount != 0 || len(asm.Tracks) != 0 {
		t.Error("a resolved track without an audio locator must not be playable")
	}
	if asm.Episodes[0].TrackCount != 1 {
		t.Errorf("TrackCount = %d, want 1", asm.Episodes[0].TrackCount)
	}
}

func TestAssembleDuplicateReferencesShareTrack(t *testing.T) {
	t.Parallel()

	doc := &Document{
		References: []model.ReferenceItem{
			{FeedGUID: "f", ItemGUID: "a", EpisodeIndex: -1},
			{FeedGUID: "f", ItemGUID: "a", EpisodeIndex: -1},
		},
	}
	asm := Assemble(doc, map[model.RefKey]model.Outcome{
		{FeedGUID: "f", ItemGUID: "a"}: resolvedOutcome("f", "a"),
	})

	if len(asm.Tracks) != 2 {
		t.Fatalf("got %d tracks, want 2 (both positions kept)", len(asm.Tracks))
	}
	if asm.Tracks[0].ID != asm.Tracks[1].ID {
		t.Error("duplicate references must reference the same resolved track")
	}
}
