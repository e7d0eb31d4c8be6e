package feed

import (
	"strings"
	"testing"
)

const sampleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:podcast="https://podcastindex.org/namespace/1.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Friday Night Mixtape</title>
    <link>https://example.com/mixtape</link>
    <image><url>https://example.com/art.png</url></image>
    <podcast:remoteItem feedGuid="feed-1" itemGuid="track-1"/>
    <podcast:remoteItem feedGuid="feed-2" itemGuid="track-2"/>
    <item>
      <title>Episode 12</title>
      <podcast:remoteItem feedGuid="feed-1" itemGuid="track-3"/>
      <podcast:remoteItem feedGuid="feed-3" itemGuid="track-4"/>
    </item>
    <item>
      <title>Episode 13</title>
      <podcast:remoteItem feedGuid="feed-2" itemGuid="track-5"/>
    </item>
  </channel>
</rss>`

func TestParse(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if doc.Title != "Friday Night Mixtape" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.Link != "https://example.com/mixtape" {
		t.Errorf("Link = %q", doc.Link)
	}
	if doc.ArtworkURL != "https://example.com/art.png" {
		t.Errorf("ArtworkURL = %q", doc.ArtworkURL)
	}

	if len(doc.References) != 5 {
		t.Fatalf("got %d references, want 5", len(doc.References))
	}

	wantItems := []string{"track-1", "track-2", "track-3", "track-4", "track-5"}
	wantEpisodes := []int{-1, -1, 0, 0, 1}
	for i, ref := range doc.References {
		if ref.ItemGUID != wantItems[i] {
			t.Errorf("reference[%d].ItemGUID = %q, want %q", i, ref.ItemGUID, wantItems[i])
		}
		if ref.EpisodeIndex != wantEpisodes[i] {
			t.Errorf("reference[%d].EpisodeIndex = %d, want %d", i, ref.EpisodeIndex, wantEpisodes[i])
		}
	}

	if len(doc.EpisodeTitles) != 2 || doc.EpisodeTitles[0] != "Episode 12" || doc.EpisodeTitles[1] != "Episode 13" {
		t.Errorf("EpisodeTitles = %v", doc.EpisodeTitles)
	}
}

func TestParseNoMarkers(t *testing.T) {
	t.Parallel()

	docXML := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
		<title>Flat List</title>
		<podcast:remoteItem feedGuid="f" itemGuid="a"/>
		<podcast:remoteItem feedGuid="f" itemGuid="b"/>
	</channel></rss>`

	doc, err := Parse([]byte(docXML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(doc.EpisodeTitles) != 0 {
		t.Errorf("EpisodeTitles = %v, want none", doc.EpisodeTitles)
	}
	for i, ref := range doc.References {
		if ref.EpisodeIndex != -1 {
			t.Errorf("reference[%d].EpisodeIndex = %d, want -1 (ungrouped)", i, ref.EpisodeIndex)
		}
	}
}

func TestParseOptionalFieldsAbsent(t *testing.T) {
	t.Parallel()

	docXML := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
		<podcast:remoteItem feedGuid="f" itemGuid="a"/>
	</channel></rss>`

	doc, err := Parse([]byte(docXML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if doc.ArtworkURL != "" || doc.Link != "" || doc.Title != "" {
		t.Errorf("optional fields should be empty, got %+v", doc)
	}
	if len(doc.References) != 1 {
		t.Fatalf("got %d references, want 1", len(doc.References))
	}
}

func TestParseItunesImage(t *testing.T) {
	t.Parallel()

	docXML := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"><channel>
		<itunes:image href="https://example.com/itunes.jpg"/>
		<podcast:remoteItem feedGuid="f" itemGuid="a"/>
	</channel></rss>`

	doc, err := Parse([]byte(docXML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if doc.ArtworkURL != "https://example.com/itunes.jpg" {
		t.Errorf("ArtworkURL = %q", doc.ArtworkURL)
	}
}

func TestParseSkipsIncompleteReferences(t *testing.T) {
	t.Parallel()

	docXML := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
		<podcast:remoteItem feedGuid="f"/>
		<podcast:remoteItem itemGuid="a"/>
		<podcast:remoteItem feedGuid="f" itemGuid="ok"/>
	</channel></rss>`

	doc, err := Parse([]byte(docXML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(doc.References) != 1 || doc.References[0].ItemGUID != "ok" {
		t.Errorf("References = %+v, want just the complete one", doc.References)
	}
}

func TestParseIgnoresPlainItems(t *testing.T) {
	t.Parallel()

	docXML := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
		<item><title>A normal episode</title></item>
		<podcast:remoteItem feedGuid="f" itemGuid="a"/>
	</channel></rss>`

	doc, err := Parse([]byte(docXML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(doc.EpisodeTitles) != 0 {
		t.Errorf("item without remote items should not become a marker, got %v", doc.EpisodeTitles)
	}
}

func TestParseFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"truncated xml", `<rss><channel><title>Broken`},
		{"no channel", `<html><body>not a feed</body></html>`},
		{"empty input", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("Parse should fail")
			}
		})
	}
}

func TestParseDuplicateReferencesPreserved(t *testing.T) {
	t.Parallel()

	docXML := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
		<podcast:remoteItem feedGuid="f" itemGuid="a"/>
		<podcast:remoteItem feedGuid="f" itemGuid="a"/>
	</channel></rss>`

	doc, err := Parse([]byte(docXML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	// Both positions stay in the document; dedup happens at resolution time.
	if len(doc.References) != 2 {
		t.Errorf("got %d references, want 2", len(doc.References))
	}
}

func TestParseWhitespaceTrimmed(t *testing.T) {
	t.Parallel()

	docXML := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
		<title>
			Spaced Out
		</title>
		<podcast:remoteItem feedGuid=" f " itemGuid=" a "/>
	</channel></rss>`

	doc, err := Parse([]byte(docXML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if doc.Title != "Spaced Out" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.References[0].FeedGUID != "f" || doc.References[0].ItemGUID != "a" {
		t.Errorf("guids not trimmed: %+v", doc.References[0])
	}
	if strings.Contains(doc.Title, "\n") {
		t.Error("title contains newline")
	}
}
