package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/model"
)

// ErrNotAPlaylist is returned when the document parses as XML but contains no
// RSS channel element.
var ErrNotAPlaylist = errors.New("document contains no rss channel")

// Document is the parsed shape of a playlist source document: auxiliary
// channel metadata plus the ordered reference sequence. EpisodeTitles holds
// the marker titles in document order; each reference carries the index of
// the marker it followed (-1 for the ungrouped bucket).
type Document struct {
	Title         string
	Link          string
	ArtworkURL    string
	EpisodeTitles []string
	References    []model.ReferenceItem
}

// Parse extracts the reference sequence and channel metadata from raw source
// document bytes. Optional fields (artwork, link, episode markers) may be
// absent without error; only a structurally unparsable document fails.
//
// Document order is significant, so this walks the token stream directly
// instead of unmarshaling into structs, which would lose the interleaving of
// channel-level references and episode items.
func Parse(data []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	doc := &Document{}
	sawChannel := false

	// Parser position: channel depth tracking plus the episode item being
	// collected, if any.
	depth := 0
	channelDepth := -1
	inImage := false
	var curEpisode *string // title of the open <item>, nil outside items
	curEpisodeIndex := -1
	curEpisodeHasRefs := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unparsable source document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			local := t.Name.Local

			switch {
			case local == "channel" && channelDepth == -1:
				sawChannel = true
				channelDepth = depth

			case channelDepth == -1:
				// Ignore everything outside the channel.

			case local == "remoteItem":
				ref, ok := remoteItemFromAttrs(t.Attr)
				if !ok {
					logging.Debug("skipping remote item with missing guid attributes")
					break
				}
				if curEpisode != nil {
					if !curEpisodeHasRefs {
						doc.EpisodeTitles = append(doc.EpisodeTitles, *curEpisode)
						curEpisodeIndex = len(doc.EpisodeTitles) - 1
						curEpisodeHasRefs = true
					}
					ref.EpisodeIndex = curEpisodeIndex
					ref.EpisodeTitle = doc.EpisodeTitles[curEpisodeIndex]
				} else {
					ref.EpisodeIndex = -1
				}
				doc.References = append(doc.References, ref)

			case local == "item" && curEpisode == nil && depth == channelDepth+1:
				empty := ""
				curEpisode = &empty
				curEpisodeHasRefs = false

			case local == "title" && curEpisode != nil && *curEpisode == "":
				title, err := collectText(dec)
				if err != nil {
					return nil, fmt.Errorf("unparsable source document: %w", err)
				}
				depth-- // collectText consumed the matching end element
				*curEpisode = title

			case local == "title" && depth == channelDepth+1 && doc.Title == "":
				title, err := collectText(dec)
				if err != nil {
					return nil, fmt.Errorf("unparsable source document: %w", err)
				}
				depth--
				doc.Title = title

			case local == "link" && depth == channelDepth+1 && doc.Link == "":
				link, err := collectText(dec)
				if err != nil {
					return nil, fmt.Errorf("unparsable source document: %w", err)
				}
				depth--
				doc.Link = link

			case local == "image" && depth == channelDepth+1:
				// Either <image><url>..</url></image> or <itunes:image href="..">.
				if href := attrValue(t.Attr, "href"); href != "" && doc.ArtworkURL == "" {
					doc.ArtworkURL = href
				}
				inImage = true

			case local == "url" && inImage && doc.ArtworkURL == "":
				u, err := collectText(dec)
				if err != nil {
					return nil, fmt.Errorf("unparsable source document: %w", err)
				}
				depth--
				doc.ArtworkURL = u
			}

		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "item":
				curEpisode = nil
				curEpisodeHasRefs = false
			case "image":
				inImage = false
			case "channel":
				if depth < channelDepth {
					channelDepth = -1
				}
			}
		}
	}

	if !sawChannel {
		return nil, ErrNotAPlaylist
	}

	return doc, nil
}

func remoteItemFromAttrs(attrs []xml.Attr) (model.ReferenceItem, bool) {
	ref := model.ReferenceItem{
		FeedGUID: attrValue(attrs, "feedGuid"),
		ItemGUID: attrValue(attrs, "itemGuid"),
	}
	return ref, ref.FeedGUID != "" && ref.ItemGUID != ""
}

func attrValue(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Local == local {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// collectText reads character data until the current element's end tag.
func collectText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	nested := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			nested++
		case xml.EndElement:
			if nested == 0 {
				return strings.TrimSpace(sb.String()), nil
			}
			nested--
		}
	}
}
