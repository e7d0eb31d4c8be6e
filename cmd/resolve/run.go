package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"playlist-resolver/internal/cache"
	"playlist-resolver/internal/database"
	"playlist-resolver/internal/discovery"
	"playlist-resolver/internal/feed"
	"playlist-resolver/internal/model"
	"playlist-resolver/internal/resolver"
)

const defaultTimeout = 45 * time.Second

type runOptions struct {
	feedURL      string
	databasePath string
	timeout      time.Duration
	asJSON       bool
	itemGUIDOnly bool
}

// jsonResult is the --json output shape, mirroring the server's playlist
// detail response.
type jsonResult struct {
	Title           string                `json:"title"`
	Tracks          []model.ResolvedTrack `json:"tracks"`
	Episodes        []model.Episode       `json:"episodes"`
	TotalReferences int                   `json:"totalReferences"`
	ResolvedCount   int                   `json:"resolvedCount"`
}

// nullStore satisfies the resolver's store interface when no database path
// was given. Everything misses and write-backs vanish.
type nullStore struct{}

func (nullStore) TracksByKeys(context.Context, []model.RefKey, bool) (map[model.RefKey]model.ResolvedTrack, error) {
	return nil, nil
}

func (nullStore) UpsertTracks(context.Context, []model.ResolvedTrack) error {
	return nil
}

func run(out io.Writer, opts runOptions) error {
	timeout := opts.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var store resolver.Store = nullStore{}
	if opts.databasePath != "" {
		db, err := database.New(ctx, opts.databasePath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		store = db
	}

	index := discovery.NewClient(
		os.Getenv("INDEX_API_URL"),
		os.Getenv("INDEX_API_KEY"),
		os.Getenv("INDEX_API_SECRET"),
	)
	res := resolver.New(store, cache.New(cache.DefaultTTL), index, resolver.Config{
		ItemGUIDOnly: opts.itemGUIDOnly,
	})

	fetcher := feed.NewFetcher(15 * time.Second)
	data, err := fetcher.Fetch(ctx, opts.feedURL)
	if err != nil {
		return fmt.Errorf("fetching source document: %w", err)
	}
	doc, err := feed.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing source document: %w", err)
	}

	keys := model.DedupeKeys(doc.References)
	result := res.ResolveMany(ctx, keys, resolver.Options{})
	asm := feed.Assemble(doc, result.Outcomes)

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonResult{
			Title:           doc.Title,
			Tracks:          asm.Tracks,
			Episodes:        asm.Episodes,
			TotalReferences: asm.TotalReferences,
			ResolvedCount:   asm.ResolvedCount,
		})
	}

	printSummary(out, doc, asm, result)
	return nil
}

func printSummary(out io.Writer, doc *feed.Document, asm feed.Assembly, result *resolver.Result) {
	fmt.Fprintf(out, "%s\n", doc.Title)
	fmt.Fprintf(out, "%d/%d references resolved (store %d, cache %d, external %d; %d external calls)\n\n",
		asm.ResolvedCount, asm.TotalReferences,
		result.StoreHits, result.CacheHits, result.ExternalHits, result.ExternalCalls)

	for _, ep := range asm.Episodes {
		if ep.Title != "" {
			fmt.Fprintf(out, "== %s ==\n", ep.Title)
		}
		for _, track := range ep.Tracks {
			duration := time.Duration(track.DurationSeconds) * time.Second
			fmt.Fprintf(out, "  %-40s %-25s %s\n", truncate(track.Title, 40), truncate(track.Artist, 25), duration)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

func mustDuration(cmd *cobra.Command, name string) time.Duration {
	v, _ := cmd.Flags().GetDuration(name)
	return v
}
