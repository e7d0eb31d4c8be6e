package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"playlist-resolver/internal/model"
)

// ErrTrackNotFound is returned when a track id has no persisted record.
var ErrTrackNotFound = errors.New("track not found")

// TracksByKeys performs the tier-1 batch lookup: one round trip fetching
// every persisted track whose itemGuid is in keys. Matching policy: by
// default a row only satisfies a key when its feedGuid matches too;
// itemGUIDOnly enables the legacy mode that accepts any feed, for databases
// populated before feed guids were recorded.
func (d *Database) TracksByKeys(ctx context.Context, keys []model.RefKey, itemGUIDOnly bool) (map[model.RefKey]model.ResolvedTrack, error) {
	start := time.Now()
	result := make(map[model.RefKey]model.ResolvedTrack, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	// Candidate keys per itemGuid; the IN clause fetches by itemGuid and
	// the feed-matching policy is applied over the fetched rows.
	byItem := make(map[string][]model.RefKey, len(keys))
	args := make([]interface{}, 0, len(keys))
	placeholders := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, seen := byItem[k.ItemGUID]; !seen {
			args = append(args, k.ItemGUID)
			placeholders = append(placeholders, "?")
		}
		byItem[k.ItemGUID] = append(byItem[k.ItemGUID], k)
	}

	query := `
		SELECT id, feed_guid, item_guid, title, artist, audio_url,
		       duration_seconds, artwork_url, published_at
		FROM tracks
		WHERE item_guid IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := d.db.QueryContext(ctx, query, args...)
	observe("tracks_by_keys", start, err)
	if err != nil {
		return nil, fmt.Errorf("batch track lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track row: %w", err)
		}
		for _, key := range byItem[track.ItemGUID] {
			if _, taken := result[key]; taken {
				continue
			}
			if itemGUIDOnly || key.FeedGUID == track.FeedGUID {
				result[key] = track
			}
		}
	}

	return result, rows.Err()
}

// UpsertTracks writes resolved tracks through to the persisted index. Fields
// are replaced on conflict so a re-resolution refreshes stale metadata; the
// resolved_at timestamp always moves forward.
func (d *Database) UpsertTracks(ctx context.Context, tracks []model.ResolvedTrack) error {
	if len(tracks) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		observe("upsert_tracks", start, err)
		return fmt.Errorf("beginning track upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (id, feed_guid, item_guid, title, artist, audio_url,
		                    duration_seconds, artwork_url, published_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(feed_guid, item_guid) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			audio_url = excluded.audio_url,
			duration_seconds = excluded.duration_seconds,
			artwork_url = excluded.artwork_url,
			published_at = excluded.published_at,
			resolved_at = excluded.resolved_at`)
	if err != nil {
		observe("upsert_tracks", start, err)
		return fmt.Errorf("preparing track upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		_, err := stmt.ExecContext(ctx, t.ID, t.FeedGUID, t.ItemGUID, t.Title, t.Artist,
			t.AudioURL, t.DurationSeconds, t.ArtworkURL, t.PublishedAt.Unix())
		if err != nil {
			observe("upsert_tracks", start, err)
			return fmt.Errorf("upserting track %s: %w", t.ID, err)
		}
	}

	err = tx.Commit()
	observe("upsert_tracks", start, err)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTrack reads one persisted row into the canonical track shape. This is
// the single projection from the store's record format; provenance is always
// "persisted" here and rewritten by the cache tier when it serves a copy.
func scanTrack(row rowScanner) (model.ResolvedTrack, error) {
	var t model.ResolvedTrack
	var published int64
	err := row.Scan(&t.ID, &t.FeedGUID, &t.ItemGUID, &t.Title, &t.Artist,
		&t.AudioURL, &t.DurationSeconds, &t.ArtworkURL, &published)
	if err != nil {
		return model.ResolvedTrack{}, err
	}
	if published > 0 {
		t.PublishedAt = time.Unix(published, 0).UTC()
	}
	t.Provenance = model.ProvenancePersisted
	return t, nil
}

// TrackByID fetches a single persisted track. Used by snapshot reads.
func (d *Database) TrackByID(ctx context.Context, id string) (model.ResolvedTrack, error) {
	start := time.Now()
	row := d.db.QueryRowContext(ctx, `
		SELECT id, feed_guid, item_guid, title, artist, audio_url,
		       duration_seconds, artwork_url, published_at
		FROM tracks WHERE id = ?`, id)

	track, err := scanTrack(row)
	observe("track_by_id", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ResolvedTrack{}, ErrTrackNotFound
	}
	return track, err
}
