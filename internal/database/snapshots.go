package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/metrics"
	"playlist-resolver/internal/model"
)

// SnapshotItem is one position of a resolved playlist snapshot: the track in
// playback order plus its episode assignment.
type SnapshotItem struct {
	Track        model.ResolvedTrack
	EpisodeIndex int
	EpisodeTitle string
}

// ActiveSnapshot loads the playlist's live snapshot in stored order. A nil,
// empty result means no usable snapshot exists and the caller should run the
// resolution pipeline.
func (d *Database) ActiveSnapshot(ctx context.Context, playlistID string) ([]SnapshotItem, error) {
	p, err := d.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if !p.HasSnapshot() {
		return nil, nil
	}

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, `
		SELECT t.id, t.feed_guid, t.item_guid, t.title, t.artist, t.audio_url,
		       t.duration_seconds, t.artwork_url, t.published_at,
		       s.episode_index, s.episode_title
		FROM snapshot_items s
		JOIN tracks t ON t.id = s.track_id
		WHERE s.snapshot_id = ?
		ORDER BY s.position`, p.ActiveSnapshot)
	observe("active_snapshot", start, err)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot for playlist %s: %w", playlistID, err)
	}
	defer rows.Close()

	items := []SnapshotItem{}
	for rows.Next() {
		var item SnapshotItem
		var published int64
		err := rows.Scan(&item.Track.ID, &item.Track.FeedGUID, &item.Track.ItemGUID,
			&item.Track.Title, &item.Track.Artist, &item.Track.AudioURL,
			&item.Track.DurationSeconds, &item.Track.ArtworkURL, &published,
			&item.EpisodeIndex, &item.EpisodeTitle)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if published > 0 {
			item.Track.PublishedAt = time.Unix(published, 0).UTC()
		}
		item.Track.Provenance = model.ProvenancePersisted
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReplaceSnapshot replaces a playlist's snapshot wholesale with the given
// ordered items. The new snapshot is written under a fresh id and the active
// pointer repointed in the same transaction, so a concurrent reader sees
// either the complete old snapshot or the complete new one, never a partial
// write. Superseded rows are deleted after the pointer moves.
func (d *Database) ReplaceSnapshot(ctx context.Context, playlistID string, items []SnapshotItem) error {
	lock := d.snapshotLock(playlistID)
	lock.Lock()
	defer lock.Unlock()

	snapshotID := uuid.NewString()
	start := time.Now()

	err := d.replaceSnapshotTx(ctx, playlistID, snapshotID, items)
	observe("replace_snapshot", start, err)
	if err != nil {
		metrics.SnapshotSwapsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.SnapshotSwapsTotal.WithLabelValues("success").Inc()
	logging.Debug("playlist %s snapshot replaced: %s (%d items)", playlistID, snapshotID, len(items))
	return nil
}

func (d *Database) replaceSnapshotTx(ctx context.Context, playlistID, snapshotID string, items []SnapshotItem) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot replace: %w", err)
	}
	defer tx.Rollback()

	// Tracks first: a snapshot row must never point at a missing track.
	trackStmt, err := tx.PrepareContext(ctx, `
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
		return fmt.Errorf("preparing snapshot track upsert: %w", err)
	}
	defer trackStmt.Close()

	itemStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_items (snapshot_id, playlist_id, position, track_id, episode_index, episode_title)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot item insert: %w", err)
	}
	defer itemStmt.Close()

	for pos, item := range items {
		t := item.Track
		if _, err := trackStmt.ExecContext(ctx, t.ID, t.FeedGUID, t.ItemGUID, t.Title,
			t.Artist, t.AudioURL, t.DurationSeconds, t.ArtworkURL, t.PublishedAt.Unix()); err != nil {
			return fmt.Errorf("upserting snapshot track %s: %w", t.ID, err)
		}
		if _, err := itemStmt.ExecContext(ctx, snapshotID, playlistID, pos, t.ID,
			item.EpisodeIndex, item.EpisodeTitle); err != nil {
			return fmt.Errorf("inserting snapshot item %d: %w", pos, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE playlists SET active_snapshot = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?`, snapshotID, playlistID)
	if err != nil {
		return fmt.Errorf("repointing active snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlaylistNotFound
	}

	// The pointer has moved; drop the superseded snapshot's rows.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM snapshot_items WHERE playlist_id = ? AND snapshot_id != ?`,
		playlistID, snapshotID); err != nil {
		return fmt.Errorf("pruning superseded snapshots: %w", err)
	}

	return tx.Commit()
}
