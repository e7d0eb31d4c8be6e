package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrPlaylistNotFound is returned when a playlist id is not registered.
var ErrPlaylistNotFound = errors.New("playlist not found")

// CreatePlaylist registers a playlist.
func (d *Database) CreatePlaylist(ctx context.Context, p Playlist) error {
	start := time.Now()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO playlists (id, title, feed_url, artwork_url, link)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.FeedURL, p.ArtworkURL, p.Link)
	observe("create_playlist", start, err)
	if err != nil {
		return fmt.Errorf("creating playlist %s: %w", p.ID, err)
	}
	return nil
}

// GetPlaylist fetches one registered playlist.
func (d *Database) GetPlaylist(ctx context.Context, id string) (Playlist, error) {
	start := time.Now()
	row := d.db.QueryRowContext(ctx, `
		SELECT id, title, feed_url, artwork_url, link, active_snapshot, created_at, updated_at
		FROM playlists WHERE id = ?`, id)

	p, err := scanPlaylist(row)
	observe("get_playlist", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return Playlist{}, ErrPlaylistNotFound
	}
	if err != nil {
		return Playlist{}, fmt.Errorf("fetching playlist %s: %w", id, err)
	}
	return p, nil
}

// ListPlaylists returns all registered playlists ordered by title.
func (d *Database) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, title, feed_url, artwork_url, link, active_snapshot, created_at, updated_at
		FROM playlists ORDER BY title COLLATE NOCASE`)
	observe("list_playlists", start, err)
	if err != nil {
		return nil, fmt.Errorf("listing playlists: %w", err)
	}
	defer rows.Close()

	playlists := []Playlist{}
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning playlist row: %w", err)
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// UpdatePlaylistMeta stores the metadata observed in the latest parse of the
// playlist's source document.
func (d *Database) UpdatePlaylistMeta(ctx context.Context, id, title, artworkURL, link string) error {
	start := time.Now()
	_, err := d.db.ExecContext(ctx, `
		UPDATE playlists
		SET title = CASE WHEN ? != '' THEN ? ELSE title END,
		    artwork_url = ?,
		    link = ?,
		    updated_at = strftime('%s', 'now')
		WHERE id = ?`,
		title, title, artworkURL, link, id)
	observe("update_playlist_meta", start, err)
	if err != nil {
		return fmt.Errorf("updating playlist %s metadata: %w", id, err)
	}
	return nil
}

// DeletePlaylist removes a playlist and all of its snapshot rows.
func (d *Database) DeletePlaylist(ctx context.Context, id string) error {
	lock := d.snapshotLock(id)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		observe("delete_playlist", start, err)
		return fmt.Errorf("beginning playlist delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		observe("delete_playlist", start, err)
		return fmt.Errorf("deleting playlist %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		observe("delete_playlist", start, ErrPlaylistNotFound)
		return ErrPlaylistNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_items WHERE playlist_id = ?`, id); err != nil {
		observe("delete_playlist", start, err)
		return fmt.Errorf("deleting playlist %s snapshots: %w", id, err)
	}

	err = tx.Commit()
	observe("delete_playlist", start, err)
	return err
}

func scanPlaylist(row rowScanner) (Playlist, error) {
	var p Playlist
	var created, updated int64
	err := row.Scan(&p.ID, &p.Title, &p.FeedURL, &p.ArtworkURL, &p.Link,
		&p.ActiveSnapshot, &created, &updated)
	if err != nil {
		return Playlist{}, err
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return p, nil
}
