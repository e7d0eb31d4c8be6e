package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages all durable storage for the playlist resolver.
type Database struct {
	db     *sql.DB
	dbPath string

	// mu guards snapLocks
	mu sync.Mutex
	// snapLocks serializes snapshot writers per playlist id
	snapLocks map[string]*sync.Mutex
}

// New opens (and if necessary creates) the database at dbPath. The parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// WAL mode plus busy_timeout keeps concurrent readers from tripping
	// over snapshot writers.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:        db,
		dbPath:    dbPath,
		snapLocks: make(map[string]*sync.Mutex),
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- Persisted track index: the canonical record of every remote item
	-- ever resolved, keyed by its (feedGuid, itemGuid) identity.
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		feed_guid TEXT NOT NULL,
		item_guid TEXT NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT '',
		audio_url TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		artwork_url TEXT NOT NULL DEFAULT '',
		published_at INTEGER NOT NULL DEFAULT 0,
		resolved_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(feed_guid, item_guid)
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_item_guid ON tracks(item_guid);

	-- Playlist registry: which curated playlists this deployment serves.
	CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		feed_url TEXT NOT NULL,
		artwork_url TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		active_snapshot TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Snapshot items: ordered track ids plus episode assignment for one
	-- fully resolved pass of a playlist. Only the rows belonging to a
	-- playlist's active_snapshot are live; superseded rows are removed
	-- after the pointer moves.
	CREATE TABLE IF NOT EXISTS snapshot_items (
		snapshot_id TEXT NOT NULL,
		playlist_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		track_id TEXT NOT NULL,
		episode_index INTEGER NOT NULL DEFAULT -1,
		episode_title TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (snapshot_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_items_playlist ON snapshot_items(playlist_id);
	`

	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(initCtx, schema)
	return err
}

// Close closes the underlying database.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping verifies the store is reachable. Used by the health endpoint to tell
// a degraded service from a healthy one.
func (d *Database) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(pingCtx)
}

// Stats summarizes store contents for diagnostics.
type Stats struct {
	Tracks    int `json:"tracks"`
	Playlists int `json:"playlists"`
	Snapshots int `json:"snapshots"`
}

// GetStats returns row counts for the health endpoint.
func (d *Database) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	row := d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tracks),
			(SELECT COUNT(*) FROM playlists),
			(SELECT COUNT(DISTINCT snapshot_id) FROM snapshot_items)`)
	if err := row.Scan(&s.Tracks, &s.Playlists, &s.Snapshots); err != nil {
		return Stats{}, fmt.Errorf("reading store stats: %w", err)
	}
	return s, nil
}

// snapshotLock returns the mutex serializing snapshot writes for a playlist.
func (d *Database) snapshotLock(playlistID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.snapLocks[playlistID]
	if !ok {
		lock = &sync.Mutex{}
		d.snapLocks[playlistID] = lock
	}
	return lock
}

// observe records query metrics the way every store operation reports them.
func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
