// Package refresher re-resolves registered playlists on a schedule so stored
// snapshots track their source documents without waiting for a request.
package refresher

import (
	"context"
	"sync"
	"time"

	"playlist-resolver/internal/database"
	"playlist-resolver/internal/logging"
)

// RefreshFunc runs one forced resolution pass for a playlist.
type RefreshFunc func(ctx context.Context, p database.Playlist) error

// Status is a point-in-time view of the refresher for diagnostics.
type Status struct {
	Refreshing bool      `json:"refreshing"`
	LastSweep  time.Time `json:"lastSweep,omitempty"`
	LastCount  int       `json:"lastCount"`
	LastErrors int       `json:"lastErrors"`
}

// Refresher sweeps every registered playlist at a fixed interval, running
// one refresh at a time so a slow feed cannot pile up concurrent passes.
type Refresher struct {
	db       *database.Database
	refresh  RefreshFunc
	interval time.Duration
	budget   time.Duration
	stopChan chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	status Status
}

// New creates a refresher. budget bounds each individual playlist pass.
func New(db *database.Database, refresh RefreshFunc, interval, budget time.Duration) *Refresher {
	return &Refresher{
		db:       db,
		refresh:  refresh,
		interval: interval,
		budget:   budget,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. The first sweep runs after
// one full interval; startup traffic warms snapshots on its own.
func (r *Refresher) Start() {
	logging.Info("Snapshot refresher running every %s", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// Stop terminates the sweep loop. Safe to call more than once.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Status returns the current refresher state.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Refresher) sweep() {
	r.mu.Lock()
	if r.status.Refreshing {
		r.mu.Unlock()
		return
	}
	r.status.Refreshing = true
	r.mu.Unlock()

	start := time.Now()
	count, errCount := r.sweepOnce()

	r.mu.Lock()
	r.status.Refreshing = false
	r.status.LastSweep = start
	r.status.LastCount = count
	r.status.LastErrors = errCount
	r.mu.Unlock()

	if count > 0 {
		logging.Info("Refresh sweep finished: %d playlists, %d failures, %s",
			count, errCount, time.Since(start).Round(time.Millisecond))
	}
}

func (r *Refresher) sweepOnce() (count, errCount int) {
	listCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	playlists, err := r.db.ListPlaylists(listCtx)
	cancel()
	if err != nil {
		logging.Error("refresh sweep: listing playlists: %v", err)
		return 0, 0
	}

	for _, p := range playlists {
		select {
		case <-r.stopChan:
			return count, errCount
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.budget)
		err := r.refresh(ctx, p)
		cancel()

		count++
		if err != nil {
			errCount++
			logging.Warn("refresh sweep: %v", err)
		}
	}
	return count, errCount
}
