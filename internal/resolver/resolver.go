package resolver

import (
	"context"
	"time"

	"playlist-resolver/internal/discovery"
	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/metrics"
	"playlist-resolver/internal/model"
	"playlist-resolver/internal/retry"
)

// Store is the persisted track index consulted in tier 1 and written back to
// after external resolution.
type Store interface {
	TracksByKeys(ctx context.Context, keys []model.RefKey, itemGUIDOnly bool) (map[model.RefKey]model.ResolvedTrack, error)
	UpsertTracks(ctx context.Context, tracks []model.ResolvedTrack) error
}

// Cache is the ephemeral track cache consulted in tier 2.
type Cache interface {
	Get(key model.RefKey) (model.ResolvedTrack, bool)
	Set(track model.ResolvedTrack)
}

// Index is the external discovery service, tier 3 - the only tier allowed to
// make network calls.
type Index interface {
	FeedByGUID(ctx context.Context, feedGUID string) (*discovery.Feed, error)
	ItemsByFeedID(ctx context.Context, feedID int64) ([]discovery.Item, error)
}

// Config tunes a resolver. Zero values fall back to the defaults below,
// except CallDelay where zero disables pacing and a negative value selects
// the default.
type Config struct {
	// ChunkSize bounds how many keys one external pass works on at a time.
	ChunkSize int
	// CallDelay is the minimum spacing between external calls.
	CallDelay time.Duration
	// RetryMax is the attempt cap per external call.
	RetryMax int
	// Concurrency caps in-flight external calls within a chunk.
	Concurrency int
	// ItemGUIDOnly enables the legacy store matching mode.
	ItemGUIDOnly bool
	// WriteBackTimeout bounds the asynchronous store write-back.
	WriteBackTimeout time.Duration
}

const (
	defaultChunkSize        = 25
	defaultCallDelay        = 250 * time.Millisecond
	defaultRetryMax         = 3
	defaultConcurrency      = 5
	defaultWriteBackTimeout = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.CallDelay < 0 {
		c.CallDelay = defaultCallDelay
	}
	if c.RetryMax <= 0 {
		c.RetryMax = defaultRetryMax
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.WriteBackTimeout <= 0 {
		c.WriteBackTimeout = defaultWriteBackTimeout
	}
	return c
}

// Resolver resolves sets of reference keys through the three tiers.
type Resolver struct {
	store Store
	cache Cache
	index Index
	cfg   Config

	retryCfg retry.Config
}

// New creates a resolver. store, cache, and index may not be nil.
func New(store Store, cache Cache, index Index, cfg Config) *Resolver {
	cfg = cfg.withDefaults()
	return &Resolver{
		store: store,
		cache: cache,
		index: index,
		cfg:   cfg,
		retryCfg: retry.Config{
			MaxAttempts:    cfg.RetryMax,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Jitter:         0.2,
		},
	}
}

// Options modify one resolution pass.
type Options struct {
	// SkipCache bypasses the ephemeral cache tier, forcing keys missing
	// from the store out to discovery. Used for forced refreshes.
	SkipCache bool
}

// Result is the outcome map of one pass plus tier accounting.
type Result struct {
	Outcomes map[model.RefKey]model.Outcome

	StoreHits     int
	CacheHits     int
	ExternalHits  int
	ExternalCalls int
}

// ResolvedCount returns the number of successful outcomes.
func (r *Result) ResolvedCount() int {
	return r.StoreHits + r.CacheHits + r.ExternalHits
}

// ResolveMany resolves every key, returning exactly one outcome per distinct
// key. Item-level failures become unresolved outcomes; the only way this
// fails outright is a caller bug (it does not, today). Keys are deduplicated
// by identity before any lookup.
func (r *Resolver) ResolveMany(ctx context.Context, keys []model.RefKey, opts Options) *Result {
	start := time.Now()
	defer func() {
		metrics.ResolverBatchDuration.Observe(time.Since(start).Seconds())
	}()

	keys = dedupe(keys)
	result := &Result{Outcomes: make(map[model.RefKey]model.Outcome, len(keys))}

	// Tier 1: one batch round trip against the persisted index. A store
	// failure is non-fatal; the affected keys fall through to the later
	// tiers.
	pending := keys
	stored, err := r.store.TracksByKeys(ctx, keys, r.cfg.ItemGUIDOnly)
	if err != nil {
		logging.Warn("persisted store lookup failed, falling through: %v", err)
	} else {
		pending = pending[:0:0]
		for _, key := range keys {
			track, ok := stored[key]
			if !ok {
				pending = append(pending, key)
				continue
			}
			result.Outcomes[key] = model.Resolved(track)
			result.StoreHits++
			metrics.ResolverOutcomesTotal.WithLabelValues("persisted").Inc()
			r.cache.Set(track)
		}
	}

	// Tier 2: ephemeral cache, unless the caller forced a refresh.
	if !opts.SkipCache {
		remaining := pending[:0:0]
		for _, key := range pending {
			track, ok := r.cache.Get(key)
			if !ok {
				remaining = append(remaining, key)
				continue
			}
			track.Provenance = model.ProvenanceCache
			result.Outcomes[key] = model.Resolved(track)
			result.CacheHits++
			metrics.ResolverOutcomesTotal.WithLabelValues("cache").Inc()
		}
		pending = remaining
	}

	// Tier 3: external discovery, chunked and rate limited.
	if len(pending) > 0 {
		external := r.resolveExternal(ctx, pending, result)

		var fresh []model.ResolvedTrack
		for key, outcome := range external {
			result.Outcomes[key] = outcome
			if outcome.OK() {
				result.ExternalHits++
				metrics.ResolverOutcomesTotal.WithLabelValues("external").Inc()
				r.cache.Set(*outcome.Track)
				fresh = append(fresh, *outcome.Track)
			} else {
				metrics.ResolverOutcomesTotal.WithLabelValues(string(outcome.Reason)).Inc()
			}
		}

		// Durable write-back happens off the request path.
		if len(fresh) > 0 {
			go r.writeBack(fresh)
		}
	}

	// Completeness: one outcome per key no matter what happened above.
	for _, key := range keys {
		if _, ok := result.Outcomes[key]; !ok {
			result.Outcomes[key] = model.Unresolved(unresolvedReason(ctx))
		}
	}

	return result
}

// writeBack persists freshly resolved tracks outside the request path.
func (r *Resolver) writeBack(tracks []model.ResolvedTrack) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteBackTimeout)
	defer cancel()

	if err := r.store.UpsertTracks(ctx, tracks); err != nil {
		metrics.ResolverWriteBackErrors.Inc()
		logging.Warn("write-back of %d resolved tracks failed: %v", len(tracks), err)
	}
}

// unresolvedReason picks the reason for keys that never got an outcome: a
// dead context means the deadline ran out, anything else was an upstream
// failure.
func unresolvedReason(ctx context.Context) model.Reason {
	if ctx.Err() != nil {
		return model.ReasonTimeout
	}
	return model.ReasonAPIError
}

func dedupe(keys []model.RefKey) []model.RefKey {
	seen := make(map[model.RefKey]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
