package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"playlist-resolver/internal/discovery"
	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/metrics"
	"playlist-resolver/internal/model"
	"playlist-resolver/internal/retry"
)

// resolveExternal runs the discovery tier over the given keys: chunked,
// concurrency-capped, and paced so calls stay under the service's rate
// limits. Keys left without an outcome when the context dies are handled by
// the caller.
func (r *Resolver) resolveExternal(ctx context.Context, keys []model.RefKey, result *Result) map[model.RefKey]model.Outcome {
	memo := newFeedMemo()
	pacer := newPacer(r.cfg.CallDelay)

	out := make(map[model.RefKey]model.Outcome, len(keys))
	var mu sync.Mutex

	for _, chunk := range chunkKeys(keys, r.cfg.ChunkSize) {
		if ctx.Err() != nil {
			break
		}

		var g errgroup.Group
		g.SetLimit(r.cfg.Concurrency)
		for _, key := range chunk {
			g.Go(func() error {
				outcome := r.resolveKey(ctx, key, memo, pacer)
				mu.Lock()
				out[key] = outcome
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
	}

	result.ExternalCalls = memo.calls()
	return out
}

// resolveKey resolves one key against discovery. The feed lookup is shared
// through the memo so each distinct feedGuid costs at most one feed fetch and
// one items fetch per pass.
func (r *Resolver) resolveKey(ctx context.Context, key model.RefKey, memo *feedMemo, pacer *pacer) model.Outcome {
	entry := memo.lookup(key.FeedGUID, func(e *feedEntry) {
		r.fetchFeed(ctx, key.FeedGUID, e, pacer)
	})

	if entry.reason != "" {
		return model.Unresolved(entry.reason)
	}

	item, ok := entry.items[key.ItemGUID]
	if !ok {
		return model.Unresolved(model.ReasonItemNotFound)
	}
	return trackFromItem(key, entry.feed, item)
}

// fetchFeed populates a memo entry: feed metadata first, then the feed's
// items keyed by guid. Failures land in e.reason and apply to every key on
// the feed.
func (r *Resolver) fetchFeed(ctx context.Context, feedGUID string, e *feedEntry, pacer *pacer) {
	feed, err := r.callFeed(ctx, feedGUID, pacer)
	e.externalCalls++
	if err != nil {
		e.reason = feedFailureReason(ctx, err)
		if e.reason != model.ReasonNotIndexed {
			logging.Warn("feed lookup %s failed: %v", feedGUID, err)
		}
		return
	}

	items, err := r.callItems(ctx, feed.ID, pacer)
	e.externalCalls++
	if err != nil {
		e.reason = feedFailureReason(ctx, err)
		logging.Warn("items lookup for feed %s (id %d) failed: %v", feedGUID, feed.ID, err)
		return
	}

	e.feed = feed
	e.items = make(map[string]discovery.Item, len(items))
	for _, item := range items {
		if item.GUID == "" {
			continue
		}
		if _, dup := e.items[item.GUID]; dup {
			continue
		}
		e.items[item.GUID] = item
	}
}

func (r *Resolver) callFeed(ctx context.Context, feedGUID string, pacer *pacer) (*discovery.Feed, error) {
	var feed *discovery.Feed
	err := r.paced(ctx, pacer, func(ctx context.Context) error {
		var err error
		feed, err = r.index.FeedByGUID(ctx, feedGUID)
		return err
	})
	return feed, err
}

func (r *Resolver) callItems(ctx context.Context, feedID int64, pacer *pacer) ([]discovery.Item, error) {
	var items []discovery.Item
	err := r.paced(ctx, pacer, func(ctx context.Context) error {
		var err error
		items, err = r.index.ItemsByFeedID(ctx, feedID)
		return err
	})
	return items, err
}

// paced runs one external call under the pacer and the retry policy. Each
// attempt waits its turn, so retries are rate limited like first attempts.
func (r *Resolver) paced(ctx context.Context, pacer *pacer, fn func(context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, r.retryCfg, discovery.Retryable, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.DiscoveryRetriesTotal.Inc()
		}
		if err := pacer.wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// feedFailureReason classifies a discovery failure for every key on a feed.
func feedFailureReason(ctx context.Context, err error) model.Reason {
	switch {
	case errors.Is(err, discovery.ErrFeedNotIndexed):
		return model.ReasonNotIndexed
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		return model.ReasonTimeout
	default:
		return model.ReasonAPIError
	}
}

// feedMemo deduplicates feed lookups within one resolution pass.
type feedMemo struct {
	mu      sync.Mutex
	entries map[string]*feedEntry
}

type feedEntry struct {
	once sync.Once

	feed          *discovery.Feed
	items         map[string]discovery.Item
	reason        model.Reason
	externalCalls int
}

func newFeedMemo() *feedMemo {
	return &feedMemo{entries: make(map[string]*feedEntry)}
}

// lookup returns the entry for feedGUID, running fetch exactly once per feed
// even under concurrent callers.
func (m *feedMemo) lookup(feedGUID string, fetch func(*feedEntry)) *feedEntry {
	m.mu.Lock()
	entry, ok := m.entries[feedGUID]
	if !ok {
		entry = &feedEntry{}
		m.entries[feedGUID] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() { fetch(entry) })
	return entry
}

// calls sums the external calls made through the memo.
func (m *feedMemo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, e := range m.entries {
		total += e.externalCalls
	}
	return total
}

// pacer spaces external calls by a fixed delay across all goroutines.
type pacer struct {
	mu    sync.Mutex
	next  time.Time
	delay time.Duration
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{delay: delay}
}

// wait blocks until this caller's slot, or until ctx is done.
func (p *pacer) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.delay)
	p.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// chunkKeys splits keys into runs of at most size, preserving order.
func chunkKeys(keys []model.RefKey, size int) [][]model.RefKey {
	if size <= 0 || len(keys) <= size {
		if len(keys) == 0 {
			return nil
		}
		return [][]model.RefKey{keys}
	}
	chunks := make([][]model.RefKey, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}
