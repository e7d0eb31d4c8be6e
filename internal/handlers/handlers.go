package handlers

import (
	"time"

	"playlist-resolver/internal/cache"
	"playlist-resolver/internal/database"
	"playlist-resolver/internal/feed"
	"playlist-resolver/internal/resolver"
	"playlist-resolver/internal/startup"
)

type Handlers struct {
	db        *database.Database
	cache     *cache.TrackCache
	resolver  *resolver.Resolver
	fetcher   *feed.Fetcher
	config    *startup.Config
	startTime time.Time
}

func New(db *database.Database, trackCache *cache.TrackCache, res *resolver.Resolver, fetcher *feed.Fetcher, config *startup.Config) *Handlers {
	return &Handlers{
		db:        db,
		cache:     trackCache,
		resolver:  res,
		fetcher:   fetcher,
		config:    config,
		startTime: time.Now(),
	}
}
