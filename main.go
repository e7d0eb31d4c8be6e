package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"playlist-resolver/internal/cache"
	"playlist-resolver/internal/database"
	"playlist-resolver/internal/discovery"
	"playlist-resolver/internal/feed"
	"playlist-resolver/internal/handlers"
	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/memory"
	"playlist-resolver/internal/middleware"
	"playlist-resolver/internal/refresher"
	"playlist-resolver/internal/resolver"
	"playlist-resolver/internal/startup"
)

func main() {
	startTime := time.Now()
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	logging.Info("Database ready in %s", time.Since(dbStart).Round(time.Millisecond))

	trackCache := cache.New(config.CacheTTL)
	index := discovery.NewClient(config.IndexBaseURL, config.IndexAPIKey, config.IndexAPISecret)

	res := resolver.New(db, trackCache, index, resolver.Config{
		ChunkSize:    config.ChunkSize,
		CallDelay:    config.CallDelay,
		RetryMax:     config.RetryMax,
		Concurrency:  config.Concurrency,
		ItemGUIDOnly: config.MatchItemGUIDOnly,
	})

	fetcher := feed.NewFetcher(config.FeedFetchTimeout)
	h := handlers.New(db, trackCache, res, fetcher, config)

	var sweeper *refresher.Refresher
	if config.RefreshInterval > 0 {
		sweeper = refresher.New(db, h.RefreshNow, config.RefreshInterval, 2*config.RequestBudget)
		go sweeper.Start()
	}

	router := setupRouter(h, config)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(loggedHandler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.RequestBudget + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go handleShutdown(srv, db, sweeper)

	logging.Info("Listening on :%s (started in %s)", config.Port, time.Since(startTime).Round(time.Millisecond))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Probes and build info
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	if config.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/playlists", h.ListPlaylists).Methods("GET")
	api.HandleFunc("/playlists", h.CreatePlaylist).Methods("POST")
	api.HandleFunc("/playlists/{id}", h.GetPlaylist).Methods("GET")
	api.HandleFunc("/playlists/{id}", h.DeletePlaylist).Methods("DELETE")
	api.HandleFunc("/playlists/{id}/refresh", h.RefreshPlaylist).Methods("POST")
	api.HandleFunc("/tracks/{id}", h.GetTrack).Methods("GET")

	return r
}

func handleShutdown(srv *http.Server, db *database.Database, sweeper *refresher.Refresher) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logging.Info("Received %s, shutting down", sig)

	if sweeper != nil {
		sweeper.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("HTTP server shutdown: %v", err)
	}
	if err := db.Close(); err != nil {
		logging.Error("Database close: %v", err)
	}
}
