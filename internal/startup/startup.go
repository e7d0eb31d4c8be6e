// Package startup loads and validates service configuration from the
// environment and exposes build information injected at link time.
package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Config holds all application configuration
type Config struct {
	Port        string
	DatabaseDir string

	// Discovery service
	IndexBaseURL   string
	IndexAPIKey    string
	IndexAPISecret string

	// Resolution pipeline
	CacheTTL          time.Duration
	ChunkSize         int
	CallDelay         time.Duration
	RetryMax          int
	Concurrency       int
	RequestBudget     time.Duration
	FeedFetchTimeout  time.Duration
	MatchItemGUIDOnly bool
	RefreshInterval   time.Duration

	LogHealthChecks bool
	MetricsEnabled  bool

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseDir:       getEnv("DATABASE_DIR", "/database"),
		IndexBaseURL:      getEnv("INDEX_API_URL", "https://api.podcastindex.org/api/1.0"),
		IndexAPIKey:       getEnv("INDEX_API_KEY", ""),
		IndexAPISecret:    getEnv("INDEX_API_SECRET", ""),
		CacheTTL:          getEnvDuration("CACHE_TTL", 30*time.Minute),
		ChunkSize:         getEnvInt("RESOLVE_CHUNK_SIZE", 25),
		CallDelay:         getEnvDuration("RESOLVE_CALL_DELAY", 250*time.Millisecond),
		RetryMax:          getEnvInt("RESOLVE_RETRY_MAX", 3),
		Concurrency:       getEnvInt("RESOLVE_CONCURRENCY", workers.ForIO(8)),
		RequestBudget:     getEnvDuration("REQUEST_BUDGET", 45*time.Second),
		FeedFetchTimeout:  getEnvDuration("FEED_FETCH_TIMEOUT", 15*time.Second),
		MatchItemGUIDOnly: getEnvBool("MATCH_ITEM_GUID_ONLY", false),
		RefreshInterval:   getEnvDuration("REFRESH_INTERVAL", 6*time.Hour),
		LogHealthChecks:   getEnvBool("LOG_HEALTH_CHECKS", false),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
	}

	logging.Info("  PORT:                 %s", cfg.Port)
	logging.Info("  DATABASE_DIR:         %s", cfg.DatabaseDir)
	logging.Info("  INDEX_API_URL:        %s", cfg.IndexBaseURL)
	logging.Info("  INDEX_API_KEY:        %s", maskSecret(cfg.IndexAPIKey))
	logging.Info("  CACHE_TTL:            %s", cfg.CacheTTL)
	logging.Info("  RESOLVE_CHUNK_SIZE:   %d", cfg.ChunkSize)
	logging.Info("  RESOLVE_CALL_DELAY:   %s", cfg.CallDelay)
	logging.Info("  RESOLVE_RETRY_MAX:    %d", cfg.RetryMax)
	logging.Info("  RESOLVE_CONCURRENCY:  %d", cfg.Concurrency)
	logging.Info("  REQUEST_BUDGET:       %s", cfg.RequestBudget)
	logging.Info("  MATCH_ITEM_GUID_ONLY: %v", cfg.MatchItemGUIDOnly)
	logging.Info("  REFRESH_INTERVAL:     %s", cfg.RefreshInterval)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())

	if cfg.IndexAPIKey == "" || cfg.IndexAPISecret == "" {
		logging.Warn("  INDEX_API_KEY/SECRET not set; external discovery calls will fail per-item")
	}

	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("RESOLVE_CHUNK_SIZE must be at least 1, got %d", cfg.ChunkSize)
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("RESOLVE_CONCURRENCY must be at least 1, got %d", cfg.Concurrency)
	}

	dir, err := filepath.Abs(cfg.DatabaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	cfg.DatabaseDir = dir
	if err := ensureDirectory(dir); err != nil {
		return nil, fmt.Errorf("database directory unusable: %w", err)
	}
	cfg.DatabasePath = filepath.Join(dir, "playlists.db")
	logging.Info("  Database path:        %s", cfg.DatabasePath)

	return cfg, nil
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func ensureDirectory(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", dir)
	}
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
