package startup

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_DIR", dir)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %s, want 30m", cfg.CacheTTL)
	}
	if cfg.ChunkSize != 25 {
		t.Errorf("ChunkSize = %d, want 25", cfg.ChunkSize)
	}
	if cfg.RetryMax != 3 {
		t.Errorf("RetryMax = %d, want 3", cfg.RetryMax)
	}
	if cfg.MatchItemGUIDOnly {
		t.Error("MatchItemGUIDOnly should default to false")
	}
	if want := filepath.Join(dir, "playlists.db"); cfg.DatabasePath != want {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, want)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_DIR", t.TempDir())
	t.Setenv("RESOLVE_CHUNK_SIZE", "10")
	t.Setenv("RESOLVE_CALL_DELAY", "50ms")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("MATCH_ITEM_GUID_ONLY", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ChunkSize != 10 {
		t.Errorf("ChunkSize = %d, want 10", cfg.ChunkSize)
	}
	if cfg.CallDelay != 50*time.Millisecond {
		t.Errorf("CallDelay = %s, want 50ms", cfg.CallDelay)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %s, want 5m", cfg.CacheTTL)
	}
	if !cfg.MatchItemGUIDOnly {
		t.Error("MatchItemGUIDOnly should be true")
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	t.Setenv("DATABASE_DIR", t.TempDir())
	t.Setenv("RESOLVE_CHUNK_SIZE", "0")

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig should reject RESOLVE_CHUNK_SIZE=0")
	}
}

func TestLoadConfigBadDurationFallsBack(t *testing.T) {
	t.Setenv("DATABASE_DIR", t.TempDir())
	t.Setenv("CACHE_TTL", "not-a-duration")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %s, want default 30m", cfg.CacheTTL)
	}
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "(not set)"},
		{"abc", "****"},
		{"abcdefgh", "abcd****"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
