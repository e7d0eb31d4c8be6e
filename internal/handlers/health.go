package handlers

import (
	"net/http"
	"runtime"
	"time"

	"playlist-resolver/internal/logging"
	"playlist-resolver/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Store summary
	Tracks    int `json:"tracks"`
	Playlists int `json:"playlists"`
	Snapshots int `json:"snapshots"`

	CacheEntries int `json:"cacheEntries"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports service health: a reachable database is healthy, an
// unreachable one is degraded with a 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		CacheEntries: h.cache.Len(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		logging.Warn("health check database ping: %v", err)
		response.Status = statusDegraded
		code = http.StatusServiceUnavailable
	} else if stats, err := h.db.GetStats(r.Context()); err == nil {
		response.Tracks = stats.Tracks
		response.Playlists = stats.Playlists
		response.Snapshots = stats.Snapshots
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, response)
}

// LivenessCheck reports that the process is up.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, "alive")
}

// ReadinessCheck reports whether the service can serve traffic.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSONError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSONStatus(w, "ready")
}
