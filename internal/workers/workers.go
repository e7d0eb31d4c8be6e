// Package workers sizes worker pools for the resolution pipeline.
package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns the worker count for a task with the given CPU multiplier,
// capped at limit (0 = no cap). GOMAXPROCS reflects container CPU limits, so
// the result respects cgroup quotas. RESOLVER_WORKERS overrides the
// calculation entirely.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("RESOLVER_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForIO returns the worker count for I/O-bound work (2 per CPU). The external
// discovery tier is pure network I/O, so this is the orchestrator default.
func ForIO(limit int) int {
	return Count(2.0, limit)
}
