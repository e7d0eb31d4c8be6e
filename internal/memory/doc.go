// Package memory configures the Go soft memory limit from container limits
// so the resolver behaves under Kubernetes memory constraints.
package memory
