// Package taskrunner implements the priority task sink, pending-requests
// registry and named-mutex storage that back the prefetch engine and the
// versioned layer client's per-resource serialisation.
package taskrunner

// Priority orders tasks within Sink; higher values run first. Within a
// priority level, tasks run in submission order (FIFO).
type Priority int

const (
	Low    Priority = 100
	Normal Priority = 500
	High   Priority = 1000
)
