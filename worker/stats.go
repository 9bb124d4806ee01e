package worker

import "time"

// Stats holds the worker's cumulative counters. GetStats returns a copy;
// the worker's own cycle execution is the only mutator.
type Stats struct {
	// TotalRuns counts executed cycles, successful or failed. Skipped
	// cycles (previous cycle still running) are not counted.
	TotalRuns int64

	// SuccessfulRuns counts cycles that completed without a cycle-level
	// error. Per-context failures inside a cycle do not fail the cycle.
	SuccessfulRuns int64

	// FailedRuns counts cycles aborted by a cycle-level error, e.g. a
	// failed candidate query.
	FailedRuns int64

	// ContextsProcessed counts per-context indexing attempts across all
	// cycles, including failed attempts.
	ContextsProcessed int64

	// MessagesEmbedded counts messages successfully embedded across all
	// cycles.
	MessagesEmbedded int64

	// LastRun is when the most recent cycle finished.
	LastRun time.Time

	// LastError describes the most recent cycle-level error, empty if none.
	LastError string

	// Running reports whether the scheduler is armed.
	Running bool
}
