// Package worker provides background scheduling for conversation indexing.
//
// The Worker type periodically queries the message store for contexts with
// enough recent activity to be worth indexing and hands them to the
// rag.Service, up to a configurable batch size per cycle. A processing set
// guarantees that no context is indexed by two operations at once, and
// cycles that run long are skipped rather than stacked.
//
// Per-context work runs on a shared goroutine pool and is retried with
// exponential backoff; failures in one context never affect the others in
// the same cycle.
package worker
