// Package badger provides BadgerDB-backed implementations of the storage
// interfaces. Chunk records are keyed by context and big-endian chunk index,
// so per-context scans yield chunks in index order and the latest index is a
// single reverse seek. Messages carry a chronological per-context index for
// paged history reads and the worker's candidate query.
package badger
