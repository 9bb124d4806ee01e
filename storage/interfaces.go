package storage

import (
	"context"
	"time"

	"github.com/poiesic/recall/core"
)

// ChunkStore persists embedding records and supports per-context similarity
// search, index and stat queries, and deletion by context.
// Implementations must be thread-safe and support concurrent access.
type ChunkStore interface {
	// Create appends an embedding record. Records are never rewritten; the
	// store rejects nothing beyond validation, so callers own index
	// allocation.
	Create(ctx context.Context, record *core.EmbeddingRecord) error

	// FindSimilar returns the records in the context whose vectors are most
	// similar to the query vector. Results have similarity >= minSimilarity,
	// up to limit entries, ordered by similarity descending; ties are broken
	// by higher chunk index (more recent first).
	FindSimilar(ctx context.Context, contextID string, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error)

	// LatestChunkIndex returns the highest stored chunk index for the
	// context, or 0 when the context has no records.
	LatestChunkIndex(ctx context.Context, contextID string) (int64, error)

	// Stats returns chunk count, latest chunk index, and latest covered
	// message timestamp for the context. A context with no records yields
	// zero values, not an error.
	Stats(ctx context.Context, contextID string) (*core.ChunkStats, error)

	// HasEmbeddings reports whether the context has any stored records.
	HasEmbeddings(ctx context.Context, contextID string) (bool, error)

	// DeleteByContext removes all records for the context and returns the
	// number deleted. The stored index high-water mark is removed with them,
	// so indices restart at 1 after a full delete.
	DeleteByContext(ctx context.Context, contextID string) (int, error)

	// Close closes the store and releases resources.
	Close() error
}

// MessageStore provides chronological access to conversation messages and
// the candidate query used by the background worker. It doubles as the
// history provider for the indexing service.
type MessageStore interface {
	// AddMessages appends messages to the store. Messages with Id 0 receive
	// a deterministic content-based ID. InsertedAt is set if zero.
	// Returns the messages with IDs and timestamps populated.
	AddMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error)

	// GetMessages returns up to limit messages of the context in
	// chronological order, skipping offset messages from the start.
	GetMessages(ctx context.Context, contextID string, limit, offset int) ([]*core.Message, error)

	// GetRecentMessages returns the most recent limit messages of the
	// context, in chronological order.
	GetRecentMessages(ctx context.Context, contextID string, limit int) ([]*core.Message, error)

	// GetMessagesByID resolves messages by ID. Missing IDs are skipped, not
	// an error.
	GetMessagesByID(ctx context.Context, ids ...core.ID) ([]*core.Message, error)

	// CandidateContexts returns the IDs of contexts with at least threshold
	// non-empty messages inside the recency window, ordered by most recent
	// activity first, capped at maxCandidates.
	CandidateContexts(ctx context.Context, threshold, maxCandidates int, window time.Duration) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}
