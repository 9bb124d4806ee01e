package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ContextType tags a conversation context by its kind.
type ContextType int

const (
	// ContextTypeDirect represents a one-on-one conversation.
	ContextTypeDirect ContextType = iota + 1
	// ContextTypeGroup represents a group conversation.
	ContextTypeGroup
)

// Message represents a single message in a conversation context.
// Messages are immutable once created; this core references them but never
// rewrites them. Content may be empty (media-only messages), in which case
// the message is excluded from indexing.
type Message struct {
	Id          ID
	ContextID   string
	Sender      string
	Content     string
	ContextType ContextType
	Timestamp   time.Time // When the message was originally sent
	InsertedAt  time.Time // When the record was inserted into the store
}

// MessageID derives a deterministic ID for a message from its identifying
// fields. Re-ingesting the same transcript yields the same IDs.
func MessageID(contextID, sender, content string, timestamp time.Time) ID {
	var b strings.Builder
	b.WriteString(contextID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(timestamp.UnixMicro(), 10))
	b.WriteByte('|')
	b.WriteString(sender)
	b.WriteByte('|')
	b.WriteString(content)
	return IDFromContent(b.String())
}

// Chunk is a contiguous, possibly overlapping window of messages rendered to
// text. ChunkIndex is the globally persisted index, scoped to the context:
// it strictly increases and is assigned by the indexing service as
// (current stored max + local offset + 1).
type Chunk struct {
	ContextID     string
	MessageIDs    []ID
	Content       string
	ChunkIndex    int64
	StartTime     time.Time // Timestamp of the first contributing message
	EndTime       time.Time // Timestamp of the last contributing message
	SenderCount   int
	MessageCount  int
	TokenEstimate int
}

// EmbeddingRecord is a Chunk plus its vector and context-type tag, as stored.
// Records are append-only; a record is never rewritten after creation.
type EmbeddingRecord struct {
	Chunk
	Vector      []float32
	ContextType ContextType
	CreatedAt   time.Time
}

// ChunkStats summarizes the stored embedding records for a context.
type ChunkStats struct {
	ContextID        string
	ChunkCount       int
	LatestChunkIndex int64
	LatestTimestamp  time.Time // Latest EndTime across stored chunks
}

// ChunkMatch represents an embedding record matched by similarity search.
type ChunkMatch struct {
	Record *EmbeddingRecord
	Score  float32
}
