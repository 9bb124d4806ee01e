package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

const (
	// incrementalFetchLimit bounds the history page examined by
	// ProcessUnembeddedMessages.
	incrementalFetchLimit = 1000

	// rebuildFetchLimit bounds the history page re-embedded by
	// RebuildEmbeddings.
	rebuildFetchLimit = 10000
)

// Service orchestrates chunking, embedding, storage, and semantic retrieval
// for conversation contexts. It owns the per-context incremental-processing
// logic; scheduling lives in the worker package.
type Service struct {
	chunks   storage.ChunkStore
	messages storage.MessageStore
	embedder ai.Embedder
	logger   *slog.Logger

	configMu sync.RWMutex
	config   Config

	// locks serializes the read-max/write sequence per context, so a manual
	// rebuild cannot race a scheduled cycle into colliding chunk indices.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithConfig overrides the default configuration.
func WithConfig(config Config) Option {
	return func(s *Service) error {
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// NewService creates a new indexing and retrieval service.
func NewService(chunks storage.ChunkStore, messages storage.MessageStore, embedder ai.Embedder, opts ...Option) (*Service, error) {
	if chunks == nil {
		return nil, ErrChunkStoreRequired
	}
	if messages == nil {
		return nil, ErrMessageStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Service{
		chunks:   chunks,
		messages: messages,
		embedder: embedder,
		logger:   slog.Default(),
		config:   DefaultConfig(),
		locks:    make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Config returns a copy of the current configuration. Mutating the returned
// value does not affect the service.
func (s *Service) Config() Config {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.config
}

// UpdateConfig replaces the configuration at runtime. Only chunks created
// after the change are affected; stored chunks are not re-chunked.
func (s *Service) UpdateConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.configMu.Lock()
	s.config = config
	s.configMu.Unlock()
	s.logger.Info("rag config updated",
		"chunkSize", config.ChunkSize,
		"chunkOverlap", config.ChunkOverlap,
		"topK", config.TopK,
		"minSimilarity", config.MinSimilarity,
	)
	return nil
}

// EmbedAndStoreChunk chunks the given messages and appends one embedding
// record per chunk, with global chunk indices continuing from the context's
// stored maximum. Returns the number of chunks stored.
//
// Chunks are embedded and persisted one at a time in chunk order; a failure
// aborts the call, but records already written in the same call stay
// committed. Retrying is safe: indices are re-derived from the current
// stored maximum, so a retry cannot allocate duplicate indices.
func (s *Service) EmbedAndStoreChunk(ctx context.Context, contextID string, messages []*core.Message) (int, error) {
	if len(messages) == 0 {
		s.logger.Info("no messages to embed", "contextID", contextID)
		return 0, nil
	}

	lock := s.contextLock(contextID)
	lock.Lock()
	defer lock.Unlock()

	return s.embedAndStore(ctx, contextID, messages)
}

// embedAndStore runs the chunk/embed/persist pipeline. Caller must hold the
// context lock.
func (s *Service) embedAndStore(ctx context.Context, contextID string, messages []*core.Message) (int, error) {
	config := s.Config()

	pieces, err := chunker.Split(messages, config.ChunkSize, config.ChunkOverlap)
	if err != nil {
		return 0, err
	}
	if len(pieces) == 0 {
		return 0, nil
	}

	latest, err := s.chunks.LatestChunkIndex(ctx, contextID)
	if err != nil {
		return 0, fmt.Errorf("reading latest chunk index: %w", err)
	}

	contextType := messages[0].ContextType

	for _, piece := range pieces {
		vector, err := s.embedder.EmbedText(ctx, piece.Content)
		if err != nil {
			return 0, fmt.Errorf("embedding chunk %d: %w", piece.LocalIndex, err)
		}

		record := &core.EmbeddingRecord{
			Chunk: core.Chunk{
				ContextID:     contextID,
				MessageIDs:    piece.MessageIDs,
				Content:       piece.Content,
				ChunkIndex:    latest + int64(piece.LocalIndex) + 1,
				StartTime:     piece.StartTime,
				EndTime:       piece.EndTime,
				SenderCount:   piece.SenderCount,
				MessageCount:  piece.MessageCount,
				TokenEstimate: piece.TokenEstimate,
			},
			Vector:      NormalizeVector(vector),
			ContextType: contextType,
		}

		if err := s.chunks.Create(ctx, record); err != nil {
			return 0, fmt.Errorf("storing chunk %d: %w", record.ChunkIndex, err)
		}

		s.logger.Debug("chunk stored",
			"contextID", contextID,
			"chunkIndex", record.ChunkIndex,
			"messages", record.MessageCount,
			"tokens", record.TokenEstimate,
		)
	}

	s.logger.Info("embedded and stored chunks",
		"contextID", contextID,
		"chunks", len(pieces),
		"model", config.EmbeddingModel,
	)
	return len(pieces), nil
}

// ProcessUnembeddedMessages indexes the messages of a context that are newer
// than the latest already-embedded timestamp. Messages with empty content
// are excluded. Returns the number of messages embedded, 0 if none
// qualified. This is the incremental-indexing primitive the worker calls.
func (s *Service) ProcessUnembeddedMessages(ctx context.Context, contextID string) (int, error) {
	stats, err := s.chunks.Stats(ctx, contextID)
	if err != nil {
		return 0, fmt.Errorf("reading chunk stats: %w", err)
	}
	mark := stats.LatestTimestamp

	recent, err := s.messages.GetRecentMessages(ctx, contextID, incrementalFetchLimit)
	if err != nil {
		return 0, fmt.Errorf("fetching recent history: %w", err)
	}

	var pending []*core.Message
	for _, message := range recent {
		if message.Content == "" {
			continue
		}
		if !message.Timestamp.After(mark) {
			continue
		}
		pending = append(pending, message)
	}

	if len(pending) == 0 {
		s.logger.Debug("no unembedded messages", "contextID", contextID)
		return 0, nil
	}

	lock := s.contextLock(contextID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.embedAndStore(ctx, contextID, pending); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// RetrieveRelevantContext embeds the query and returns the most relevant
// stored chunks for the context, formatted for prompt assembly. When no
// chunk reaches the similarity threshold the result is empty, not an error.
func (s *Service) RetrieveRelevantContext(ctx context.Context, contextID, query string) (*RetrievalResult, error) {
	start := time.Now()
	config := s.Config()

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := s.chunks.FindSimilar(ctx, contextID, NormalizeVector(vector), config.MinSimilarity, config.TopK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	result := &RetrievalResult{
		Matches: matches,
		Count:   len(matches),
		Latency: time.Since(start),
	}
	if len(matches) == 0 {
		s.logger.Debug("no relevant context", "contextID", contextID, "latency", result.Latency)
		return result, nil
	}

	var total float32
	for _, match := range matches {
		total += match.Score
	}
	result.AvgSimilarity = total / float32(len(matches))
	result.MessageIDs = dedupMessageIDs(matches)
	result.ContextText = formatContext(matches)

	messages, err := s.messages.GetMessagesByID(ctx, result.MessageIDs...)
	if err != nil {
		// The formatted context is already complete; resolution is best effort
		s.logger.Warn("failed to resolve matched messages", "contextID", contextID, "err", err)
	} else {
		result.Messages = messages
	}

	result.Latency = time.Since(start)
	s.logger.Info("retrieved relevant context",
		"contextID", contextID,
		"chunks", result.Count,
		"avgSimilarity", result.AvgSimilarity,
		"latency", result.Latency,
	)
	return result, nil
}

// HasEmbeddings reports whether the context has any stored records.
func (s *Service) HasEmbeddings(ctx context.Context, contextID string) (bool, error) {
	return s.chunks.HasEmbeddings(ctx, contextID)
}

// GetStats returns the stored chunk statistics for the context.
func (s *Service) GetStats(ctx context.Context, contextID string) (*core.ChunkStats, error) {
	return s.chunks.Stats(ctx, contextID)
}

// DeleteEmbeddings deletes all records for a context and returns the count
// deleted. Used for data-removal requests and as the first step of a rebuild.
func (s *Service) DeleteEmbeddings(ctx context.Context, contextID string) (int, error) {
	count, err := s.chunks.DeleteByContext(ctx, contextID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("deleted embeddings", "contextID", contextID, "count", count)
	return count, nil
}

// RebuildEmbeddings deletes the context's records and re-runs the pipeline
// over its entire (bounded) history. This re-embeds everything and is not
// cheap; it is meant for chunking or model changes, never for normal
// traffic. Returns the number of chunks stored.
func (s *Service) RebuildEmbeddings(ctx context.Context, contextID string) (int, error) {
	lock := s.contextLock(contextID)
	lock.Lock()
	defer lock.Unlock()

	deleted, err := s.chunks.DeleteByContext(ctx, contextID)
	if err != nil {
		return 0, fmt.Errorf("deleting existing records: %w", err)
	}
	s.logger.Info("rebuild: deleted existing embeddings", "contextID", contextID, "count", deleted)

	history, err := s.messages.GetMessages(ctx, contextID, rebuildFetchLimit, 0)
	if err != nil {
		return 0, fmt.Errorf("fetching full history: %w", err)
	}

	var indexable []*core.Message
	for _, message := range history {
		if message.Content != "" {
			indexable = append(indexable, message)
		}
	}
	if len(indexable) == 0 {
		s.logger.Info("rebuild: no indexable history", "contextID", contextID)
		return 0, nil
	}

	return s.embedAndStore(ctx, contextID, indexable)
}

// contextLock returns the mutex guarding index allocation for a context.
func (s *Service) contextLock(contextID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[contextID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[contextID] = lock
	}
	return lock
}
