package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
	"github.com/poiesic/recall/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T, opts ...Option) (*Service, storage.MessageStore, *mock.Embedder) {
	t.Helper()

	chunks, messages, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunks.Close()
		messages.Close()
		backend.Close()
	})

	embedder := mock.NewEmbedder()
	service, err := NewService(chunks, messages, embedder, opts...)
	require.NoError(t, err)

	return service, messages, embedder
}

func conversation(contextID string, n int, start time.Time) []*core.Message {
	messages := make([]*core.Message, n)
	for i := 0; i < n; i++ {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		messages[i] = &core.Message{
			Id:          core.ID(i + 1),
			ContextID:   contextID,
			Sender:      sender,
			Content:     fmt.Sprintf("message %d", i),
			ContextType: core.ContextTypeDirect,
			Timestamp:   start.Add(time.Duration(i) * time.Minute),
		}
	}
	return messages
}

func TestNewService_RequiredDependencies(t *testing.T) {
	chunks, messages, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewEmbedder()

	_, err = NewService(nil, messages, embedder)
	require.ErrorIs(t, err, ErrChunkStoreRequired)

	_, err = NewService(chunks, nil, embedder)
	require.ErrorIs(t, err, ErrMessageStoreRequired)

	_, err = NewService(chunks, messages, nil)
	require.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestService_EmbedAndStoreChunk(t *testing.T) {
	service, _, _ := setupService(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Hour)

	// 12 messages, size 10, overlap 2: windows [0,10) and [8,12)
	stored, err := service.EmbedAndStoreChunk(ctx, "room-42", conversation("room-42", 12, start))
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	stats, err := service.GetStats(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, int64(2), stats.LatestChunkIndex)
	assert.WithinDuration(t, start.Add(11*time.Minute), stats.LatestTimestamp, time.Millisecond)
}

func TestService_EmbedAndStoreChunk_EmptyInput(t *testing.T) {
	service, _, embedder := setupService(t)

	stored, err := service.EmbedAndStoreChunk(context.Background(), "room-42", nil)
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Zero(t, embedder.CallCount())
}

func TestService_EmbedAndStoreChunk_IndicesContinue(t *testing.T) {
	service, _, _ := setupService(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-2 * time.Hour)

	_, err := service.EmbedAndStoreChunk(ctx, "room-42", conversation("room-42", 12, start))
	require.NoError(t, err)

	// A second batch continues from the stored maximum, never reusing indices
	later := conversation("room-42", 5, start.Add(time.Hour))
	_, err = service.EmbedAndStoreChunk(ctx, "room-42", later)
	require.NoError(t, err)

	stats, err := service.GetStats(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunkCount)
	assert.Equal(t, int64(3), stats.LatestChunkIndex)
}

func TestService_EmbedAndStoreChunk_EmbedderFailure(t *testing.T) {
	service, _, embedder := setupService(t)
	ctx := context.Background()

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}

	_, err := service.EmbedAndStoreChunk(ctx, "room-42", conversation("room-42", 5, time.Now().UTC().Add(-time.Hour)))
	require.Error(t, err)

	has, err := service.HasEmbeddings(ctx, "room-42")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestService_ProcessUnembeddedMessages(t *testing.T) {
	service, messages, _ := setupService(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-2 * time.Hour)
	_, err := messages.AddMessages(ctx, conversationForStore("room-42", 12, start)...)
	require.NoError(t, err)

	embedded, err := service.ProcessUnembeddedMessages(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, 12, embedded)

	// Nothing new: the second call is a no-op
	embedded, err = service.ProcessUnembeddedMessages(ctx, "room-42")
	require.NoError(t, err)
	assert.Zero(t, embedded)

	// Only messages newer than the embedded watermark qualify
	_, err = messages.AddMessages(ctx, conversationForStore("room-42", 4, start.Add(time.Hour))...)
	require.NoError(t, err)

	embedded, err = service.ProcessUnembeddedMessages(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, 4, embedded)
}

func TestService_ProcessUnembeddedMessages_SkipsEmptyContent(t *testing.T) {
	service, messages, _ := setupService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	batch := conversationForStore("room-42", 2, now.Add(-30*time.Minute))
	batch = append(batch, &core.Message{
		ContextID:   "room-42",
		Sender:      "alice",
		ContextType: core.ContextTypeDirect,
		Timestamp:   now.Add(-20 * time.Minute),
	})
	_, err := messages.AddMessages(ctx, batch...)
	require.NoError(t, err)

	embedded, err := service.ProcessUnembeddedMessages(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, 2, embedded)
}

func TestService_RetrieveRelevantContext(t *testing.T) {
	service, _, embedder := setupService(t)
	ctx := context.Background()

	// Topic-tagged vectors so similarity against the query is controlled:
	// cosine(query, paris)=1.0, cosine(query, tokyo)=0.8, cosine(query, lunch)=0
	vectorFor := func(text string) []float32 {
		switch {
		case strings.Contains(text, "paris"):
			return []float32{1, 0, 0}
		case strings.Contains(text, "tokyo"):
			return []float32{0.8, 0.6, 0}
		default:
			return []float32{0, 1, 0}
		}
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return vectorFor(text), nil
	}

	start := time.Now().UTC().Add(-time.Hour)
	topics := []string{"paris", "tokyo", "lunch"}
	config := DefaultConfig()
	config.ChunkSize = 2
	config.ChunkOverlap = 0
	require.NoError(t, service.UpdateConfig(config))

	var batch []*core.Message
	for i := 0; i < 6; i++ {
		batch = append(batch, &core.Message{
			Id:          core.ID(i + 1),
			ContextID:   "room-42",
			Sender:      "alice",
			Content:     fmt.Sprintf("talking about %s, part %d", topics[i/2], i%2),
			ContextType: core.ContextTypeDirect,
			Timestamp:   start.Add(time.Duration(i) * time.Minute),
		})
	}
	stored, err := service.EmbedAndStoreChunk(ctx, "room-42", batch)
	require.NoError(t, err)
	require.Equal(t, 3, stored)

	result, err := service.RetrieveRelevantContext(ctx, "room-42", "tell me about paris")
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)

	// Ordered by similarity descending; the lunch chunk is below threshold
	assert.InDelta(t, 1.0, result.Matches[0].Score, 1e-5)
	assert.Contains(t, result.Matches[0].Record.Content, "paris")
	assert.InDelta(t, 0.8, result.Matches[1].Score, 1e-5)
	assert.Contains(t, result.Matches[1].Record.Content, "tokyo")

	assert.InDelta(t, 0.9, result.AvgSimilarity, 1e-5)
	assert.Equal(t, []core.ID{1, 2, 3, 4}, result.MessageIDs)

	assert.Contains(t, result.ContextText, "[Relevance 100%]")
	assert.Contains(t, result.ContextText, "paris")
	assert.Contains(t, result.ContextText, "tokyo")
	assert.NotContains(t, result.ContextText, "lunch")
}

func TestService_RetrieveRelevantContext_NothingRelevant(t *testing.T) {
	service, _, embedder := setupService(t)
	ctx := context.Background()

	embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		if strings.HasPrefix(text, "query:") {
			return []float32{0, 0, 1}, nil
		}
		return []float32{1, 0, 0}, nil
	}

	_, err := service.EmbedAndStoreChunk(ctx, "room-42", conversation("room-42", 5, time.Now().UTC().Add(-time.Hour)))
	require.NoError(t, err)

	result, err := service.RetrieveRelevantContext(ctx, "room-42", "query: unrelated")
	require.NoError(t, err)
	assert.Zero(t, result.Count)
	assert.Empty(t, result.ContextText)
	assert.Zero(t, result.AvgSimilarity)
}

func TestService_RetrieveRelevantContext_EmptyContext(t *testing.T) {
	service, _, _ := setupService(t)

	result, err := service.RetrieveRelevantContext(context.Background(), "room-never-indexed", "anything")
	require.NoError(t, err)
	assert.Zero(t, result.Count)
}

func TestService_DeleteEmbeddings(t *testing.T) {
	service, _, _ := setupService(t)
	ctx := context.Background()

	_, err := service.EmbedAndStoreChunk(ctx, "room-42", conversation("room-42", 12, time.Now().UTC().Add(-time.Hour)))
	require.NoError(t, err)

	deleted, err := service.DeleteEmbeddings(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	has, err := service.HasEmbeddings(ctx, "room-42")
	require.NoError(t, err)
	assert.False(t, has)

	// Index allocation starts over after a full delete
	_, err = service.EmbedAndStoreChunk(ctx, "room-42", conversation("room-42", 5, time.Now().UTC().Add(-30*time.Minute)))
	require.NoError(t, err)

	stats, err := service.GetStats(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.LatestChunkIndex)
}

func TestService_RebuildEmbeddings(t *testing.T) {
	service, messages, _ := setupService(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-2 * time.Hour)
	_, err := messages.AddMessages(ctx, conversationForStore("room-42", 12, start)...)
	require.NoError(t, err)

	embedded, err := service.ProcessUnembeddedMessages(ctx, "room-42")
	require.NoError(t, err)
	require.Equal(t, 12, embedded)

	first, err := service.GetStats(ctx, "room-42")
	require.NoError(t, err)

	// Rebuild from stored history reproduces the same chunk layout
	stored, err := service.RebuildEmbeddings(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	second, err := service.GetStats(ctx, "room-42")
	require.NoError(t, err)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	assert.Equal(t, first.LatestChunkIndex, second.LatestChunkIndex)
}

func TestService_RebuildEmbeddings_EmptyHistory(t *testing.T) {
	service, _, _ := setupService(t)

	stored, err := service.RebuildEmbeddings(context.Background(), "room-unknown")
	require.NoError(t, err)
	assert.Zero(t, stored)
}

func TestService_ConfigCopySemantics(t *testing.T) {
	service, _, _ := setupService(t)

	config := service.Config()
	config.TopK = 99

	// Mutating the returned copy does not affect the service
	assert.Equal(t, DefaultConfig().TopK, service.Config().TopK)
}

func TestService_UpdateConfig_Invalid(t *testing.T) {
	service, _, _ := setupService(t)

	bad := DefaultConfig()
	bad.ChunkOverlap = bad.ChunkSize
	require.ErrorIs(t, service.UpdateConfig(bad), ErrInvalidConfig)

	// Original config untouched after a rejected update
	assert.Equal(t, DefaultConfig().ChunkOverlap, service.Config().ChunkOverlap)
}

// conversationForStore builds store-bound messages with Id left to the
// repository's deterministic assignment.
func conversationForStore(contextID string, n int, start time.Time) []*core.Message {
	messages := conversation(contextID, n, start)
	for _, message := range messages {
		message.Id = 0
	}
	return messages
}
