package chunker

import (
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeMessages(t *testing.T, n int) []*core.Message {
	t.Helper()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	messages := make([]*core.Message, n)
	for i := 0; i < n; i++ {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		messages[i] = &core.Message{
			Id:          core.ID(i + 1),
			ContextID:   "ctx-1",
			Sender:      sender,
			Content:     fmt.Sprintf("message %d", i),
			ContextType: core.ContextTypeDirect,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
	}
	return messages
}

func TestSplit_WindowBoundaries(t *testing.T) {
	messages := makeMessages(t, 22)

	chunks, err := Split(messages, 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// step = 8: windows are [0,10), [8,18), [16,22)
	assert.Equal(t, 10, chunks[0].MessageCount)
	assert.Equal(t, 10, chunks[1].MessageCount)
	assert.Equal(t, 6, chunks[2].MessageCount)

	assert.Equal(t, core.ID(1), chunks[0].MessageIDs[0])
	assert.Equal(t, core.ID(10), chunks[0].MessageIDs[9])
	assert.Equal(t, core.ID(9), chunks[1].MessageIDs[0])
	assert.Equal(t, core.ID(18), chunks[1].MessageIDs[9])
	assert.Equal(t, core.ID(17), chunks[2].MessageIDs[0])
	assert.Equal(t, core.ID(22), chunks[2].MessageIDs[5])

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.LocalIndex)
	}
}

func TestSplit_OverlapInvariant(t *testing.T) {
	messages := makeMessages(t, 30)

	chunks, err := Split(messages, 10, 3)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Consecutive chunks share exactly overlap messages.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].MessageIDs
		tail := prev[len(prev)-3:]
		head := chunks[i].MessageIDs[:3]
		assert.Equal(t, tail, head, "chunks %d and %d", i-1, i)
	}
}

func TestSplit_ExactMultiple(t *testing.T) {
	// 10 messages with size 10 is a single full window, not a trailing
	// empty one.
	messages := makeMessages(t, 10)

	chunks, err := Split(messages, 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 10, chunks[0].MessageCount)
}

func TestSplit_FewerMessagesThanSize(t *testing.T) {
	messages := makeMessages(t, 4)

	chunks, err := Split(messages, 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].MessageCount)
	assert.Equal(t, messages[0].Timestamp, chunks[0].StartTime)
	assert.Equal(t, messages[3].Timestamp, chunks[0].EndTime)
}

func TestSplit_EmptyInput(t *testing.T) {
	chunks, err := Split(nil, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.NotNil(t, chunks)
}

func TestSplit_InvalidWindow(t *testing.T) {
	testCases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 12},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split(makeMessages(t, 5), tc.size, tc.overlap)
			require.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestSplit_Rendering(t *testing.T) {
	messages := makeMessages(t, 2)

	chunks, err := Split(messages, 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "alice: message 0\nbob: message 1", chunks[0].Content)
	assert.Equal(t, 2, chunks[0].SenderCount)
	assert.Positive(t, chunks[0].TokenEstimate)
}

func TestSplit_Deterministic(t *testing.T) {
	messages := makeMessages(t, 25)

	first, err := Split(messages, 10, 2)
	require.NoError(t, err)
	second, err := Split(messages, 10, 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEstimateTokens(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty", "", 0},
		{"single word", "hello", 1},
		{"multiple words", "the quick brown fox", 4},
		{"cjk runes count individually", "你好", 2},
		{"mixed", "hello 世界", 3},
		{"cjk splitting adjacent ascii words", "foo你bar", 3},
		{"whitespace only", "   ", 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EstimateTokens(tc.text))
		})
	}
}
