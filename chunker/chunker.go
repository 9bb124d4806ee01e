package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/recall/core"
)

// Chunk is one overlapping window of messages rendered to text.
// LocalIndex is 0-based within a single Split call; the caller maps it to the
// globally persisted chunk index.
type Chunk struct {
	Content       string
	MessageIDs    []core.ID
	LocalIndex    int
	StartTime     time.Time
	EndTime       time.Time
	SenderCount   int
	MessageCount  int
	TokenEstimate int
}

// Split produces overlapping chunks from an ordered message sequence.
// Chunk i covers messages [i*step, i*step+size) where step = size - overlap;
// the final chunk may be shorter. The rendering is deterministic, so
// re-chunking identical input yields identical output.
//
// An empty message slice yields an empty result, not an error. Only the
// window configuration is validated: overlap >= size (step <= 0) is a
// configuration error.
func Split(messages []*core.Message, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidWindow, size)
	}
	step := size - overlap
	if step <= 0 {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrInvalidWindow, size, overlap)
	}

	if len(messages) == 0 {
		return []Chunk{}, nil
	}

	var chunks []Chunk
	for start, idx := 0, 0; start < len(messages); start, idx = start+step, idx+1 {
		end := start + size
		if end > len(messages) {
			end = len(messages)
		}
		chunks = append(chunks, render(messages[start:end], idx))
		if end == len(messages) {
			break
		}
	}

	return chunks, nil
}

// render builds a single chunk from a message window.
func render(window []*core.Message, localIndex int) Chunk {
	lines := make([]string, 0, len(window))
	ids := make([]core.ID, 0, len(window))
	senders := make(map[string]struct{}, 2)

	for _, message := range window {
		lines = append(lines, message.Sender+": "+message.Content)
		ids = append(ids, message.Id)
		senders[message.Sender] = struct{}{}
	}

	content := strings.Join(lines, "\n")

	return Chunk{
		Content:       content,
		MessageIDs:    ids,
		LocalIndex:    localIndex,
		StartTime:     window[0].Timestamp,
		EndTime:       window[len(window)-1].Timestamp,
		SenderCount:   len(senders),
		MessageCount:  len(window),
		TokenEstimate: EstimateTokens(content),
	}
}
