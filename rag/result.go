package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/recall/core"
)

// RetrievalResult is the outcome of a semantic retrieval over a context's
// stored chunks. An empty result (Count == 0) is a valid, common outcome,
// not an error: callers must treat "no relevant memory" as normal.
type RetrievalResult struct {
	// Matches are the raw search results, ordered by similarity descending.
	Matches []*core.ChunkMatch

	// MessageIDs is the deduplicated set of message IDs referenced by the
	// matched chunks, in first-seen order. Overlapping chunks may reference
	// the same message; it appears here once.
	MessageIDs []core.ID

	// Messages holds the resolved messages for MessageIDs, where the message
	// store could resolve them.
	Messages []*core.Message

	// ContextText is the formatted, human/LLM-readable context block.
	ContextText string

	// Count is the number of matched chunks.
	Count int

	// AvgSimilarity is the mean similarity across matches, 0 when empty.
	AvgSimilarity float32

	// Latency is the wall-clock duration of the retrieval.
	Latency time.Duration
}

const timeRangeLayout = "2006-01-02 15:04"

// formatContext renders matched chunks as one context block. Each chunk is
// annotated with its relevance percentage and time range.
func formatContext(matches []*core.ChunkMatch) string {
	if len(matches) == 0 {
		return ""
	}

	blocks := make([]string, len(matches))
	for i, match := range matches {
		blocks[i] = fmt.Sprintf("[Relevance %d%%] %s - %s\n%s",
			int(match.Score*100),
			match.Record.StartTime.Format(timeRangeLayout),
			match.Record.EndTime.Format(timeRangeLayout),
			match.Record.Content,
		)
	}
	return strings.Join(blocks, "\n\n")
}

// dedupMessageIDs collects the message IDs referenced across matches,
// keeping first-seen order and dropping duplicates from overlapping chunks.
func dedupMessageIDs(matches []*core.ChunkMatch) []core.ID {
	seen := make(map[core.ID]struct{})
	var ids []core.ID
	for _, match := range matches {
		for _, id := range match.Record.MessageIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
