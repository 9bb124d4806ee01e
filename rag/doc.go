// Package rag implements the conversation indexing and retrieval service:
// it chunks transcripts into overlapping windows, embeds them, appends them
// to a chunk store with strictly increasing per-context indices, and
// retrieves the most relevant stored chunks for a live query.
//
// The service is the data-processing half of the pipeline; the worker
// package decides when and how much to index.
package rag
