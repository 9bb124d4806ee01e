// Package chunker converts ordered message sequences into overlapping text
// chunks. It is a pure transform with no I/O: the same input and window
// configuration always produce the same chunks, which makes re-indexing
// idempotent at the chunk level.
package chunker
