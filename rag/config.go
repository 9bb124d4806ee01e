// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package rag

import "fmt"

// Config holds the chunking and retrieval parameters of the service.
// Changing it at runtime affects only chunks created afterwards; stored
// chunks are never re-chunked retroactively.
type Config struct {
	// ChunkSize is the number of messages per chunk. Default: 10.
	ChunkSize int

	// ChunkOverlap is the number of messages shared between consecutive
	// chunks. Must be smaller than ChunkSize. Default: 2.
	ChunkOverlap int

	// TopK is the maximum number of chunks returned by retrieval. Default: 3.
	TopK int

	// MinSimilarity is the similarity threshold for retrieval, in [0, 1].
	// Default: 0.5.
	MinSimilarity float32

	// EmbeddingModel identifies the embedding model in use. Informational;
	// recorded in logs so stored vectors can be traced to their model.
	EmbeddingModel string
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      10,
		ChunkOverlap:   2,
		TopK:           3,
		MinSimilarity:  0.5,
		EmbeddingModel: "embeddinggemma",
	}
}

// Validate rejects unusable configurations at construction time rather than
// at first use.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: min similarity %v must be in [0, 1]", ErrInvalidConfig, c.MinSimilarity)
	}
	return nil
}
