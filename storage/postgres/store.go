package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// ChunkStore implements storage.ChunkStore on PostgreSQL with the pgvector
// extension. Similarity search uses cosine distance; results are converted
// to similarity (1 - distance) before filtering and ordering.
type ChunkStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.ChunkStore = (*ChunkStore)(nil)

const createTableTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS conversation_chunks (
	id BIGSERIAL PRIMARY KEY,
	context_id TEXT NOT NULL,
	chunk_index BIGINT NOT NULL,
	content TEXT NOT NULL,
	message_ids BIGINT[] NOT NULL,
	embedding vector(%d) NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	sender_count INT NOT NULL,
	message_count INT NOT NULL,
	token_estimate INT NOT NULL,
	context_type INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (context_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS conversation_chunks_context_idx
	ON conversation_chunks (context_id, chunk_index DESC);
`

// Open connects to PostgreSQL, ensures the schema exists with the given
// embedding dimensionality, and returns the store.
func Open(dsn string, embeddingDim int) (*ChunkStore, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(createTableTemplate, embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &ChunkStore{
		db:     db,
		logger: slog.Default().With("component", "postgres-chunk-store"),
	}, nil
}

// Close closes the database connection.
func (s *ChunkStore) Close() error {
	return s.db.Close()
}

// Create appends an embedding record.
func (s *ChunkStore) Create(ctx context.Context, record *core.EmbeddingRecord) error {
	if err := core.ValidateEmbeddingRecord(record); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	ids := make([]int64, len(record.MessageIDs))
	for i, id := range record.MessageIDs {
		ids[i] = int64(id)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_chunks
			(context_id, chunk_index, content, message_ids, embedding,
			 start_time, end_time, sender_count, message_count,
			 token_estimate, context_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ContextID,
		record.ChunkIndex,
		record.Content,
		pq.Array(ids),
		pgvector.NewVector(record.Vector),
		record.StartTime,
		record.EndTime,
		record.SenderCount,
		record.MessageCount,
		record.TokenEstimate,
		int(record.ContextType),
		record.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return storage.ErrDuplicateKey
	}
	return err
}

// FindSimilar returns the context's records with similarity >= minSimilarity,
// ordered by similarity descending, ties broken by higher chunk index.
func (s *ChunkStore) FindSimilar(ctx context.Context, contextID string, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT context_id, chunk_index, content, message_ids, embedding,
		       start_time, end_time, sender_count, message_count,
		       token_estimate, context_type, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM conversation_chunks
		WHERE context_id = $2 AND 1 - (embedding <=> $1) >= $3
		ORDER BY similarity DESC, chunk_index DESC
		LIMIT $4`,
		pgvector.NewVector(vector), contextID, minSimilarity, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.ChunkMatch
	for rows.Next() {
		record := &core.EmbeddingRecord{}
		var ids pq.Int64Array
		var embedding pgvector.Vector
		var contextType int
		var similarity float64

		if err := rows.Scan(
			&record.ContextID,
			&record.ChunkIndex,
			&record.Content,
			&ids,
			&embedding,
			&record.StartTime,
			&record.EndTime,
			&record.SenderCount,
			&record.MessageCount,
			&record.TokenEstimate,
			&contextType,
			&record.CreatedAt,
			&similarity,
		); err != nil {
			return nil, err
		}

		record.MessageIDs = make([]core.ID, len(ids))
		for i, id := range ids {
			record.MessageIDs[i] = core.ID(id)
		}
		record.Vector = embedding.Slice()
		record.ContextType = core.ContextType(contextType)

		results = append(results, &core.ChunkMatch{
			Record: record,
			Score:  float32(similarity),
		})
	}
	return results, rows.Err()
}

// LatestChunkIndex returns the highest stored chunk index for the context,
// or 0 when the context has no records.
func (s *ChunkStore) LatestChunkIndex(ctx context.Context, contextID string) (int64, error) {
	var latest int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(chunk_index), 0)
		FROM conversation_chunks
		WHERE context_id = $1`,
		contextID,
	).Scan(&latest)
	return latest, err
}

// Stats returns chunk count, latest chunk index, and latest covered message
// timestamp for the context.
func (s *ChunkStore) Stats(ctx context.Context, contextID string) (*core.ChunkStats, error) {
	stats := &core.ChunkStats{ContextID: contextID}
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(chunk_index), 0), MAX(end_time)
		FROM conversation_chunks
		WHERE context_id = $1`,
		contextID,
	).Scan(&stats.ChunkCount, &stats.LatestChunkIndex, &latest)
	if err != nil {
		return nil, err
	}
	if latest.Valid {
		stats.LatestTimestamp = latest.Time.UTC()
	}
	return stats, nil
}

// HasEmbeddings reports whether the context has any stored records.
func (s *ChunkStore) HasEmbeddings(ctx context.Context, contextID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM conversation_chunks WHERE context_id = $1)`,
		contextID,
	).Scan(&exists)
	return exists, err
}

// DeleteByContext removes all records for the context and returns the number
// deleted.
func (s *ChunkStore) DeleteByContext(ctx context.Context, contextID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_chunks WHERE context_id = $1`,
		contextID,
	)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
