package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// ChunkRepository implements storage.ChunkStore for BadgerDB.
//
// Similarity search is a linear scan over the context's records with a dot
// product per record. Vectors are normalized before storage, so the dot
// product equals cosine similarity.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkStore = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{backend: backend}
}

// Close implements storage.ChunkStore. The underlying backend is shared and
// closed separately.
func (r *ChunkRepository) Close() error {
	return nil
}

// Create appends an embedding record. An existing record at the same chunk
// index is never rewritten.
func (r *ChunkRepository) Create(ctx context.Context, record *core.EmbeddingRecord) error {
	if err := core.ValidateEmbeddingRecord(record); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeChunkKey(record.ContextID, record.ChunkIndex)

		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := tx.Set(key, storage.MarshalRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// FindSimilar returns the context's records with similarity >= minSimilarity,
// ordered by similarity descending. Ties go to the higher chunk index.
func (r *ChunkRepository) FindSimilar(ctx context.Context, contextID string, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.ChunkMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(contextID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if record == nil || len(record.Vector) == 0 {
				continue
			}

			similarity := dotProduct(vector, record.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.ChunkMatch{
					Record: record,
					Score:  similarity,
				})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.ChunkMatch) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		// Equal similarity: more recent chunk wins
		if a.Record.ChunkIndex > b.Record.ChunkIndex {
			return -1
		}
		if a.Record.ChunkIndex < b.Record.ChunkIndex {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// LatestChunkIndex returns the highest stored chunk index for the context,
// or 0 when the context has no records.
func (r *ChunkRepository) LatestChunkIndex(ctx context.Context, contextID string) (int64, error) {
	var latest int64
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeChunkPrefix(contextID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Seek(prefixUpperBound(prefix))
		if iter.Valid() {
			latest = chunkIndexFromKey(iter.Item().Key())
		}
		return nil
	}, false)
	return latest, err
}

// Stats returns chunk count, latest chunk index, and the latest covered
// message timestamp for the context.
func (r *ChunkRepository) Stats(ctx context.Context, contextID string) (*core.ChunkStats, error) {
	stats := &core.ChunkStats{ContextID: contextID}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(contextID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}

			stats.ChunkCount++
			if record.ChunkIndex > stats.LatestChunkIndex {
				stats.LatestChunkIndex = record.ChunkIndex
			}
			if record.EndTime.After(stats.LatestTimestamp) {
				stats.LatestTimestamp = record.EndTime
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// HasEmbeddings reports whether the context has any stored records.
func (r *ChunkRepository) HasEmbeddings(ctx context.Context, contextID string) (bool, error) {
	found := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(contextID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Rewind()
		found = iter.Valid()
		return nil
	}, false)
	return found, err
}

// DeleteByContext removes all records for the context and returns the number
// deleted. Because the index high-water mark lives in the record keys, a full
// delete resets index allocation to 1.
func (r *ChunkRepository) DeleteByContext(ctx context.Context, contextID string) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(contextID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		count = len(keys)
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return count, nil
}
