package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// MessageRepository implements storage.MessageStore for BadgerDB.
type MessageRepository struct {
	backend *Backend
}

var _ storage.MessageStore = (*MessageRepository)(nil)

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(backend *Backend) *MessageRepository {
	return &MessageRepository{backend: backend}
}

// Close implements storage.MessageStore. The underlying backend is shared
// and closed separately.
func (r *MessageRepository) Close() error {
	return nil
}

// AddMessages appends messages to the store. Messages with Id 0 receive a
// deterministic content-based ID, so re-ingesting the same transcript is
// idempotent.
func (r *MessageRepository) AddMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, message := range messages {
			if err := core.ValidateMessage(message); err != nil {
				return err
			}

			if message.Id == 0 {
				message.Id = core.MessageID(message.ContextID, message.Sender, message.Content, message.Timestamp)
			}
			if message.InsertedAt.IsZero() {
				message.InsertedAt = time.Now().UTC()
			}

			key := makeMessageKey(message.Id)
			if err := tx.Set(key, storage.MarshalMessage(message)); err != nil {
				return err
			}

			indexKey := makeMessageContextKey(message.ContextID, message.Timestamp, message.Id)
			if err := tx.Set(indexKey, storage.MarshalID(message.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return messages, err
}

// GetMessages returns up to limit messages of the context in chronological
// order, skipping offset messages from the start.
func (r *MessageRepository) GetMessages(ctx context.Context, contextID string, limit, offset int) ([]*core.Message, error) {
	if limit <= 0 || offset < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeMessageContextPrefix(contextID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		skipped := 0
		for iter.Rewind(); iter.Valid() && len(results) < limit; iter.Next() {
			if skipped < offset {
				skipped++
				continue
			}

			message, err := r.readIndexedMessage(tx, iter)
			if err != nil {
				return err
			}
			if message != nil {
				results = append(results, message)
			}
		}
		return nil
	}, false)

	return results, err
}

// GetRecentMessages returns the most recent limit messages of the context,
// in chronological order.
func (r *MessageRepository) GetRecentMessages(ctx context.Context, contextID string, limit int) ([]*core.Message, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeMessageContextPrefix(contextID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(prefixUpperBound(prefix)); iter.Valid() && len(results) < limit; iter.Next() {
			message, err := r.readIndexedMessage(tx, iter)
			if err != nil {
				return err
			}
			if message != nil {
				results = append(results, message)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Reverse iteration produced newest-first; callers expect chronological
	slices.Reverse(results)
	return results, nil
}

// GetMessagesByID resolves messages by ID. Missing IDs are skipped.
func (r *MessageRepository) GetMessagesByID(ctx context.Context, ids ...core.ID) ([]*core.Message, error) {
	var results []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			message, err := r.readMessage(tx, makeMessageKey(id))
			if err != nil {
				return err
			}
			if message != nil {
				results = append(results, message)
			}
		}
		return nil
	}, false)
	return results, err
}

// CandidateContexts returns contexts with at least threshold non-empty
// messages inside the recency window, ordered by most recent activity first,
// capped at maxCandidates.
func (r *MessageRepository) CandidateContexts(ctx context.Context, threshold, maxCandidates int, window time.Duration) ([]string, error) {
	if threshold <= 0 || maxCandidates <= 0 || window <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	type activity struct {
		contextID string
		count     int
		latest    time.Time
	}

	cutoff := time.Now().UTC().Add(-window)
	byContext := make(map[string]*activity)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(messageContextPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			contextID, timestamp, ok := splitMessageContextKey(iter.Item().Key())
			if !ok || timestamp.Before(cutoff) {
				continue
			}

			message, err := r.readIndexedMessage(tx, iter)
			if err != nil {
				return err
			}
			if message == nil || message.Content == "" {
				continue
			}

			entry := byContext[contextID]
			if entry == nil {
				entry = &activity{contextID: contextID}
				byContext[contextID] = entry
			}
			entry.count++
			if timestamp.After(entry.latest) {
				entry.latest = timestamp
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	candidates := make([]*activity, 0, len(byContext))
	for _, entry := range byContext {
		if entry.count >= threshold {
			candidates = append(candidates, entry)
		}
	}
	slices.SortFunc(candidates, func(a, b *activity) int {
		return b.latest.Compare(a.latest)
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	contextIDs := make([]string, len(candidates))
	for i, entry := range candidates {
		contextIDs[i] = entry.contextID
	}
	return contextIDs, nil
}

// readIndexedMessage resolves the message referenced by the current index
// entry of the iterator.
func (r *MessageRepository) readIndexedMessage(tx *badger.Txn, iter *badger.Iterator) (*core.Message, error) {
	var id core.ID
	if err := iter.Item().Value(func(val []byte) error {
		var err error
		id, err = storage.UnmarshalID(val)
		return err
	}); err != nil {
		return nil, err
	}
	return r.readMessage(tx, makeMessageKey(id))
}

// readMessage reads and deserializes a message record. Returns nil if the
// key does not exist.
func (r *MessageRepository) readMessage(tx *badger.Txn, key []byte) (*core.Message, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var message *core.Message
	err = item.Value(func(val []byte) error {
		var err error
		message, err = storage.UnmarshalMessage(val)
		return err
	})
	return message, err
}
