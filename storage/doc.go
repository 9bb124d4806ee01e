// Package storage defines the persistence interfaces for conversation memory:
// the ChunkStore holding embedding records and the MessageStore holding raw
// messages. Concrete backends live in subpackages (badger, postgres).
package storage
