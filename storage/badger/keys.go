package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/recall/core"
)

// Key prefixes for different data types
const (
	chunkRecordPrefix    = "embrec"
	messageRecordPrefix  = "msgrec"
	messageContextPrefix = "msgctx"
)

// makeChunkPrefix generates the key prefix covering all chunk records of a
// context. Chunk keys end with a fixed-width big-endian index, so iteration
// over the prefix yields chunks in index order.
func makeChunkPrefix(contextID string) []byte {
	buf := make([]byte, 0, len(chunkRecordPrefix)+len(contextID)+2)
	buf = append(buf, chunkRecordPrefix...)
	buf = append(buf, ':')
	buf = append(buf, contextID...)
	buf = append(buf, ':')
	return buf
}

// makeChunkKey generates a key for a chunk record.
// Format: embrec:<contextID>:<index BE>
func makeChunkKey(contextID string, index int64) []byte {
	prefix := makeChunkPrefix(contextID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(index))
	return buf
}

// chunkIndexFromKey extracts the chunk index from a chunk record key.
func chunkIndexFromKey(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeMessageKey generates a key for a message record by ID.
// Format: msgrec:<id BE>
func makeMessageKey(id core.ID) []byte {
	buf := make([]byte, len(messageRecordPrefix)+1+8)
	offset := copy(buf, messageRecordPrefix+":")
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeMessageContextPrefix generates the key prefix covering a context's
// chronological message index.
func makeMessageContextPrefix(contextID string) []byte {
	buf := make([]byte, 0, len(messageContextPrefix)+len(contextID)+2)
	buf = append(buf, messageContextPrefix...)
	buf = append(buf, ':')
	buf = append(buf, contextID...)
	buf = append(buf, ':')
	return buf
}

// makeMessageContextKey generates a composite key for the chronological
// message index. Written in big-endian order so lexicographic sort matches
// chronological order.
// Format: msgctx:<contextID>:<timestamp BE><id BE>
func makeMessageContextKey(contextID string, timestamp time.Time, id core.ID) []byte {
	prefix := makeMessageContextPrefix(contextID)
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// splitMessageContextKey extracts the context ID and timestamp from a
// chronological index key. The context ID may itself contain separators, so
// it is recovered from the fixed-width tail: the final 16 bytes hold the
// timestamp and ID, preceded by one separator byte.
func splitMessageContextKey(key []byte) (contextID string, timestamp time.Time, ok bool) {
	head := len(messageContextPrefix) + 1
	if len(key) < head+17 {
		return "", time.Time{}, false
	}
	contextID = string(key[head : len(key)-17])
	micros := int64(binary.BigEndian.Uint64(key[len(key)-16 : len(key)-8]))
	return contextID, time.UnixMicro(micros).UTC(), true
}

// prefixUpperBound returns a key sorting after every key with the given
// prefix, used as the seek target for reverse iteration.
func prefixUpperBound(prefix []byte) []byte {
	buf := make([]byte, len(prefix)+16)
	copy(buf, prefix)
	for i := len(prefix); i < len(buf); i++ {
		buf[i] = 0xFF
	}
	return buf
}
