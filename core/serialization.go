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


package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the value types persisted in the store.
// Timestamps are encoded as Unix microseconds.
var (
	IDMUS      = idMUS{}
	MessageMUS = messageMUS{}
	RecordMUS  = recordMUS{}
)

type idMUS struct{}

func (s idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	num, n, err := varint.Uint64.Unmarshal(bs)
	return ID(num), n, err
}

func (s idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

func (s idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

func marshalTime(v time.Time, bs []byte) (n int) {
	return varint.Int64.Marshal(v.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (v time.Time, n int, err error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func sizeTime(v time.Time) (size int) {
	return varint.Int64.Size(v.UnixMicro())
}

type messageMUS struct{}

func (s messageMUS) Marshal(v Message, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.ContextID, bs[n:])
	n += ord.String.Marshal(v.Sender, bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += varint.Int.Marshal(int(v.ContextType), bs[n:])
	n += marshalTime(v.Timestamp, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	return n
}

func (s messageMUS) Unmarshal(bs []byte) (v Message, n int, err error) {
	var n1 int
	if v.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if v.ContextID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.Sender, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.Content, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	var ct int
	if ct, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	v.ContextType = ContextType(ct)
	n += n1
	if v.Timestamp, n1, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.InsertedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	return v, n, nil
}

func (s messageMUS) Size(v Message) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.ContextID)
	size += ord.String.Size(v.Sender)
	size += ord.String.Size(v.Content)
	size += varint.Int.Size(int(v.ContextType))
	size += sizeTime(v.Timestamp)
	size += sizeTime(v.InsertedAt)
	return size
}

type recordMUS struct{}

func (s recordMUS) Marshal(v EmbeddingRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.ContextID, bs)
	n += varint.Int.Marshal(len(v.MessageIDs), bs[n:])
	for _, id := range v.MessageIDs {
		n += IDMUS.Marshal(id, bs[n:])
	}
	n += ord.String.Marshal(v.Content, bs[n:])
	n += varint.Int64.Marshal(v.ChunkIndex, bs[n:])
	n += marshalTime(v.StartTime, bs[n:])
	n += marshalTime(v.EndTime, bs[n:])
	n += varint.Int.Marshal(v.SenderCount, bs[n:])
	n += varint.Int.Marshal(v.MessageCount, bs[n:])
	n += varint.Int.Marshal(v.TokenEstimate, bs[n:])
	n += varint.Int.Marshal(len(v.Vector), bs[n:])
	for _, f := range v.Vector {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	n += varint.Int.Marshal(int(v.ContextType), bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	return n
}

func (s recordMUS) Unmarshal(bs []byte) (v EmbeddingRecord, n int, err error) {
	var n1 int
	if v.ContextID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	var count int
	if count, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if count > 0 {
		v.MessageIDs = make([]ID, count)
		for i := 0; i < count; i++ {
			if v.MessageIDs[i], n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
				return v, n + n1, err
			}
			n += n1
		}
	}
	if v.Content, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.ChunkIndex, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.StartTime, n1, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.EndTime, n1, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.SenderCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.MessageCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.TokenEstimate, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	var dim int
	if dim, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if dim > 0 {
		v.Vector = make([]float32, dim)
		for i := 0; i < dim; i++ {
			if v.Vector[i], n1, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
				return v, n + n1, err
			}
			n += n1
		}
	}
	var ct int
	if ct, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	v.ContextType = ContextType(ct)
	n += n1
	if v.CreatedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	return v, n, nil
}

func (s recordMUS) Size(v EmbeddingRecord) (size int) {
	size = ord.String.Size(v.ContextID)
	size += varint.Int.Size(len(v.MessageIDs))
	for _, id := range v.MessageIDs {
		size += IDMUS.Size(id)
	}
	size += ord.String.Size(v.Content)
	size += varint.Int64.Size(v.ChunkIndex)
	size += sizeTime(v.StartTime)
	size += sizeTime(v.EndTime)
	size += varint.Int.Size(v.SenderCount)
	size += varint.Int.Size(v.MessageCount)
	size += varint.Int.Size(v.TokenEstimate)
	size += varint.Int.Size(len(v.Vector))
	for _, f := range v.Vector {
		size += raw.Float32.Size(f)
	}
	size += varint.Int.Size(int(v.ContextType))
	size += sizeTime(v.CreatedAt)
	return size
}
