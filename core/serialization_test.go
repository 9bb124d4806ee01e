package core

import (
	"testing"
	"time"
)

func TestMessageMUS_Roundtrip(t *testing.T) {
	original := Message{
		Id:          IDFromContent("msg-1"),
		ContextID:   "whatsapp:+15551234@g.us",
		Sender:      "alice",
		Content:     "see you at noon, 世界",
		ContextType: ContextTypeGroup,
		Timestamp:   time.Date(2026, 2, 3, 10, 15, 30, 123456000, time.UTC),
		InsertedAt:  time.Date(2026, 2, 3, 10, 15, 31, 0, time.UTC),
	}

	bs := make([]byte, MessageMUS.Size(original))
	n := MessageMUS.Marshal(original, bs)
	if n != len(bs) {
		t.Fatalf("Marshal wrote %d bytes, Size reported %d", n, len(bs))
	}

	decoded, n, err := MessageMUS.Unmarshal(bs)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if n != len(bs) {
		t.Errorf("Unmarshal consumed %d bytes, expected %d", n, len(bs))
	}
	if decoded.Id != original.Id ||
		decoded.ContextID != original.ContextID ||
		decoded.Sender != original.Sender ||
		decoded.Content != original.Content ||
		decoded.ContextType != original.ContextType ||
		!decoded.Timestamp.Equal(original.Timestamp) ||
		!decoded.InsertedAt.Equal(original.InsertedAt) {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestMessageMUS_EmptyContent(t *testing.T) {
	original := Message{
		Id:          1,
		ContextID:   "ctx-1",
		Sender:      "bob",
		ContextType: ContextTypeDirect,
		Timestamp:   time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		InsertedAt:  time.Date(2026, 2, 3, 10, 0, 1, 0, time.UTC),
	}

	bs := make([]byte, MessageMUS.Size(original))
	MessageMUS.Marshal(original, bs)

	decoded, _, err := MessageMUS.Unmarshal(bs)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Content != "" {
		t.Errorf("Content = %q, want empty", decoded.Content)
	}
}

func TestRecordMUS_Roundtrip(t *testing.T) {
	original := EmbeddingRecord{
		Chunk: Chunk{
			ContextID:     "ctx-1",
			MessageIDs:    []ID{10, 11, 12},
			Content:       "alice: hi\nbob: hello",
			ChunkIndex:    7,
			StartTime:     time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC),
			EndTime:       time.Date(2026, 2, 3, 9, 5, 0, 0, time.UTC),
			SenderCount:   2,
			MessageCount:  3,
			TokenEstimate: 4,
		},
		Vector:      []float32{0.5, -0.25, 0.8164966},
		ContextType: ContextTypeDirect,
		CreatedAt:   time.Date(2026, 2, 3, 9, 6, 0, 0, time.UTC),
	}

	bs := make([]byte, RecordMUS.Size(original))
	n := RecordMUS.Marshal(original, bs)
	if n != len(bs) {
		t.Fatalf("Marshal wrote %d bytes, Size reported %d", n, len(bs))
	}

	decoded, n, err := RecordMUS.Unmarshal(bs)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if n != len(bs) {
		t.Errorf("Unmarshal consumed %d bytes, expected %d", n, len(bs))
	}

	if decoded.ContextID != original.ContextID ||
		decoded.Content != original.Content ||
		decoded.ChunkIndex != original.ChunkIndex ||
		!decoded.StartTime.Equal(original.StartTime) ||
		!decoded.EndTime.Equal(original.EndTime) ||
		decoded.SenderCount != original.SenderCount ||
		decoded.MessageCount != original.MessageCount ||
		decoded.TokenEstimate != original.TokenEstimate ||
		decoded.ContextType != original.ContextType ||
		!decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
	if len(decoded.MessageIDs) != 3 || decoded.MessageIDs[0] != 10 || decoded.MessageIDs[2] != 12 {
		t.Errorf("MessageIDs = %v, want %v", decoded.MessageIDs, original.MessageIDs)
	}
	if len(decoded.Vector) != 3 {
		t.Fatalf("Vector length = %d, want 3", len(decoded.Vector))
	}
	for i := range original.Vector {
		if decoded.Vector[i] != original.Vector[i] {
			t.Errorf("Vector[%d] = %v, want %v", i, decoded.Vector[i], original.Vector[i])
		}
	}
}

func TestRecordMUS_TruncatedInput(t *testing.T) {
	record := EmbeddingRecord{
		Chunk: Chunk{
			ContextID:  "ctx-1",
			Content:    "alice: hi",
			ChunkIndex: 1,
		},
		Vector:      []float32{0.1, 0.2},
		ContextType: ContextTypeDirect,
		CreatedAt:   time.Now().UTC(),
	}

	bs := make([]byte, RecordMUS.Size(record))
	RecordMUS.Marshal(record, bs)

	if _, _, err := RecordMUS.Unmarshal(bs[:len(bs)/2]); err == nil {
		t.Error("Unmarshal accepted truncated input")
	}
}
