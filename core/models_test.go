package core

import (
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "same content produces same ID",
			content: "test content",
		},
		{
			name:    "empty string",
			content: "",
		},
		{
			name:    "long content",
			content: "This is a much longer piece of content that should still hash consistently",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestMessageID_Deterministic(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC)

	id1 := MessageID("ctx-1", "alice", "hello", ts)
	id2 := MessageID("ctx-1", "alice", "hello", ts)

	if id1 != id2 {
		t.Errorf("MessageID() produced different IDs for identical fields: %d vs %d", id1, id2)
	}
}

func TestMessageID_FieldSensitivity(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC)
	base := MessageID("ctx-1", "alice", "hello", ts)

	tests := []struct {
		name string
		id   ID
	}{
		{"different context", MessageID("ctx-2", "alice", "hello", ts)},
		{"different sender", MessageID("ctx-1", "bob", "hello", ts)},
		{"different content", MessageID("ctx-1", "alice", "goodbye", ts)},
		{"different timestamp", MessageID("ctx-1", "alice", "hello", ts.Add(time.Second))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.id == base {
				t.Errorf("MessageID() collided with base ID %d", base)
			}
		})
	}
}

func TestMessageID_TimezoneInsensitive(t *testing.T) {
	utc := time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC)
	offset := utc.In(time.FixedZone("UTC+2", 2*60*60))

	id1 := MessageID("ctx-1", "alice", "hello", utc)
	id2 := MessageID("ctx-1", "alice", "hello", offset)

	if id1 != id2 {
		t.Errorf("MessageID() sensitive to timezone representation: %d vs %d", id1, id2)
	}
}
