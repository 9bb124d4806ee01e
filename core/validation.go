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
	"fmt"
	"time"
)

// ValidateMessage validates a Message according to domain rules.
//
// Validation rules:
//   - ContextID must not be empty
//   - ContextType must be valid (direct or group)
//   - Timestamp must not be in the future
//
// NOT validated:
//   - Content (empty content is legal; such messages are skipped by indexing)
//   - ID (0 is valid before the store assigns one)
func ValidateMessage(message *Message) error {
	if message == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}

	if message.ContextID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyContextID)
	}

	if err := ValidateContextType(message.ContextType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if !IsValidTimestamp(message.Timestamp) {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateEmbeddingRecord validates an EmbeddingRecord before persistence.
//
// Validation rules:
//   - ContextID must not be empty
//   - Content must not be empty
//   - ChunkIndex must be positive
//   - Vector must not be empty
func ValidateEmbeddingRecord(record *EmbeddingRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.ContextID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyContextID)
	}

	if record.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyContent)
	}

	if record.ChunkIndex <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrInvalidChunkIndex)
	}

	if len(record.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyVector)
	}

	return nil
}

// ValidateContextType validates that a ContextType has a valid value.
func ValidateContextType(contextType ContextType) error {
	switch contextType {
	case ContextTypeDirect, ContextTypeGroup:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrInvalidContextType, contextType)
	}
}

// IsValidTimestamp reports whether a timestamp is not in the future.
// A small slack is allowed for clock skew between producers.
func IsValidTimestamp(timestamp time.Time) bool {
	return !timestamp.After(time.Now().UTC().Add(1 * time.Minute))
}
