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


package worker

import (
	"fmt"
	"time"
)

// Config holds the scheduling parameters of the background worker.
type Config struct {
	// BatchSize is the maximum number of contexts attempted per cycle.
	// Default: 5.
	BatchSize int

	// Interval is the scheduling period between cycles. Default: 5m.
	// Changing it on a running worker does not re-arm the ticker; restart
	// the worker for a new interval to take effect.
	Interval time.Duration

	// MessagesThreshold is the minimum number of new non-empty messages for
	// a context to qualify as a candidate. Default: 10.
	MessagesThreshold int

	// RecencyWindow bounds how far back the candidate query looks.
	// Default: 24h.
	RecencyWindow time.Duration

	// MaxRetries is the number of attempts for a context's indexing call.
	// Default: 3.
	MaxRetries int

	// RetryBaseDelay is the base delay for exponential backoff between
	// attempts. Default: 1s.
	RetryBaseDelay time.Duration

	// Enabled controls whether the worker schedules cycles. Toggling it via
	// UpdateConfig starts or stops the worker accordingly. Default: true.
	Enabled bool
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:         5,
		Interval:          5 * time.Minute,
		MessagesThreshold: 10,
		RecencyWindow:     24 * time.Hour,
		MaxRetries:        3,
		RetryBaseDelay:    1 * time.Second,
		Enabled:           true,
	}
}

// Validate rejects unusable configurations at construction time.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidConfig, c.Interval)
	}
	if c.MessagesThreshold <= 0 {
		return fmt.Errorf("%w: messages threshold must be positive, got %d", ErrInvalidConfig, c.MessagesThreshold)
	}
	if c.RecencyWindow <= 0 {
		return fmt.Errorf("%w: recency window must be positive, got %v", ErrInvalidConfig, c.RecencyWindow)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be positive, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("%w: retry base delay must be positive, got %v", ErrInvalidConfig, c.RetryBaseDelay)
	}
	return nil
}
