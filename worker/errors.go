package worker

import "errors"

var (
	// ErrAlreadyProcessing is returned by ProcessContextNow when the context
	// is already in the processing set, scheduled or manual.
	ErrAlreadyProcessing = errors.New("context is already being processed")

	// ErrServiceRequired is returned when an indexing service is not provided.
	ErrServiceRequired = errors.New("indexing service required")

	// ErrMessageStoreRequired is returned when a message store is not provided.
	ErrMessageStoreRequired = errors.New("message store required")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidMaxAttempts is returned when retry is configured with a
	// non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")
)
