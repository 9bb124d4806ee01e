// Package core defines the domain model for conversation memory indexing:
// messages, chunks, embedding records, identifiers, and their validation
// rules and binary serializers.
package core
