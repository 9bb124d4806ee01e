// Package ai defines the embedding provider abstraction used by the indexing
// and retrieval service, along with its configuration. Concrete providers
// live in subpackages: openai for OpenAI-compatible services, mock for tests.
package ai
