// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// A provider maps text to dense float32 vectors (OpenAI text-embedding-3, a
// local Ollama model). The memory layer uses these vectors for semantic
// retrieval over episodic events, summaries, and entity facts.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different Provider
// instances must not be mixed in one similarity computation unless both use
// the same model.
type Provider interface {
	// Embed computes the embedding for a single text. Returns a float32
	// slice of length Dimensions() or an error. Text is passed to the
	// model verbatim; any model-specific prefixing is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embeddings for a slice of texts in one provider
	// call. The returned slice matches texts in length and order. On
	// error the entire result is nil; partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by
	// this provider, constant for the Provider's lifetime.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for
	// logging and for keeping a session on one consistent model.
	ModelID() string
}
