package port

import "context"

// EmbeddingProvider abstracts the embedding backend. Implementations must
// be deterministic for a given model version: the same text always maps to
// the same fixed-dimension vector.
type EmbeddingProvider interface {
	// ModelName returns the identifier of the embedding model in use.
	ModelName() string

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
