// Package embeddings defines the text-embedding provider contract used by
// the retrieval core.
package embeddings

import "context"

// Usage reports provider token accounting for an embedding call.
type Usage struct {
	PromptTokens int
	TotalTokens  int
}

// Result is a single embedding with its usage share.
type Result struct {
	// Vector is the fixed-length embedding.
	Vector []float32

	// Usage is the provider-reported token usage attributed to this text.
	Usage Usage
}

// Embedder converts text into vector embeddings. Callers are responsible for
// caching by content hash; providers are responsible for truncating overlong
// input.
type Embedder interface {
	// Embed converts one text into an embedding.
	Embed(ctx context.Context, text string) (Result, error)

	// EmbedBatch converts many texts in provider-size-limited chunks.
	// Results are returned in input order.
	EmbedBatch(ctx context.Context, texts []string) ([]Result, error)

	// Close releases any resources held by the embedder.
	Close() error
}
