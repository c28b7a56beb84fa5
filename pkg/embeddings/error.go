package embeddings

import "errors"

var (
	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrRateLimited is returned when the provider rejects a request for
	// rate-limit reasons after retries are exhausted.
	ErrRateLimited = errors.New("embedding provider rate limited")
)
