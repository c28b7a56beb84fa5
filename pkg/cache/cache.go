// Package cache provides a namespace-scoped key/value cache with TTL,
// read-through lookups, and batch operations. Backends live in subpackages:
// redis for deployments, memory for tests and cache-less profiles.
//
// Backends are best-effort: a failing backend degrades to a cache miss and
// must never fail the calling retrieval path. GetOrSet therefore always
// invokes the factory on backend failure and returns the factory's result.
package cache

import (
	"context"
	"time"
)

// Factory computes a value on cache miss for GetOrSet.
type Factory func(ctx context.Context) ([]byte, error)

// Cache is the namespaced cache contract. Values are opaque byte slices;
// callers own serialization.
type Cache interface {
	// Get returns the value for key within ns, or ErrMiss when absent or
	// expired. Backend failures are reported as ErrMiss.
	Get(ctx context.Context, ns, key string) ([]byte, error)

	// Set stores the value under ns/key with the given TTL.
	Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error

	// GetOrSet returns the cached value when present; otherwise it invokes
	// factory, stores the result with the TTL, and returns it. There is no
	// single-flight guarantee: concurrent callers may each invoke factory.
	GetOrSet(ctx context.Context, ns, key string, ttl time.Duration, factory Factory) ([]byte, error)

	// MGet returns one value per key, nil for misses, in key order.
	MGet(ctx context.Context, ns string, keys []string) ([][]byte, error)

	// MSet stores all entries with a shared TTL in one round trip.
	MSet(ctx context.Context, ns string, entries map[string][]byte, ttl time.Duration) error

	// ClearNamespace removes every key in the namespace.
	ClearNamespace(ctx context.Context, ns string) error

	// Close releases backend resources.
	Close() error
}

// Namespaces used across the retrieval core. Components only read and write
// within their own namespace; there are no cross-namespace invariants.
const (
	// NamespaceEmbeddings memoizes embeddings by content hash.
	NamespaceEmbeddings = "emb"

	// NamespaceRecent memoizes recent-message lists per channel.
	NamespaceRecent = "recent"

	// NamespaceContext memoizes assembled context bundles.
	NamespaceContext = "ctx"
)

// Key joins a namespace and key into the backend key form.
func Key(ns, key string) string {
	return ns + ":" + key
}
