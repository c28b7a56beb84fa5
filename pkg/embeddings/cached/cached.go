// Package cached wraps any embeddings.Embedder with read-through caching
// keyed by a content hash of the normalized input text. The batch path does
// a single MGet round trip, embeds only the misses, and writes every newly
// computed embedding back with a single MSet.
package cached

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mnemohq/mnemo/pkg/cache"
	"github.com/mnemohq/mnemo/pkg/embeddings"
)

// DefaultTTL is the embedding cache TTL. Embeddings are content-addressed so
// a long TTL is safe; the bound exists to let model upgrades roll through.
const DefaultTTL = 7 * 24 * time.Hour

// Embedder decorates an inner embedder with cache lookups.
type Embedder struct {
	inner embeddings.Embedder
	cache cache.Cache
	ttl   time.Duration
}

// New wraps inner with the cache. A zero ttl uses DefaultTTL.
func New(inner embeddings.Embedder, c cache.Cache, ttl time.Duration) *Embedder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Embedder{inner: inner, cache: c, ttl: ttl}
}

// ContentHash returns the cache key for a text: sha256 over the trimmed,
// whitespace-folded, lowercased text.
func ContentHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached embedding for the text, computing and storing it
// on miss.
func (e *Embedder) Embed(ctx context.Context, text string) (embeddings.Result, error) {
	var usage embeddings.Usage

	raw, err := e.cache.GetOrSet(ctx, cache.NamespaceEmbeddings, ContentHash(text), e.ttl,
		func(ctx context.Context) ([]byte, error) {
			result, err := e.inner.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			usage = result.Usage
			return encodeVector(result.Vector), nil
		})
	if err != nil {
		return embeddings.Result{}, err
	}

	vector, err := decodeVector(raw)
	if err != nil {
		return embeddings.Result{}, err
	}

	return embeddings.Result{Vector: vector, Usage: usage}, nil
}

// EmbedBatch resolves every text through one MGet, embeds only the uncached
// texts through the inner embedder, and stores the new embeddings with one
// MSet. Results are returned in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]embeddings.Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	hashes := make([]string, len(texts))
	for i, t := range texts {
		hashes[i] = ContentHash(t)
	}

	cachedVals, err := e.cache.MGet(ctx, cache.NamespaceEmbeddings, hashes)
	if err != nil {
		cachedVals = make([][]byte, len(texts))
	}

	results := make([]embeddings.Result, len(texts))
	var missIdx []int
	for i, raw := range cachedVals {
		if raw == nil {
			missIdx = append(missIdx, i)
			continue
		}
		vector, decodeErr := decodeVector(raw)
		if decodeErr != nil {
			missIdx = append(missIdx, i)
			continue
		}
		results[i].Vector = vector
	}

	if len(missIdx) == 0 {
		return results, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}

	computed, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	entries := make(map[string][]byte, len(missIdx))
	for j, i := range missIdx {
		results[i] = computed[j]
		entries[hashes[i]] = encodeVector(computed[j].Vector)
	}

	_ = e.cache.MSet(ctx, cache.NamespaceEmbeddings, entries, e.ttl)

	return results, nil
}

// Close closes the inner embedder.
func (e *Embedder) Close() error {
	return e.inner.Close()
}

// encodeVector serializes a float32 slice as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes a little-endian byte slice back to float32s.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
