// Package openai implements embeddings.Embedder on the OpenAI embeddings
// API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/embeddings"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = string(openai.SmallEmbedding3)

	// DefaultMaxInputChars truncates overlong input text. Roughly 8k tokens
	// at ~4 chars/token, the provider's input ceiling.
	DefaultMaxInputChars = 32000

	// DefaultMaxBatchItems bounds the item count per batch request.
	DefaultMaxBatchItems = 64

	// DefaultBatchTokenBudget bounds the approximate token total per batch
	// request, estimated at 4 chars per token.
	DefaultBatchTokenBudget = 8000

	// DefaultBatchConcurrency bounds concurrent chunk requests.
	DefaultBatchConcurrency = 4

	// DefaultRetryDelay is the backoff used for a rate-limited chunk.
	// go-openai's APIError does not surface the Retry-After header, so the
	// delay is a fixed approximation of the provider-specified wait.
	DefaultRetryDelay = 2 * time.Second
)

// Config holds configuration for the OpenAI embedder.
type Config struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string

	// Model is the embedding model tag. Defaults to DefaultModel.
	Model string

	// MaxInputChars truncates input text. Defaults to DefaultMaxInputChars.
	MaxInputChars int

	// MaxBatchItems bounds items per batch chunk.
	MaxBatchItems int

	// BatchTokenBudget bounds the approximate token total per chunk.
	BatchTokenBudget int

	// BatchConcurrency bounds concurrent chunk requests.
	BatchConcurrency int

	// RetryDelay is the rate-limit backoff. Defaults to DefaultRetryDelay.
	RetryDelay time.Duration
}

// Embedder wraps the OpenAI embeddings API.
type Embedder struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

// NewEmbedder creates an OpenAI-backed embedder.
func NewEmbedder(cfg Config, logger *zap.Logger) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = DefaultMaxBatchItems
	}
	if cfg.BatchTokenBudget <= 0 {
		cfg.BatchTokenBudget = DefaultBatchTokenBudget
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Embedder{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Model returns the configured embedding model tag.
func (e *Embedder) Model() string {
	return e.cfg.Model
}

// Embed converts one text into an embedding.
func (e *Embedder) Embed(ctx context.Context, text string) (embeddings.Result, error) {
	results, err := e.embedChunk(ctx, []string{e.truncate(text)})
	if err != nil {
		return embeddings.Result{}, err
	}

	return results[0], nil
}

// EmbedBatch converts many texts in provider-size-limited chunks issued with
// bounded concurrency. Results are returned in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]embeddings.Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = e.truncate(t)
	}

	chunks := e.chunk(truncated)
	results := make([]embeddings.Result, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, e.cfg.BatchConcurrency)

	for _, ch := range chunks {
		wg.Add(1)
		go func(ch chunkRange) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			chunkResults, err := e.embedChunk(ctx, truncated[ch.start:ch.end])

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			copy(results[ch.start:ch.end], chunkResults)
		}(ch)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return results, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

type chunkRange struct {
	start, end int
}

// chunk splits texts into contiguous ranges bounded by MaxBatchItems and the
// approximate token budget (4 chars per token).
func (e *Embedder) chunk(texts []string) []chunkRange {
	var chunks []chunkRange

	start := 0
	tokens := 0
	for i, t := range texts {
		estimate := len(t)/4 + 1
		if i > start && (i-start >= e.cfg.MaxBatchItems || tokens+estimate > e.cfg.BatchTokenBudget) {
			chunks = append(chunks, chunkRange{start: start, end: i})
			start = i
			tokens = 0
		}
		tokens += estimate
	}

	if start < len(texts) {
		chunks = append(chunks, chunkRange{start: start, end: len(texts)})
	}

	return chunks
}

// embedChunk issues one embedding request, retrying once after the backoff
// delay when the provider rate-limits it.
func (e *Embedder) embedChunk(ctx context.Context, texts []string) ([]embeddings.Result, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.cfg.Model),
	})
	if err != nil && isRateLimit(err) {
		e.logger.Warn("embedding chunk rate limited, backing off",
			zap.Duration("delay", e.cfg.RetryDelay),
			zap.Int("items", len(texts)),
		)

		select {
		case <-time.After(e.cfg.RetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(e.cfg.Model),
		})
		if err != nil && isRateLimit(err) {
			return nil, fmt.Errorf("%w: %v", embeddings.ErrRateLimited, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embeddings.ErrEmbedding, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			embeddings.ErrEmbedding, len(resp.Data), len(texts))
	}

	// The provider reports usage per request; attribute it to the first
	// result so batch totals stay accurate when summed.
	results := make([]embeddings.Result, len(resp.Data))
	for i, data := range resp.Data {
		results[i] = embeddings.Result{Vector: data.Embedding}
	}
	results[0].Usage = embeddings.Usage{
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}

	return results, nil
}

func (e *Embedder) truncate(text string) string {
	if len(text) <= e.cfg.MaxInputChars {
		return text
	}
	return text[:e.cfg.MaxInputChars]
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}
