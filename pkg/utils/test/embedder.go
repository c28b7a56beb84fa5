package testutils

import (
	"context"
	"fmt"

	"github.com/mnemohq/mnemo/pkg/embeddings"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// FailAll causes every call to fail
	FailAll bool

	// Calls counts Embed invocations, batch items included
	Calls int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) (embeddings.Result, error) {
	m.Calls++

	if m.FailAll {
		return embeddings.Result{}, fmt.Errorf("mock embedding failure")
	}
	if m.FailOn != "" && text == m.FailOn {
		return embeddings.Result{}, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return embeddings.Result{Vector: emb}, nil
	}

	// Return a default embedding for any text
	return embeddings.Result{Vector: []float32{0.1, 0.2, 0.3}}, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embeddings.Result, error) {
	results := make([]embeddings.Result, 0, len(texts))
	for _, text := range texts {
		result, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

func (m *MockEmbedder) Close() error {
	return nil
}
