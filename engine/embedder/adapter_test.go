package embedder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	dimension int
	calls     atomic.Int64
	fail      bool
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, errors.New("provider unavailable")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = s.vector(text)
	}
	return vectors, nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, errors.New("provider unavailable")
	}
	return s.vector(text), nil
}

func (s *stubEmbedder) vector(text string) []float32 {
	out := make([]float32, s.dimension)
	for i := 0; i < s.dimension && i < len(text); i++ {
		out[i] = float32(text[i])
	}
	return out
}

func testConfig(cacheSize int) *Config {
	return &Config{
		Provider:  ProviderOpenAI,
		Model:     "text-embedding-3-small",
		Dimension: 4,
		BatchSize: 8,
		CacheSize: cacheSize,
	}
}

func TestAdapter(t *testing.T) {
	ctx := context.Background()

	t.Run("Should embed documents through the implementation", func(t *testing.T) {
		stub := &stubEmbedder{dimension: 4}
		adapter, err := Wrap(testConfig(0), stub)
		require.NoError(t, err)
		vectors, err := adapter.EmbedDocuments(ctx, []string{"one", "two"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Len(t, vectors[0], 4)
	})

	t.Run("Should serve repeated queries from the cache", func(t *testing.T) {
		stub := &stubEmbedder{dimension: 4}
		adapter, err := Wrap(testConfig(16), stub)
		require.NoError(t, err)
		first, err := adapter.EmbedQuery(ctx, "hello")
		require.NoError(t, err)
		second, err := adapter.EmbedQuery(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int64(1), stub.calls.Load())
	})

	t.Run("Should only embed cache misses in a batch", func(t *testing.T) {
		stub := &stubEmbedder{dimension: 4}
		adapter, err := Wrap(testConfig(16), stub)
		require.NoError(t, err)
		_, err = adapter.EmbedQuery(ctx, "cached")
		require.NoError(t, err)
		vectors, err := adapter.EmbedDocuments(ctx, []string{"cached", "fresh", "cached"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.Equal(t, vectors[0], vectors[2])
		assert.Equal(t, int64(2), stub.calls.Load())
	})

	t.Run("Should reject vectors with the wrong dimension", func(t *testing.T) {
		stub := &stubEmbedder{dimension: 3}
		adapter, err := Wrap(testConfig(0), stub)
		require.NoError(t, err)
		_, err = adapter.EmbedQuery(ctx, "hello")
		require.Error(t, err)
	})

	t.Run("Should wrap provider failures with context", func(t *testing.T) {
		stub := &stubEmbedder{dimension: 4, fail: true}
		adapter, err := Wrap(testConfig(0), stub)
		require.NoError(t, err)
		_, err = adapter.EmbedDocuments(ctx, []string{"one"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai")
	})

	t.Run("Should validate config", func(t *testing.T) {
		_, err := Wrap(&Config{Model: "m", Dimension: 4, BatchSize: 8}, &stubEmbedder{dimension: 4})
		require.ErrorIs(t, err, errMissingProvider)
		_, err = Wrap(&Config{Provider: ProviderOpenAI, Dimension: 4, BatchSize: 8}, &stubEmbedder{dimension: 4})
		require.ErrorIs(t, err, errMissingModel)
		_, err = Wrap(&Config{Provider: ProviderOpenAI, Model: "m", BatchSize: 8}, &stubEmbedder{dimension: 4})
		require.ErrorIs(t, err, errInvalidDimension)
		_, err = Wrap(&Config{Provider: ProviderOpenAI, Model: "m", Dimension: 4}, &stubEmbedder{dimension: 4})
		require.ErrorIs(t, err, errInvalidBatchSize)
	})
}
