package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagedex/pagedex/engine/registry"
	"github.com/pagedex/pagedex/engine/vectordb"
)

type stubQueryEmbedder struct {
	vector []float32
	err    error
}

func (s *stubQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

func newTestRegistry(t *testing.T, ids ...string) registry.Store {
	t.Helper()
	store, err := registry.NewFileStore(t.TempDir())
	require.NoError(t, err)
	uploaded := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range ids {
		require.NoError(t, store.Put(context.Background(), registry.Document{
			ID:         id,
			Status:     registry.StatusProcessed,
			UploadedAt: uploaded,
		}))
	}
	return store
}

func newTestStore(t *testing.T) vectordb.Store {
	t.Helper()
	store, err := vectordb.New(context.Background(), &vectordb.Config{
		Provider:  vectordb.ProviderMemory,
		Dimension: 2,
	})
	require.NoError(t, err)
	return store
}

func TestService(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, store vectordb.Store) {
		t.Helper()
		require.NoError(t, store.Upsert(ctx, []vectordb.Record{
			{ID: "c1", DocumentID: "doc1", Text: "alpha", Pages: []int{1}, Embedding: []float32{1, 0}},
			{ID: "c2", DocumentID: "doc1", Text: "beta", Pages: []int{2}, Embedding: []float32{0.9, 0.1}},
			{ID: "c3", DocumentID: "doc2", Text: "gamma", Pages: []int{1}, Embedding: []float32{0, 1}},
		}))
	}

	t.Run("Should rank results and derive relevance from rank", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store)
		reg := newTestRegistry(t, "doc1", "doc2")
		svc, err := NewService(&stubQueryEmbedder{vector: []float32{1, 0}}, store, reg, 5, 0)
		require.NoError(t, err)

		results, err := svc.Retrieve(ctx, "what is alpha", []string{"doc1", "doc2"})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "c1", results[0].ChunkID)
		assert.InDelta(t, 1.0, results[0].Relevance, 1e-9)
		assert.InDelta(t, 0.9, results[1].Relevance, 1e-9)
		assert.InDelta(t, 0.8, results[2].Relevance, 1e-9)
		assert.Equal(t, []int{1}, results[0].Pages)
	})

	t.Run("Should never return chunks outside the document scope", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store)
		reg := newTestRegistry(t, "doc1", "doc2")
		svc, err := NewService(&stubQueryEmbedder{vector: []float32{0, 1}}, store, reg, 5, 0)
		require.NoError(t, err)

		results, err := svc.Retrieve(ctx, "gamma", []string{"doc1"})
		require.NoError(t, err)
		for _, result := range results {
			assert.Equal(t, "doc1", result.DocumentID)
		}
	})

	t.Run("Should return no results when the scope is empty", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store)
		reg := newTestRegistry(t)
		svc, err := NewService(&stubQueryEmbedder{vector: []float32{1, 0}}, store, reg, 5, 0)
		require.NoError(t, err)

		results, err := svc.Retrieve(ctx, "anything", nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Should degrade to no results when embedding fails", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store)
		reg := newTestRegistry(t, "doc1")
		svc, err := NewService(&stubQueryEmbedder{err: errors.New("provider down")}, store, reg, 5, 0)
		require.NoError(t, err)

		results, err := svc.Retrieve(ctx, "anything", []string{"doc1"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Should reject a blank query", func(t *testing.T) {
		store := newTestStore(t)
		reg := newTestRegistry(t)
		svc, err := NewService(&stubQueryEmbedder{vector: []float32{1, 0}}, store, reg, 5, 0)
		require.NoError(t, err)
		_, err = svc.Retrieve(ctx, "   ", []string{"doc1"})
		require.Error(t, err)
	})

	t.Run("Should record an access for every document in the query scope", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store)
		reg := newTestRegistry(t, "doc1", "doc2", "doc3")
		queried := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
		svc, err := NewService(&stubQueryEmbedder{vector: []float32{1, 0}}, store, reg, 1, 0)
		require.NoError(t, err)
		svc.WithClock(func() time.Time { return queried })

		// doc2 is in scope but crowded out of top-k; it still counts as
		// accessed. doc3 stays outside the scope and keeps its upload time.
		results, err := svc.Retrieve(ctx, "alpha", []string{"doc1", "doc2"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc1", results[0].DocumentID)

		for _, id := range []string{"doc1", "doc2"} {
			last, err := reg.LastAccess(ctx, id)
			require.NoError(t, err)
			assert.True(t, last.Equal(queried), "document %s", id)
		}
		untouched, err := reg.LastAccess(ctx, "doc3")
		require.NoError(t, err)
		assert.False(t, untouched.Equal(queried))
	})

	t.Run("Should record accesses even when embedding fails", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store)
		reg := newTestRegistry(t, "doc1")
		queried := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
		svc, err := NewService(&stubQueryEmbedder{err: errors.New("provider down")}, store, reg, 5, 0)
		require.NoError(t, err)
		svc.WithClock(func() time.Time { return queried })

		results, err := svc.Retrieve(ctx, "anything", []string{"doc1"})
		require.NoError(t, err)
		assert.Empty(t, results)

		last, err := reg.LastAccess(ctx, "doc1")
		require.NoError(t, err)
		assert.True(t, last.Equal(queried))
	})
}
