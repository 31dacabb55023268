package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(&Config{Dimension: 4})

	t.Run("Should upsert and search by cosine similarity", func(t *testing.T) {
		records := []Record{
			{ID: "a", DocumentID: "doc1", Text: "alpha", Embedding: []float32{1, 0, 0, 0}, Pages: []int{1}},
			{ID: "b", DocumentID: "doc2", Text: "bravo", Embedding: []float32{0, 1, 0, 0}, Pages: []int{2}},
		}
		require.NoError(t, store.Upsert(ctx, records))
		matches, err := store.Search(ctx, []float32{1, 0, 0, 0}, SearchOptions{
			TopK:        1,
			DocumentIDs: []string{"doc1", "doc2"},
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "doc1", matches[0].DocumentID)
		assert.Equal(t, []int{1}, matches[0].Pages)
	})

	t.Run("Should scope results to the given documents", func(t *testing.T) {
		matches, err := store.Search(ctx, []float32{0, 1, 0, 0}, SearchOptions{
			TopK:        2,
			DocumentIDs: []string{"doc2"},
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "b", matches[0].ID)
	})

	t.Run("Should reject a search without a document scope", func(t *testing.T) {
		_, err := store.Search(ctx, []float32{1, 0, 0, 0}, SearchOptions{TopK: 1})
		require.ErrorIs(t, err, ErrNoDocumentFilter)
	})

	t.Run("Should delete every record of a document", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, Filter{DocumentID: "doc1"}))
		matches, err := store.Search(ctx, []float32{1, 0, 0, 0}, SearchOptions{
			TopK:        2,
			MinScore:    0.1,
			DocumentIDs: []string{"doc1"},
		})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("Should fail upsert on dimension mismatch", func(t *testing.T) {
		other := newMemoryStore(&Config{Dimension: 4})
		err := other.Upsert(ctx, []Record{{ID: "bad", DocumentID: "doc1", Embedding: []float32{1, 1, 1}}})
		require.Error(t, err)
	})

	t.Run("Should fail search on query dimension mismatch", func(t *testing.T) {
		other := newMemoryStore(&Config{Dimension: 2})
		require.NoError(t, other.Upsert(ctx, []Record{{ID: "c", DocumentID: "doc1", Embedding: []float32{1, 0}}}))
		_, err := other.Search(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 1, DocumentIDs: []string{"doc1"}})
		require.Error(t, err)
	})

	t.Run("Should cap results at the configured max top k", func(t *testing.T) {
		capped := newMemoryStore(&Config{Dimension: 2, MaxTopK: 1})
		records := []Record{
			{ID: "d", DocumentID: "doc1", Embedding: []float32{1, 0}},
			{ID: "e", DocumentID: "doc1", Embedding: []float32{0.9, 0.1}},
		}
		require.NoError(t, capped.Upsert(ctx, records))
		matches, err := capped.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 10, DocumentIDs: []string{"doc1"}})
		require.NoError(t, err)
		require.Len(t, matches, 1)
	})
}
