package vectordb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should persist records across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vectors.json")
		store, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, []Record{
			{ID: "a", DocumentID: "doc1", Text: "alpha", Embedding: []float32{1, 0}, Pages: []int{1, 2}},
		}))
		require.NoError(t, store.Close(ctx))

		reopened, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		matches, err := reopened.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 1, DocumentIDs: []string{"doc1"}})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, []int{1, 2}, matches[0].Pages)
	})

	t.Run("Should reject reopening with a different dimension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vectors.json")
		store, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, []Record{
			{ID: "a", DocumentID: "doc1", Embedding: []float32{1, 0}},
		}))
		_, err = newFileStore(&Config{Path: path, Dimension: 3})
		require.Error(t, err)
	})

	t.Run("Should remove deleted documents from the snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vectors.json")
		store, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, []Record{
			{ID: "a", DocumentID: "doc1", Embedding: []float32{1, 0}},
			{ID: "b", DocumentID: "doc2", Embedding: []float32{0, 1}},
		}))
		require.NoError(t, store.Delete(ctx, Filter{DocumentID: "doc1"}))

		reopened, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		matches, err := reopened.Search(ctx, []float32{1, 0}, SearchOptions{
			TopK:        5,
			DocumentIDs: []string{"doc1", "doc2"},
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "b", matches[0].ID)
	})

	t.Run("Should leave no temp file after a snapshot write", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vectors.json")
		store, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, []Record{
			{ID: "a", DocumentID: "doc1", Embedding: []float32{1, 0}},
		}))
		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))
	})
}

func TestValidateConfig(t *testing.T) {
	t.Run("Should require a provider", func(t *testing.T) {
		err := validateConfig(&Config{Dimension: 2})
		require.ErrorIs(t, err, errMissingProvider)
	})
	t.Run("Should require a dsn for pgvector", func(t *testing.T) {
		err := validateConfig(&Config{Provider: ProviderPGVector, Dimension: 2})
		require.ErrorIs(t, err, errMissingDSN)
	})
	t.Run("Should require a path for filesystem", func(t *testing.T) {
		err := validateConfig(&Config{Provider: ProviderFilesystem, Dimension: 2})
		require.ErrorIs(t, err, errMissingPath)
	})
	t.Run("Should require a positive dimension", func(t *testing.T) {
		err := validateConfig(&Config{Provider: ProviderMemory})
		require.ErrorIs(t, err, errInvalidDimension)
	})
}

func TestClampTopK(t *testing.T) {
	assert.Equal(t, defaultTopK, clampTopK(0, 0))
	assert.Equal(t, 3, clampTopK(3, 0))
	assert.Equal(t, 2, clampTopK(10, 2))
}
