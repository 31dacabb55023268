package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("ShouldReturnDefaultsWithoutEnvironment", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 1000, cfg.Chunking.Size)
		assert.Equal(t, 200, cfg.Chunking.Overlap)
		assert.Equal(t, "standard", cfg.Chunking.Method)
		assert.Equal(t, 7, cfg.Retention.Days)
		assert.Equal(t, 24*time.Hour, cfg.Retention.SweepEvery)
		assert.Equal(t, 5, cfg.Retrieval.TopK)
	})

	t.Run("ShouldOverrideFromEnvironment", func(t *testing.T) {
		t.Setenv("PAGEDEX_CHUNK_SIZE", "500")
		t.Setenv("PAGEDEX_CHUNK_OVERLAP", "100")
		t.Setenv("PAGEDEX_RETENTION_DAYS", "3")
		t.Setenv("PAGEDEX_VECTOR_DB_PROVIDER", "memory")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 500, cfg.Chunking.Size)
		assert.Equal(t, 100, cfg.Chunking.Overlap)
		assert.Equal(t, 3, cfg.Retention.Days)
		assert.Equal(t, "memory", cfg.VectorDB.Provider)
	})

	t.Run("ShouldRejectInvalidChunkMethod", func(t *testing.T) {
		t.Setenv("PAGEDEX_CHUNK_METHOD", "mystery")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("ShouldComputeRetentionWindow", func(t *testing.T) {
		cfg := Default()
		cfg.Retention.Days = 7
		assert.Equal(t, 7*24*time.Hour, cfg.RetentionWindow())
	})
}

func TestEnvMappings(t *testing.T) {
	t.Run("ShouldMapNestedFields", func(t *testing.T) {
		mappings := envMappings(reflect.TypeOf(Config{}), "")
		assert.Equal(t, "chunking.size", mappings["PAGEDEX_CHUNK_SIZE"])
		assert.Equal(t, "vector_db.provider", mappings["PAGEDEX_VECTOR_DB_PROVIDER"])
		assert.Equal(t, "retention.sweep_every", mappings["PAGEDEX_RETENTION_SWEEP_EVERY"])
	})
}
