package vectordb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Should never mix id and filter selectors in one request", func(t *testing.T) {
		var deletes []map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/points/delete") {
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				var request map[string]any
				require.NoError(t, json.Unmarshal(body, &request))
				deletes = append(deletes, request)
			}
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		store, err := New(ctx, &Config{
			Provider:  ProviderQdrant,
			DSN:       server.URL,
			Dimension: 2,
		})
		require.NoError(t, err)
		defer store.Close(ctx)

		require.NoError(t, store.Delete(ctx, Filter{
			IDs:        []string{"c1", "c2"},
			DocumentID: "doc1",
		}))

		require.Len(t, deletes, 2)
		assert.Contains(t, deletes[0], "points")
		assert.NotContains(t, deletes[0], "filter")
		assert.Contains(t, deletes[1], "filter")
		assert.NotContains(t, deletes[1], "points")
	})

	t.Run("Should skip the request entirely for an empty filter", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/points/delete") {
				requests++
			}
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		store, err := New(ctx, &Config{
			Provider:  ProviderQdrant,
			DSN:       server.URL,
			Dimension: 2,
		})
		require.NoError(t, err)
		defer store.Close(ctx)

		require.NoError(t, store.Delete(ctx, Filter{}))
		assert.Zero(t, requests)
	})
}
