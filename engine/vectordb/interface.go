package vectordb

import (
	"context"
	"errors"
)

// Provider enumerates supported vector database backends.
type Provider string

const (
	ProviderPGVector Provider = "pgvector"
	ProviderQdrant   Provider = "qdrant"
	// ProviderFilesystem persists embeddings to a local JSON snapshot.
	ProviderFilesystem Provider = "filesystem"
	// ProviderMemory keeps embeddings in process memory, for tests and demos.
	ProviderMemory Provider = "memory"
)

// ErrNoDocumentFilter is returned by Search when no document ids are given.
// Every query must be scoped to an explicit document set so one caller's
// documents never leak into another's results.
var ErrNoDocumentFilter = errors.New("vectordb: search requires at least one document id")

// Record is a chunk persisted to the vector store.
type Record struct {
	ID         string
	DocumentID string
	Text       string
	Pages      []int
	Embedding  []float32
}

// SearchOptions controls similarity search execution. DocumentIDs is the
// mandatory scope: only records belonging to one of the listed documents are
// considered.
type SearchOptions struct {
	TopK        int
	MinScore    float64
	DocumentIDs []string
}

// Match is a similarity search result.
type Match struct {
	ID         string
	DocumentID string
	Score      float64
	Text       string
	Pages      []int
}

// Filter specifies delete criteria. IDs removes individual records;
// DocumentID removes every record of a document.
type Filter struct {
	IDs        []string
	DocumentID string
}

// Store exposes the minimal contract for ingestion and retrieval.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Delete(ctx context.Context, filter Filter) error
	Close(ctx context.Context) error
}

// Config captures normalized connection details for a vector database.
type Config struct {
	Provider    Provider
	DSN         string
	Path        string
	Table       string
	Collection  string
	Index       string
	EnsureIndex bool
	Metric      string
	Dimension   int
	Auth        map[string]string
	MaxTopK     int
}
