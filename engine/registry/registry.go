package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document id is not in the registry.
var ErrNotFound = errors.New("registry: document not found")

// Status tracks a document through its ingestion lifecycle.
type Status string

const (
	// StatusUploaded means the raw bytes are stored but ingestion has not
	// finished.
	StatusUploaded Status = "uploaded"
	// StatusProcessed means the document is chunked, embedded and queryable.
	StatusProcessed Status = "processed"
	// StatusError means ingestion failed; the document is not queryable.
	StatusError Status = "error"
)

// Document is the registry entry for one uploaded document. Method records
// the chunking method the document was ingested with, so a later reingest
// reproduces the same chunking even if the configured default has changed.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     Status    `json:"status"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	SizeBytes  int64     `json:"size_bytes"`
	Location   string    `json:"location,omitempty"`
	Method     string    `json:"method,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	Error      string    `json:"error,omitempty"`
}

// Store is the durable registry of documents plus their access times. The
// access times drive retention: a document whose last access falls behind the
// retention window is evicted.
type Store interface {
	Put(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (*Document, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Document, error)
	// Touch records an access for each id at the given instant.
	Touch(ctx context.Context, at time.Time, ids ...string) error
	// LastAccess returns the most recent access time of a document. A
	// document never touched reports its upload time.
	LastAccess(ctx context.Context, id string) (time.Time, error)
	// AccessedBefore lists the ids of documents whose last access is
	// strictly before the cutoff.
	AccessedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Close(ctx context.Context) error
}
