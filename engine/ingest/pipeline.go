package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pagedex/pagedex/engine/chunk"
	"github.com/pagedex/pagedex/engine/extract"
	"github.com/pagedex/pagedex/engine/vectordb"
	"github.com/pagedex/pagedex/pkg/logger"
)

// Embedder is the subset of the embedding adapter the pipeline needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	BatchSize() int
}

// Retry tunes the embed and upsert retry loops.
type Retry struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (r Retry) normalized() Retry {
	if r.Attempts <= 0 {
		r.Attempts = 3
	}
	if r.Backoff <= 0 {
		r.Backoff = 200 * time.Millisecond
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = 2 * time.Second
	}
	if r.MaxBackoff < r.Backoff {
		r.MaxBackoff = r.Backoff
	}
	return r
}

// Pipeline turns an uploaded document into searchable vector records:
// extract, chunk, attribute pages, embed in batches, upsert.
type Pipeline struct {
	embedder Embedder
	store    vectordb.Store
	chunker  *chunk.Processor
	retry    Retry
}

// Result summarizes one ingestion run. Persisted can be lower than Chunks
// when embedding batches fail and are skipped.
type Result struct {
	DocumentID string
	Pages      int
	Chunks     int
	Persisted  int
	Skipped    int
}

// NewPipeline wires the ingestion stages together.
func NewPipeline(emb Embedder, store vectordb.Store, chunker *chunk.Processor, retry Retry) (*Pipeline, error) {
	if emb == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	if store == nil {
		return nil, errors.New("ingest: vector store is required")
	}
	if chunker == nil {
		return nil, errors.New("ingest: chunker is required")
	}
	return &Pipeline{
		embedder: emb,
		store:    store,
		chunker:  chunker,
		retry:    retry.normalized(),
	}, nil
}

// Method returns the chunking method the pipeline uses by default.
func (p *Pipeline) Method() chunk.Method {
	return p.chunker.Method()
}

// Run ingests one document with the default chunking method. It succeeds
// when at least one chunk is persisted; a document that produced chunks but
// persisted none fails.
func (p *Pipeline) Run(ctx context.Context, docID string, ra io.ReaderAt, size int64) (*Result, error) {
	return p.RunWith(ctx, docID, ra, size, p.chunker.Method())
}

// RunWith ingests one document with an explicit chunking method, so a
// reingest can reproduce the method the document was first ingested with.
func (p *Pipeline) RunWith(ctx context.Context, docID string, ra io.ReaderAt, size int64, method chunk.Method) (*Result, error) {
	log := logger.FromContext(ctx)
	extracted, err := p.extractText(ctx, ra, size, method)
	if err != nil {
		return nil, err
	}
	chunks, err := p.chunker.ProcessWith(ctx, docID, extracted.Text, method)
	if err != nil {
		return nil, err
	}
	result := &Result{DocumentID: docID, Pages: extracted.Pages, Chunks: len(chunks)}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingest: document %s produced no chunks", docID)
	}
	chunk.AttributePages(ctx, chunks, extracted.Text, extracted.PageMap)
	batchSize := p.embedder.BatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}
	var lastErr error
	for start := 0; start < len(chunks); start += batchSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]
		if err := p.persistBatch(ctx, docID, batch); err != nil {
			log.Warn("skipping failed ingestion batch",
				"document_id", docID, "batch_start", start, "batch_size", len(batch), "error", err)
			result.Skipped += len(batch)
			lastErr = err
			continue
		}
		result.Persisted += len(batch)
	}
	if result.Persisted == 0 {
		return nil, fmt.Errorf("ingest: document %s persisted no chunks: %w", docID, lastErr)
	}
	log.Debug("document ingested",
		"document_id", docID,
		"pages", result.Pages,
		"chunks", result.Chunks,
		"persisted", result.Persisted,
		"skipped", result.Skipped)
	return result, nil
}

// extractText runs the structure-aware extraction for the layout method and
// the plain extraction otherwise.
func (p *Pipeline) extractText(ctx context.Context, ra io.ReaderAt, size int64, method chunk.Method) (*extract.Result, error) {
	if method == chunk.MethodLayout {
		result, err := extract.ExtractLayout(ctx, ra, size)
		if err == nil {
			return result, nil
		}
		logger.FromContext(ctx).Warn("layout extraction failed, using plain extraction", "error", err)
	}
	return extract.Extract(ctx, ra, size)
}

func (p *Pipeline) persistBatch(ctx context.Context, docID string, batch []chunk.Chunk) error {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Text
	}
	var vectors [][]float32
	var err error
	for attempt := 0; attempt < p.retry.Attempts; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(p.backoffDuration(attempt))
		}
		vectors, err = p.embedder.EmbedDocuments(ctx, texts)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("ingest: embed batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("ingest: embedder returned %d vectors for %d chunks", len(vectors), len(batch))
	}
	records := make([]vectordb.Record, len(batch))
	for i := range batch {
		records[i] = vectordb.Record{
			ID:         batch[i].ID,
			DocumentID: docID,
			Text:       batch[i].Text,
			Pages:      batch[i].Pages,
			Embedding:  vectors[i],
		}
	}
	for attempt := 0; attempt < p.retry.Attempts; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(p.backoffDuration(attempt))
		}
		err = p.store.Upsert(ctx, records)
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("ingest: persist batch: %w", err)
}

func (p *Pipeline) backoffDuration(attempt int) time.Duration {
	delay := p.retry.Backoff
	for i := 1; i < attempt; i++ {
		if delay >= p.retry.MaxBackoff || delay > time.Duration(math.MaxInt64/2) {
			return p.retry.MaxBackoff
		}
		delay *= 2
	}
	if delay > p.retry.MaxBackoff {
		return p.retry.MaxBackoff
	}
	return delay
}
