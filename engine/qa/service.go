package qa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pagedex/pagedex/engine/answer"
	"github.com/pagedex/pagedex/engine/blob"
	"github.com/pagedex/pagedex/engine/chunk"
	"github.com/pagedex/pagedex/engine/core"
	"github.com/pagedex/pagedex/engine/ingest"
	"github.com/pagedex/pagedex/engine/registry"
	"github.com/pagedex/pagedex/engine/retriever"
	"github.com/pagedex/pagedex/engine/vectordb"
	"github.com/pagedex/pagedex/pkg/logger"
)

// Service is the facade over the document lifecycle: upload and ingest, ask,
// list, inspect and remove. Per-document operations serialize on a keyed
// mutex so ingestion and removal of the same document never interleave.
type Service struct {
	registry  registry.Store
	blobs     *blob.Store
	vectors   vectordb.Store
	pipeline  *ingest.Pipeline
	retriever *retriever.Service
	answerer  *answer.Service
	locks     *core.KeyedMutex
	now       func() time.Time
}

// Metadata is a registry document plus its live access state.
type Metadata struct {
	registry.Document
	LastAccess time.Time `json:"last_access"`
}

// NewService wires the facade.
func NewService(
	reg registry.Store,
	blobs *blob.Store,
	vectors vectordb.Store,
	pipeline *ingest.Pipeline,
	ret *retriever.Service,
	answerer *answer.Service,
) (*Service, error) {
	if reg == nil {
		return nil, errors.New("qa: registry is required")
	}
	if blobs == nil {
		return nil, errors.New("qa: blob store is required")
	}
	if vectors == nil {
		return nil, errors.New("qa: vector store is required")
	}
	if pipeline == nil {
		return nil, errors.New("qa: ingest pipeline is required")
	}
	if ret == nil {
		return nil, errors.New("qa: retriever is required")
	}
	if answerer == nil {
		return nil, errors.New("qa: answer service is required")
	}
	return &Service{
		registry:  reg,
		blobs:     blobs,
		vectors:   vectors,
		pipeline:  pipeline,
		retriever: ret,
		answerer:  answerer,
		locks:     core.NewKeyedMutex(),
		now:       time.Now,
	}, nil
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Upload stores a document and ingests it. The registry entry is created
// before ingestion starts; a failed ingestion leaves the document in error
// status with the raw bytes kept for a retry via Reingest.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*registry.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, errors.New("qa: filename is required")
	}
	if r == nil {
		return nil, errors.New("qa: document content is required")
	}
	id := core.NewID()
	unlock := s.locks.Lock(id)
	defer unlock()
	start := s.now()
	size, err := s.blobs.Save(id, r)
	if err != nil {
		return nil, fmt.Errorf("qa: store upload: %w", err)
	}
	location, err := s.blobs.Location(id)
	if err != nil {
		return nil, fmt.Errorf("qa: resolve upload location: %w", err)
	}
	doc := registry.Document{
		ID:         id,
		Filename:   filename,
		Status:     registry.StatusUploaded,
		SizeBytes:  size,
		Location:   location,
		Method:     string(s.pipeline.Method()),
		UploadedAt: start.UTC(),
	}
	if err := s.registry.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("qa: register upload: %w", err)
	}
	ingested, err := s.ingestLocked(ctx, &doc)
	recordUpload(ctx, s.now().Sub(start), doc.Chunks, string(doc.Status))
	if err != nil {
		return &doc, err
	}
	logger.FromContext(ctx).Info("document uploaded",
		"document_id", id,
		"filename", filename,
		"pages", ingested.Pages,
		"chunks", ingested.Persisted)
	return &doc, nil
}

// Reingest reruns ingestion from the stored bytes, for documents stuck in
// error status.
func (s *Service) Reingest(ctx context.Context, id string) (*registry.Document, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	doc, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ingestLocked(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// ingestLocked runs the pipeline and settles the document status. The caller
// holds the document lock; doc is updated in place and persisted. The
// document's recorded chunking method wins over the configured default.
func (s *Service) ingestLocked(ctx context.Context, doc *registry.Document) (*ingest.Result, error) {
	reader, size, err := s.blobs.Open(doc.ID)
	if err != nil {
		return nil, s.failDocument(ctx, doc, fmt.Errorf("qa: open upload: %w", err))
	}
	defer reader.Close()
	method := s.pipeline.Method()
	if doc.Method != "" {
		if recorded, err := chunk.ParseMethod(doc.Method); err == nil {
			method = recorded
		}
	}
	doc.Method = string(method)
	result, err := s.pipeline.RunWith(ctx, doc.ID, readerAt(reader), size, method)
	if err != nil {
		return nil, s.failDocument(ctx, doc, err)
	}
	doc.Status = registry.StatusProcessed
	doc.Pages = result.Pages
	doc.Chunks = result.Persisted
	doc.Error = ""
	if err := s.registry.Put(ctx, *doc); err != nil {
		return nil, fmt.Errorf("qa: persist document status: %w", err)
	}
	s.touch(ctx, doc.ID)
	return result, nil
}

func (s *Service) failDocument(ctx context.Context, doc *registry.Document, cause error) error {
	doc.Status = registry.StatusError
	doc.Error = cause.Error()
	if putErr := s.registry.Put(ctx, *doc); putErr != nil {
		logger.FromContext(ctx).Error("failed to persist error status",
			"document_id", doc.ID, "error", putErr)
	}
	return cause
}

// Ask answers a question over the given documents. An empty scope defaults
// to every processed document. Requested ids that are unknown or not yet
// queryable are dropped; when all of them are, the answer says so instead of
// failing.
func (s *Service) Ask(ctx context.Context, question string, docIDs []string) (*answer.Answer, error) {
	start := s.now()
	scope, err := s.resolveScope(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	if len(docIDs) > 0 && len(scope) == 0 {
		return &answer.Answer{Text: answer.NoValidDocumentsAnswer}, nil
	}
	results, err := s.retriever.Retrieve(ctx, question, scope)
	if err != nil {
		return nil, err
	}
	recordQuery(ctx, s.now().Sub(start), len(results))
	response, err := s.answerer.Answer(ctx, question, results)
	if err != nil {
		return nil, err
	}
	s.fillSourceFilenames(ctx, response)
	return response, nil
}

// resolveScope keeps the requested ids that name processed documents,
// dropping the rest. Every id found in the registry counts as an access,
// queryable or not.
func (s *Service) resolveScope(ctx context.Context, docIDs []string) ([]string, error) {
	if len(docIDs) == 0 {
		docs, err := s.registry.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("qa: list documents: %w", err)
		}
		scope := make([]string, 0, len(docs))
		for _, doc := range docs {
			if doc.Status == registry.StatusProcessed {
				scope = append(scope, doc.ID)
			}
		}
		return scope, nil
	}
	log := logger.FromContext(ctx)
	scope := make([]string, 0, len(docIDs))
	known := make([]string, 0, len(docIDs))
	for _, id := range docIDs {
		doc, err := s.registry.Get(ctx, id)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				log.Debug("dropping unknown document from query scope", "document_id", id)
				continue
			}
			return nil, err
		}
		known = append(known, id)
		if doc.Status != registry.StatusProcessed {
			log.Debug("dropping document not ready for querying",
				"document_id", id, "status", doc.Status)
			continue
		}
		scope = append(scope, id)
	}
	s.touch(ctx, known...)
	return scope, nil
}

func (s *Service) fillSourceFilenames(ctx context.Context, response *answer.Answer) {
	for i := range response.Sources {
		doc, err := s.registry.Get(ctx, response.Sources[i].DocumentID)
		if err != nil {
			continue
		}
		response.Sources[i].Filename = doc.Filename
	}
}

// List returns all registered documents in upload order. Listing counts as
// an access to every document, the same as a per-document metadata read.
func (s *Service) List(ctx context.Context) ([]registry.Document, error) {
	docs, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	s.touch(ctx, ids...)
	return docs, nil
}

// GetMetadata returns a document together with its last access time. The
// returned time is the access before this one; the read itself is recorded.
func (s *Service) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	doc, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	last, err := s.registry.LastAccess(ctx, id)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, id)
	return &Metadata{Document: *doc, LastAccess: last}, nil
}

// touch records an access; reads never fail on a broken access log.
func (s *Service) touch(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	if err := s.registry.Touch(ctx, s.now().UTC(), ids...); err != nil {
		logger.FromContext(ctx).Warn("failed to record document access", "error", err)
	}
}

// Remove deletes a document everywhere. Vector records go first: if that
// fails the registry entry stays, so the document remains discoverable and a
// later removal can retry. Orphaned vectors would otherwise be unreachable
// garbage with no record pointing at them.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.remove(ctx, id, "request")
}

// Evict removes a document on behalf of the retention sweeper.
func (s *Service) Evict(ctx context.Context, id string) error {
	return s.remove(ctx, id, "retention")
}

func (s *Service) remove(ctx context.Context, id string, reason string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	if _, err := s.registry.Get(ctx, id); err != nil {
		return err
	}
	if err := s.vectors.Delete(ctx, vectordb.Filter{DocumentID: id}); err != nil {
		return fmt.Errorf("qa: delete vectors for %s: %w", id, err)
	}
	if err := s.registry.Delete(ctx, id); err != nil {
		return fmt.Errorf("qa: delete registry entry for %s: %w", id, err)
	}
	if err := s.blobs.Remove(id); err != nil {
		logger.FromContext(ctx).Warn("failed to remove stored upload", "document_id", id, "error", err)
	}
	recordRemoval(ctx, reason)
	logger.FromContext(ctx).Info("document removed", "document_id", id)
	return nil
}

// readerAt adapts a seekable reader to io.ReaderAt for the PDF parser.
func readerAt(r io.ReadSeeker) io.ReaderAt {
	if ra, ok := r.(io.ReaderAt); ok {
		return ra
	}
	return &seekerAt{r: r}
}

type seekerAt struct {
	r io.ReadSeeker
}

func (s *seekerAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.r, p)
}
