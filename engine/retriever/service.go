package retriever

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pagedex/pagedex/engine/registry"
	"github.com/pagedex/pagedex/engine/vectordb"
	"github.com/pagedex/pagedex/pkg/logger"
)

// relevanceStep is the rank penalty applied to each successive result.
const relevanceStep = 0.1

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Result is one retrieved chunk with its rank-derived relevance.
type Result struct {
	ChunkID    string
	DocumentID string
	Text       string
	Pages      []int
	Score      float64
	Relevance  float64
}

// Service answers similarity queries over the caller's documents. Operational
// failures degrade to an empty result set; only invalid input is an error.
type Service struct {
	embedder QueryEmbedder
	store    vectordb.Store
	registry registry.Store
	topK     int
	minScore float64
	now      func() time.Time
	tracer   trace.Tracer
}

// NewService wires a retriever. The registry is used to record an access for
// every document in the query scope.
func NewService(emb QueryEmbedder, store vectordb.Store, reg registry.Store, topK int, minScore float64) (*Service, error) {
	if emb == nil {
		return nil, errors.New("retriever: embedder is required")
	}
	if store == nil {
		return nil, errors.New("retriever: vector store is required")
	}
	if reg == nil {
		return nil, errors.New("retriever: registry is required")
	}
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		embedder: emb,
		store:    store,
		registry: reg,
		topK:     topK,
		minScore: minScore,
		now:      time.Now,
		tracer:   otel.Tracer("pagedex.retriever"),
	}, nil
}

// WithClock overrides the access timestamp source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Retrieve runs a scoped similarity search. An empty document scope yields no
// results without touching the store.
func (s *Service) Retrieve(ctx context.Context, query string, docIDs []string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("retriever: query is required")
	}
	log := logger.FromContext(ctx)
	if len(docIDs) == 0 {
		log.Debug("retrieval skipped, no documents in scope")
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "pagedex.retriever.retrieve", trace.WithAttributes(
		attribute.Int("documents", len(docIDs)),
		attribute.Int("query_length", len(query)),
	))
	defer span.End()

	// Every document in the query scope counts as an access, whether or
	// not it ends up contributing a match.
	s.touchDocuments(ctx, docIDs)

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("query embedding failed, returning no results", "error", err)
		return nil, nil
	}
	matches, err := s.store.Search(ctx, vector, vectordb.SearchOptions{
		TopK:        s.topK,
		MinScore:    s.minScore,
		DocumentIDs: docIDs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("vector search failed, returning no results", "error", err)
		return nil, nil
	}
	if len(matches) == 0 {
		return nil, nil
	}
	results := make([]Result, len(matches))
	for i, match := range matches {
		results[i] = Result{
			ChunkID:    match.ID,
			DocumentID: match.DocumentID,
			Text:       match.Text,
			Pages:      match.Pages,
			Score:      match.Score,
			Relevance:  relevanceForRank(i),
		}
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// relevanceForRank maps a zero-based rank to a relevance in [0, 1].
func relevanceForRank(rank int) float64 {
	relevance := 1.0 - relevanceStep*float64(rank)
	if relevance < 0 {
		return 0
	}
	return relevance
}

func (s *Service) touchDocuments(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.registry.Touch(ctx, s.now().UTC(), ids...); err != nil {
		logger.FromContext(ctx).Warn("failed to record document access", "error", err)
	}
}
