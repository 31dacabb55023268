package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pagedex/pagedex/engine/answer"
	"github.com/pagedex/pagedex/engine/blob"
	"github.com/pagedex/pagedex/engine/chunk"
	"github.com/pagedex/pagedex/engine/embedder"
	"github.com/pagedex/pagedex/engine/ingest"
	"github.com/pagedex/pagedex/engine/qa"
	"github.com/pagedex/pagedex/engine/registry"
	"github.com/pagedex/pagedex/engine/retention"
	"github.com/pagedex/pagedex/engine/retriever"
	"github.com/pagedex/pagedex/engine/vectordb"
	"github.com/pagedex/pagedex/pkg/config"
)

// App holds the wired service graph for one CLI invocation.
type App struct {
	Config   *config.Config
	Registry registry.Store
	Vectors  vectordb.Store
	Service  *qa.Service
	Sweeper  *retention.Sweeper
}

// NewApp builds the full service graph from configuration.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	reg, err := registry.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.NewOSStore(cfg.Storage.PDFDir)
	if err != nil {
		return nil, err
	}
	vectors, err := vectordb.New(ctx, &vectordb.Config{
		Provider:    vectordb.Provider(cfg.VectorDB.Provider),
		DSN:         cfg.VectorDB.DSN,
		Path:        vectorPath(cfg),
		Table:       cfg.VectorDB.Table,
		Collection:  cfg.VectorDB.Collection,
		Metric:      cfg.VectorDB.Metric,
		EnsureIndex: cfg.VectorDB.EnsureIndex,
		Dimension:   cfg.Embedder.Dimension,
	})
	if err != nil {
		return nil, err
	}
	emb, err := embedder.New(ctx, &embedder.Config{
		Provider:      embedder.Provider(cfg.Embedder.Provider),
		Model:         cfg.Embedder.Model,
		APIKey:        cfg.Embedder.APIKey,
		Dimension:     cfg.Embedder.Dimension,
		BatchSize:     cfg.Embedder.BatchSize,
		StripNewLines: true,
		CacheSize:     cfg.Embedder.CacheSize,
	})
	if err != nil {
		return nil, err
	}
	chunker, err := chunk.NewProcessor(chunk.Settings{
		Method:  chunk.Method(cfg.Chunking.Method),
		Size:    cfg.Chunking.Size,
		Overlap: cfg.Chunking.Overlap,
	})
	if err != nil {
		return nil, err
	}
	pipeline, err := ingest.NewPipeline(emb, vectors, chunker, ingest.Retry{})
	if err != nil {
		return nil, err
	}
	ret, err := retriever.NewService(emb, vectors, reg, cfg.Retrieval.TopK, cfg.Retrieval.MinScore)
	if err != nil {
		return nil, err
	}
	answerer, err := answer.NewService(ctx, &answer.Config{
		Provider: answer.Provider(cfg.LLM.Provider),
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, err
	}
	svc, err := qa.NewService(reg, blobs, vectors, pipeline, ret, answerer)
	if err != nil {
		return nil, err
	}
	sweepEvery := cfg.Retention.SweepEvery
	if sweepEvery <= 0 {
		sweepEvery = 24 * time.Hour
	}
	sweeper, err := retention.NewSweeper(
		reg,
		retention.RemoverFunc(svc.Evict),
		cfg.RetentionWindow(),
		sweepEvery,
	)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:   cfg,
		Registry: reg,
		Vectors:  vectors,
		Service:  svc,
		Sweeper:  sweeper,
	}, nil
}

// Close releases backend connections.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if err := a.Vectors.Close(ctx); err != nil {
		firstErr = fmt.Errorf("close vector store: %w", err)
	}
	if err := a.Registry.Close(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close registry: %w", err)
	}
	return firstErr
}

func vectorPath(cfg *config.Config) string {
	if cfg.VectorDB.Path != "" {
		return cfg.VectorDB.Path
	}
	return filepath.Join(cfg.Storage.DataDir, "vectors.json")
}
