package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	errMissingProvider  = errors.New("vectordb: provider is required")
	errMissingDSN       = errors.New("vectordb: dsn is required")
	errMissingPath      = errors.New("vectordb: path is required")
	errInvalidDimension = errors.New("vectordb: dimension must be greater than zero")
)

// New instantiates a vector store backed by the requested provider.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderPGVector:
		return newPGStore(ctx, cfg)
	case ProviderQdrant:
		return newQdrantStore(ctx, cfg)
	case ProviderFilesystem:
		return newFileStore(cfg)
	case ProviderMemory:
		return newMemoryStore(cfg), nil
	default:
		return nil, fmt.Errorf("vectordb: provider %q is not supported", cfg.Provider)
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("vectordb: config is required")
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return errMissingProvider
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Path = strings.TrimSpace(cfg.Path)
	switch cfg.Provider {
	case ProviderPGVector, ProviderQdrant:
		if cfg.DSN == "" {
			return errMissingDSN
		}
	case ProviderFilesystem:
		if cfg.Path == "" {
			return errMissingPath
		}
	}
	if cfg.Dimension <= 0 {
		return errInvalidDimension
	}
	if cfg.MaxTopK < 0 {
		return errors.New("vectordb: max_top_k must be non-negative")
	}
	return nil
}

// clampTopK applies the default and the configured ceiling to a requested
// result count.
func clampTopK(requested, maxTopK int) int {
	topK := requested
	if topK <= 0 {
		topK = defaultTopK
	}
	if maxTopK > 0 && topK > maxTopK {
		topK = maxTopK
	}
	return topK
}
