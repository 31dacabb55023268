package config

import (
	"time"
)

// Config is the root configuration for the pagedex service. Values are loaded
// from defaults first, then overridden by PAGEDEX_* environment variables.
type Config struct {
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Storage   StorageConfig   `koanf:"storage"   validate:"required"`
	Chunking  ChunkingConfig  `koanf:"chunking"  validate:"required"`
	Embedder  EmbedderConfig  `koanf:"embedder"  validate:"required"`
	VectorDB  VectorDBConfig  `koanf:"vector_db" validate:"required"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Retention RetentionConfig `koanf:"retention"`
	LLM       LLMConfig       `koanf:"llm"`
}

// RuntimeConfig controls logging behavior.
type RuntimeConfig struct {
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error" env:"PAGEDEX_LOG_LEVEL"`
	LogJSON  bool   `koanf:"log_json"                                        env:"PAGEDEX_LOG_JSON"`
}

// StorageConfig locates the durable on-disk state.
type StorageConfig struct {
	// PDFDir receives uploaded document bytes.
	PDFDir string `koanf:"pdf_dir" validate:"required" env:"PAGEDEX_STORAGE_PDF_DIR"`
	// DataDir holds the registry, access log, and filesystem vector snapshots.
	DataDir string `koanf:"data_dir" validate:"required" env:"PAGEDEX_STORAGE_DATA_DIR"`
}

// ChunkingConfig configures how extracted text is split before embedding.
type ChunkingConfig struct {
	Size    int    `koanf:"size"    validate:"min=1"                           env:"PAGEDEX_CHUNK_SIZE"`
	Overlap int    `koanf:"overlap" validate:"min=0"                           env:"PAGEDEX_CHUNK_OVERLAP"`
	Method  string `koanf:"method"  validate:"oneof=standard semantic layout"  env:"PAGEDEX_CHUNK_METHOD"`
}

// EmbedderConfig selects the embedding capability provider.
type EmbedderConfig struct {
	Provider  string `koanf:"provider"   validate:"oneof=openai googleai" env:"PAGEDEX_EMBEDDER_PROVIDER"`
	Model     string `koanf:"model"      validate:"required"              env:"PAGEDEX_EMBEDDER_MODEL"`
	APIKey    string `koanf:"api_key"                                     env:"PAGEDEX_EMBEDDER_API_KEY"`
	Dimension int    `koanf:"dimension"  validate:"min=1"                 env:"PAGEDEX_EMBEDDER_DIMENSION"`
	BatchSize int    `koanf:"batch_size" validate:"min=1"                 env:"PAGEDEX_EMBEDDER_BATCH_SIZE"`
	CacheSize int    `koanf:"cache_size" validate:"min=0"                 env:"PAGEDEX_EMBEDDER_CACHE_SIZE"`
}

// VectorDBConfig selects and configures the vector index backend.
type VectorDBConfig struct {
	Provider    string `koanf:"provider"     validate:"oneof=memory filesystem pgvector qdrant" env:"PAGEDEX_VECTOR_DB_PROVIDER"`
	DSN         string `koanf:"dsn"                                                             env:"PAGEDEX_VECTOR_DB_DSN"`
	Path        string `koanf:"path"                                                            env:"PAGEDEX_VECTOR_DB_PATH"`
	Table       string `koanf:"table"                                                           env:"PAGEDEX_VECTOR_DB_TABLE"`
	Collection  string `koanf:"collection"                                                      env:"PAGEDEX_VECTOR_DB_COLLECTION"`
	Metric      string `koanf:"metric"                                                          env:"PAGEDEX_VECTOR_DB_METRIC"`
	EnsureIndex bool   `koanf:"ensure_index"                                                    env:"PAGEDEX_VECTOR_DB_ENSURE_INDEX"`
}

// RetrievalConfig bounds similarity search.
type RetrievalConfig struct {
	TopK     int     `koanf:"top_k"     validate:"min=1" env:"PAGEDEX_RETRIEVAL_TOP_K"`
	MinScore float64 `koanf:"min_score" validate:"min=0" env:"PAGEDEX_RETRIEVAL_MIN_SCORE"`
}

// RetentionConfig controls the background eviction of stale documents.
type RetentionConfig struct {
	Days       int           `koanf:"days"        validate:"min=1" env:"PAGEDEX_RETENTION_DAYS"`
	SweepEvery time.Duration `koanf:"sweep_every" validate:"min=0" env:"PAGEDEX_RETENTION_SWEEP_EVERY"`
}

// LLMConfig selects the answer-generation capability provider.
type LLMConfig struct {
	Provider string `koanf:"provider" validate:"oneof=openai googleai" env:"PAGEDEX_LLM_PROVIDER"`
	Model    string `koanf:"model"    validate:"required"              env:"PAGEDEX_LLM_MODEL"`
	APIKey   string `koanf:"api_key"                                   env:"PAGEDEX_LLM_API_KEY"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			LogLevel: "info",
			LogJSON:  false,
		},
		Storage: StorageConfig{
			PDFDir:  "storage/pdfs",
			DataDir: "storage/data",
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
			Method:  "standard",
		},
		Embedder: EmbedderConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 32,
			CacheSize: 512,
		},
		VectorDB: VectorDBConfig{
			Provider: "filesystem",
			Path:     "storage/data/vectors.json",
		},
		Retrieval: RetrievalConfig{
			TopK:     5,
			MinScore: 0,
		},
		Retention: RetentionConfig{
			Days:       7,
			SweepEvery: 24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider: "googleai",
			Model:    "gemini-2.0-flash",
		},
	}
}

// RetentionWindow returns the configured retention duration.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}
