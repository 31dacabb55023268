package embedder

// Provider enumerates supported embedding providers.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderGoogleAI Provider = "googleai"
)

// Config captures normalized embedder settings.
type Config struct {
	Provider      Provider
	Model         string
	APIKey        string
	Dimension     int
	BatchSize     int
	StripNewLines bool
	// CacheSize bounds the embedding LRU cache; zero disables caching.
	CacheSize int
}
