package embedder

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by NewFromEnv and DetectProvider
const (
	EnvProvider     = "NEWSDIGEST_EMBEDDING_PROVIDER"
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvCohereAPIKey = "COHERE_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string // Optional: provider default when empty
	BaseURL   string // Optional: only used by openai and jina
	CacheSize int    // Zero disables caching
}

// New creates an embedder with explicit configuration
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	var (
		emb Embedder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderGoogleAI:
		var p *LangchainProvider
		if p, err = NewGoogleAIProvider(ctx, cfg.APIKey, cfg.Model, cache); err == nil {
			emb = p
		}
	case ProviderCohere:
		var p *CohereProvider
		if p, err = NewCohereProvider(cfg.APIKey, cfg.Model, cache); err == nil {
			emb = p
		}
	case ProviderJina:
		var p *JinaProvider
		if p, err = NewJinaProvider(cfg.APIKey, cfg.BaseURL, cache); err == nil {
			if cfg.Model != "" {
				p.model = cfg.Model
			}
			emb = p
		}
	case ProviderOpenAI:
		var p *OpenAIProvider
		if p, err = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cache); err == nil {
			if cfg.Model != "" {
				p.model = cfg.Model
			}
			emb = p
		}
	case ProviderLocal:
		var p *LocalProvider
		if p, err = NewLocalProvider(cache); err == nil {
			emb = p
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return emb, nil
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. NEWSDIGEST_EMBEDDING_PROVIDER (googleai, cohere, jina, openai, local)
// 2. First API key found: GOOGLE_API_KEY, COHERE_API_KEY, JINA_API_KEY, OPENAI_API_KEY
// 3. Local provider when no key is present
func NewFromEnv(ctx context.Context) (Embedder, error) {
	provider := DetectProvider()
	return New(ctx, Config{
		Provider:  provider,
		APIKey:    APIKeyFor(provider),
		CacheSize: DefaultCacheSize,
	})
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	for _, p := range []string{ProviderGoogleAI, ProviderCohere, ProviderJina, ProviderOpenAI} {
		if APIKeyFor(p) != "" {
			return p
		}
	}
	return ProviderLocal
}

// APIKeyFor returns the API key environment value for provider.
func APIKeyFor(provider string) string {
	switch provider {
	case ProviderGoogleAI:
		return os.Getenv(EnvGoogleAPIKey)
	case ProviderCohere:
		return os.Getenv(EnvCohereAPIKey)
	case ProviderJina:
		return os.Getenv(EnvJinaAPIKey)
	case ProviderOpenAI:
		return os.Getenv(EnvOpenAIAPIKey)
	default:
		return ""
	}
}
