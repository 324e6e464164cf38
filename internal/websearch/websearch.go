// Package websearch finds candidate news articles for a keyword query.
//
// Two providers are available: SerpAPI (Google organic results, needs an
// API key) and RSS (a news search feed, no key). Either can be wrapped in
// RateLimited. All failures are search CollaboratorErrors; zero results is
// not a failure.
package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// Provider names accepted by New
const (
	ProviderSerpAPI = "serpapi"
	ProviderRSS     = "rss"
)

const (
	// DefaultMaxArticles is the result count requested per focus point
	DefaultMaxArticles = 10
	// DefaultTimeout bounds one search request
	DefaultTimeout = 15 * time.Second
)

// Provider searches for articles matching query and returns at most num hits.
type Provider interface {
	Search(ctx context.Context, query string, num int) ([]types.SearchHit, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string, num int) ([]types.SearchHit, error)

// Search calls f(ctx, query, num).
func (f ProviderFunc) Search(ctx context.Context, query string, num int) ([]types.SearchHit, error) {
	return f(ctx, query, num)
}

// BuildQuery renders "{industry} {keywords...} news", skipping empty parts.
func BuildQuery(industry string, keywords []string) string {
	parts := make([]string, 0, len(keywords)+2)
	if s := strings.TrimSpace(industry); s != "" {
		parts = append(parts, s)
	}
	for _, kw := range keywords {
		if s := strings.TrimSpace(kw); s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, "news")
	return strings.Join(parts, " ")
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Engine   string
	BaseURL  string // SerpAPI base URL or RSS URL template
	Timeout  time.Duration
	// RateLimit is requests per second; zero disables limiting
	RateLimit float64
	Burst     int
}

// New builds the configured provider. An empty Provider selects SerpAPI
// when an API key is present and RSS otherwise.
func New(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = ProviderRSS
		if cfg.APIKey != "" {
			name = ProviderSerpAPI
		}
	}

	var p Provider
	switch name {
	case ProviderSerpAPI:
		s, err := NewSerpAPI(cfg.APIKey,
			WithSerpBaseURL(cfg.BaseURL),
			WithEngine(cfg.Engine),
			WithSerpTimeout(cfg.Timeout),
		)
		if err != nil {
			return nil, err
		}
		p = s
	case ProviderRSS:
		p = NewRSS(WithFeedTemplate(cfg.BaseURL), WithFeedTimeout(cfg.Timeout))
	default:
		return nil, types.NewConfigurationError("search.provider", "unknown provider %q", cfg.Provider)
	}

	if cfg.RateLimit > 0 {
		p = NewRateLimited(p, cfg.RateLimit, cfg.Burst)
	}
	return p, nil
}

func searchError(op string, err error) error {
	return types.NewCollaboratorError(types.CollaboratorSearch, op, err)
}

func searchErrorf(op, format string, args ...any) error {
	return searchError(op, fmt.Errorf(format, args...))
}
