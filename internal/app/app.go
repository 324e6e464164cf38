// Package app wires the pipeline components from a loaded configuration.
// The MCP server and the CLI commands share one App per process so the
// indexer and the searcher always use the same embedder and index.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/newsdigest-mcp/internal/composer"
	"github.com/dshills/newsdigest-mcp/internal/config"
	"github.com/dshills/newsdigest-mcp/internal/embedder"
	"github.com/dshills/newsdigest-mcp/internal/fetcher"
	"github.com/dshills/newsdigest-mcp/internal/indexer"
	"github.com/dshills/newsdigest-mcp/internal/keywords"
	"github.com/dshills/newsdigest-mcp/internal/logger"
	"github.com/dshills/newsdigest-mcp/internal/metrics"
	"github.com/dshills/newsdigest-mcp/internal/searcher"
	"github.com/dshills/newsdigest-mcp/internal/session"
	"github.com/dshills/newsdigest-mcp/internal/storage"
	"github.com/dshills/newsdigest-mcp/internal/websearch"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Log      logger.Logger
	Metrics  *metrics.Metrics
	Index    storage.VectorIndex
	Embedder embedder.Embedder
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	History  *session.History
	Composer *composer.Composer
}

type options struct {
	log      logger.Logger
	metrics  *metrics.Metrics
	index    storage.VectorIndex
	embedder embedder.Embedder
	fetcher  fetcher.Fetcher
	keywords composer.KeywordExtractor
	search   websearch.Provider
	history  *session.History
}

// Option replaces a component that New would otherwise build from config.
type Option func(*options)

func WithLogger(l logger.Logger) Option       { return func(o *options) { o.log = l } }
func WithMetrics(m *metrics.Metrics) Option   { return func(o *options) { o.metrics = m } }
func WithIndex(i storage.VectorIndex) Option  { return func(o *options) { o.index = i } }
func WithEmbedder(e embedder.Embedder) Option { return func(o *options) { o.embedder = e } }
func WithFetcher(f fetcher.Fetcher) Option    { return func(o *options) { o.fetcher = f } }
func WithHistory(h *session.History) Option   { return func(o *options) { o.history = h } }
func WithSearch(p websearch.Provider) Option  { return func(o *options) { o.search = p } }

func WithKeywordExtractor(k composer.KeywordExtractor) Option {
	return func(o *options) { o.keywords = k }
}

// New builds every component. On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (a *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("app requires a configuration")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a = &App{Config: cfg, Log: logger.OrNop(o.log), Metrics: o.metrics}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if a.Index = o.index; a.Index == nil {
		if a.Index, err = openIndex(cfg.Index); err != nil {
			return a, err
		}
	}

	if a.Embedder = o.embedder; a.Embedder == nil {
		if a.Embedder, err = a.newEmbedder(ctx); err != nil {
			return a, fmt.Errorf("embedder: %w", err)
		}
	}

	f := o.fetcher
	if f == nil {
		f = fetcher.NewReadability(fetcher.WithTimeout(cfg.Fetch.Timeout))
	}

	a.Indexer, err = indexer.New(f, a.Embedder, a.Index, indexer.Config{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		Workers:      cfg.Ingest.Workers,
		EmbedTimeout: cfg.Embedding.Timeout,
		FetchTimeout: cfg.Fetch.Timeout,
	}, indexer.WithLogger(a.Log), indexer.WithMetrics(a.Metrics))
	if err != nil {
		return a, err
	}

	a.Searcher = searcher.NewSearcher(a.Index, a.Embedder,
		searcher.WithEmbedTimeout(cfg.Embedding.Timeout),
		searcher.WithLogger(a.Log))

	if a.History = o.history; a.History == nil {
		if a.History, err = session.Open(ctx, cfg.SessionStoreConfig()); err != nil {
			return a, err
		}
	}

	search := o.search
	if search == nil {
		if search, err = websearch.New(cfg.WebSearchConfig()); err != nil {
			return a, err
		}
	}

	extractor := o.keywords
	if extractor == nil {
		extractor = a.newExtractor(ctx)
	}

	a.Composer, err = composer.New(composer.Deps{
		Keywords: extractor,
		Search:   search,
		Indexer:  a.Indexer,
		Searcher: a.Searcher,
		History:  a.History,
		Logger:   a.Log,
		Metrics:  a.Metrics,
	}, composer.Config{
		MaxResults:     cfg.Compose.MaxResults,
		MaxArticles:    cfg.Search.MaxArticles,
		TimePeriod:     cfg.Compose.TimePeriod,
		ScopeToSession: cfg.Compose.ScopeToSession,
		SearchTimeout:  cfg.Search.Timeout,
	})
	if err != nil {
		return a, err
	}

	a.Log.Debug("pipeline ready",
		"index", cfg.Index.Driver,
		"embedding_provider", a.Embedder.Provider(),
		"embedding_model", a.Embedder.Model(),
		"search_provider", cfg.Search.Provider)
	return a, nil
}

// newEmbedder builds the configured provider. A provider whose API key is
// missing falls back to local embeddings so the server still starts; those
// vectors do not match chunks stored by a remote provider.
func (a *App) newEmbedder(ctx context.Context) (embedder.Embedder, error) {
	cfg := a.Config.EmbedderConfig()
	emb, err := embedder.New(ctx, cfg)
	if err == nil || !errors.Is(err, embedder.ErrNoProviderEnabled) {
		return emb, err
	}
	a.Log.Warn("embedding provider unavailable, using local embeddings", "provider", cfg.Provider, "error", err)
	cfg.Provider = embedder.ProviderLocal
	cfg.Model = ""
	return embedder.New(ctx, cfg)
}

// newExtractor builds the Gemini keyword extractor. Without an API key the
// server can still retrieve and report status, so compositions fail with
// the configuration error instead of startup.
func (a *App) newExtractor(ctx context.Context) composer.KeywordExtractor {
	var c keywords.Completer
	llm, err := keywords.NewGoogleAI(ctx, a.Config.LLM.APIKey, a.Config.LLM.Model)
	if err != nil {
		a.Log.Warn("keyword extraction unavailable", "error", err)
		c = keywords.CompleterFunc(func(context.Context, string) (string, error) { return "", err })
	} else {
		c = llm
	}
	return keywords.NewExtractor(c,
		keywords.WithTimeout(a.Config.LLM.Timeout),
		keywords.WithLogger(a.Log))
}

func openIndex(cfg config.IndexConfig) (storage.VectorIndex, error) {
	switch cfg.Driver {
	case config.IndexMemory:
		return storage.NewMemoryIndex(), nil
	default:
		idx, err := storage.NewSQLiteIndex(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", cfg.Path, err)
		}
		return idx, nil
	}
}

// Close releases the index, the embedder and the session store.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	return errors.Join(errs...)
}
