package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/newsdigest-mcp/internal/chunker"
	"github.com/dshills/newsdigest-mcp/internal/embedder"
	"github.com/dshills/newsdigest-mcp/internal/fetcher"
	"github.com/dshills/newsdigest-mcp/internal/ids"
	"github.com/dshills/newsdigest-mcp/internal/logger"
	"github.com/dshills/newsdigest-mcp/internal/metrics"
	"github.com/dshills/newsdigest-mcp/internal/storage"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

var (
	// ErrNothingIndexed is returned with the Result when articles were
	// supplied but none produced an indexed chunk.
	ErrNothingIndexed = errors.New("no article produced an indexed chunk")
	// ErrNoChunksEmbedded marks an article whose every chunk failed to embed
	ErrNoChunksEmbedded = errors.New("no chunk could be embedded")
)

// Defaults used when Config fields are zero
const (
	DefaultWorkers      = 4
	DefaultEmbedTimeout = 30 * time.Second
	DefaultFetchTimeout = fetcher.DefaultTimeout
)

// Indexer coordinates the ingestion pipeline: fetch -> chunk -> embed -> index
type Indexer struct {
	fetcher  fetcher.Fetcher
	embedder embedder.Embedder
	index    storage.VectorIndex
	chunker  *chunker.Chunker

	workers      int
	embedTimeout time.Duration
	fetchTimeout time.Duration

	log     logger.Logger
	metrics *metrics.Metrics
	newID   ids.Generator
}

// Config contains configuration for the indexer
type Config struct {
	ChunkSize    int           // Characters per chunk (default: chunker.DefaultSize)
	ChunkOverlap int           // Characters shared with the previous chunk (default: chunker.DefaultOverlap)
	Workers      int           // Concurrent embedding calls per article (default: 4)
	EmbedTimeout time.Duration // Per-chunk embedding timeout (default: 30s)
	FetchTimeout time.Duration // Per-article fetch timeout (default: 10s)
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		ChunkSize:    chunker.DefaultSize,
		ChunkOverlap: chunker.DefaultOverlap,
		Workers:      DefaultWorkers,
		EmbedTimeout: DefaultEmbedTimeout,
		FetchTimeout: DefaultFetchTimeout,
	}
}

// Statistics contains statistics about one ingestion run
type Statistics struct {
	ArticlesTotal   int           `json:"articles_total"`
	ArticlesIndexed int           `json:"articles_indexed"`
	ArticlesSkipped int           `json:"articles_skipped"`
	ChunksCreated   int           `json:"chunks_created"`
	ChunksFailed    int           `json:"chunks_failed"`
	Duration        time.Duration `json:"duration_ns"`
	ErrorMessages   []string      `json:"errors,omitempty"`
}

// Result holds the chunks that reached the index, in article then chunk order
type Result struct {
	Chunks []types.Chunk
	Stats  Statistics
}

// Option customises an Indexer
type Option func(*Indexer)

// WithLogger sets the logger used for skipped articles and chunks
func WithLogger(l logger.Logger) Option {
	return func(idx *Indexer) { idx.log = logger.OrNop(l) }
}

// WithMetrics records article and chunk counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithIDGenerator replaces the UUID generator for article and chunk ids
func WithIDGenerator(g ids.Generator) Option {
	return func(idx *Indexer) { idx.newID = ids.OrDefault(g) }
}

// New creates a new Indexer. Chunking configuration is validated here, so
// an Indexer that exists can always chunk.
func New(f fetcher.Fetcher, e embedder.Embedder, index storage.VectorIndex, cfg Config, opts ...Option) (*Indexer, error) {
	if f == nil || e == nil || index == nil {
		return nil, fmt.Errorf("indexer requires a fetcher, an embedder and an index")
	}

	if cfg.ChunkSize == 0 && cfg.ChunkOverlap == 0 {
		cfg.ChunkSize, cfg.ChunkOverlap = chunker.DefaultSize, chunker.DefaultOverlap
	}
	c, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	idx := &Indexer{
		fetcher:      f,
		embedder:     e,
		index:        index,
		chunker:      c,
		workers:      cfg.Workers,
		embedTimeout: cfg.EmbedTimeout,
		fetchTimeout: cfg.FetchTimeout,
		log:          logger.Nop(),
		newID:        ids.New,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Ingest fetches, chunks, embeds and indexes articles under sessionID.
//
// Failures are absorbed per article (fetch, empty text, index write) and per
// chunk (embedding); they are counted in Statistics and logged. Ingest
// returns ErrNothingIndexed alongside the Result when no article produced an
// indexed chunk, and ctx.Err() when the context ends mid-run.
func (idx *Indexer) Ingest(ctx context.Context, articles []types.Article, sessionID string) (*Result, error) {
	start := time.Now()
	result := &Result{
		Chunks: make([]types.Chunk, 0),
		Stats: Statistics{
			ArticlesTotal: len(articles),
			ErrorMessages: make([]string, 0),
		},
	}
	stats := &result.Stats
	log := idx.log.With("session_id", sessionID)

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return result, err
		}

		chunks, err := idx.ingestArticle(ctx, article, sessionID, stats, log)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				stats.Duration = time.Since(start)
				return result, ctxErr
			}
			stats.ArticlesSkipped++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", article.URL, err))
			idx.metrics.ArticleSkipped()
			log.Warn("skipping article", "url", article.URL, "focus_point", article.FocusPoint, "error", err)
			continue
		}

		stats.ArticlesIndexed++
		stats.ChunksCreated += len(chunks)
		result.Chunks = append(result.Chunks, chunks...)
		idx.metrics.ArticleIndexed()
		idx.metrics.ChunksIndexed(len(chunks))
		log.Debug("indexed article", "url", article.URL, "chunks", len(chunks))
	}

	stats.Duration = time.Since(start)
	log.Info("ingestion complete",
		"articles", stats.ArticlesTotal,
		"indexed", stats.ArticlesIndexed,
		"skipped", stats.ArticlesSkipped,
		"chunks", stats.ChunksCreated,
		"chunks_failed", stats.ChunksFailed,
		"duration", stats.Duration)

	if len(articles) > 0 && stats.ArticlesIndexed == 0 {
		return result, ErrNothingIndexed
	}
	return result, nil
}

// ingestArticle runs the pipeline for one article and returns its indexed
// chunks. Chunk-level embedding failures are recorded in stats; an error
// return means the whole article was skipped.
func (idx *Indexer) ingestArticle(ctx context.Context, article types.Article, sessionID string, stats *Statistics, log logger.Logger) ([]types.Chunk, error) {
	fetchStart := time.Now()
	text, err := idx.fetch(ctx, article.URL)
	idx.metrics.ObserveStage("fetch", fetchStart)
	if err != nil {
		return nil, err
	}

	pieces := idx.chunker.Split(text)
	if len(pieces) == 0 {
		return nil, types.NewCollaboratorError(types.CollaboratorFetch, article.URL, fetcher.ErrEmptyContent)
	}

	articleID := idx.newID()
	metadata := types.NewChunkMetadata(article, sessionID, articleID)

	chunks := make([]types.Chunk, len(pieces))
	errs := make([]error, len(pieces))

	embedStart := time.Now()
	var g errgroup.Group
	g.SetLimit(idx.workers)
	for i, piece := range pieces {
		if ctx.Err() != nil {
			break
		}
		chunks[i] = types.Chunk{
			ChunkID:   idx.newID(),
			ArticleID: articleID,
			Text:      piece,
			Metadata:  metadata,
		}
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					errs[i] = types.NewCollaboratorError(types.CollaboratorEmbedding, "embed", fmt.Errorf("panic: %v", p))
				}
			}()
			vector, err := embedder.Embed(ctx, idx.embedder, piece, idx.embedTimeout)
			if err != nil {
				errs[i] = err
				return nil
			}
			chunks[i].Embedding = vector
			return nil
		})
	}
	_ = g.Wait()
	idx.metrics.ObserveStage("embed", embedStart)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedded := make([]types.Chunk, 0, len(chunks))
	entries := make([]storage.Entry, 0, len(chunks))
	for i, c := range chunks {
		err := errs[i]
		if err == nil {
			err = c.Validate()
		}
		if err != nil {
			stats.ChunksFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s chunk %d: %v", article.URL, i, err))
			idx.metrics.ChunkFailed()
			log.Warn("skipping chunk", "url", article.URL, "chunk", i, "error", err)
			continue
		}
		embedded = append(embedded, c)
		entries = append(entries, storage.EntryFromChunk(c))
	}
	if len(embedded) == 0 {
		return nil, fmt.Errorf("%w: %d chunks", ErrNoChunksEmbedded, len(chunks))
	}

	indexStart := time.Now()
	err = idx.index.AddBatch(ctx, entries)
	idx.metrics.ObserveStage("index", indexStart)
	if err != nil {
		stats.ChunksFailed += len(entries)
		for range entries {
			idx.metrics.ChunkFailed()
		}
		return nil, err
	}
	return embedded, nil
}

// fetch bounds the fetch collaborator with the fetch timeout and reports an
// empty result as ErrEmptyContent.
func (idx *Indexer) fetch(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, "fetch", fetcher.ErrInvalidURL)
	}
	fctx, cancel := context.WithTimeout(ctx, idx.fetchTimeout)
	defer cancel()

	text, err := idx.fetcher.Fetch(fctx, rawURL)
	if err != nil {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, rawURL, err)
	}
	if text == "" {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, rawURL, fetcher.ErrEmptyContent)
	}
	return text, nil
}
