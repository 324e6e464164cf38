package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/newsdigest-mcp/internal/embedder"
	"github.com/dshills/newsdigest-mcp/internal/logger"
	"github.com/dshills/newsdigest-mcp/internal/storage"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// ErrInvalidRequest is returned for an empty query or a limit below 1
var ErrInvalidRequest = errors.New("invalid retrieval request")

const (
	// DefaultCacheSize is the number of cached queries
	DefaultCacheSize = 1000
	// DefaultCacheTTL applies when a request asks for caching without a TTL
	DefaultCacheTTL = 10 * time.Minute
	// DefaultEmbedTimeout bounds the query embedding call
	DefaultEmbedTimeout = 30 * time.Second
)

// RetrieveRequest contains parameters for a retrieval
type RetrieveRequest struct {
	Query    string
	Limit    int
	Filter   *storage.Filter // Optional: nil searches the whole index
	UseCache bool            // Whether to use the query cache
	CacheTTL time.Duration
}

// cacheEntry represents cached results with expiration time
type cacheEntry struct {
	results   []types.RetrievalResult
	expiresAt time.Time
}

// Searcher runs queries through the embedder and the vector index. It must
// share its Embedder with the ingestion pipeline.
type Searcher struct {
	index        storage.VectorIndex
	embedder     embedder.Embedder
	embedTimeout time.Duration
	log          logger.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
	now     func() time.Time
}

// Option customises a Searcher
type Option func(*Searcher)

// WithEmbedTimeout overrides DefaultEmbedTimeout
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Searcher) {
		if d > 0 {
			s.embedTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Searcher) { s.log = logger.OrNop(l) }
}

// WithCacheSize overrides DefaultCacheSize
func WithCacheSize(n int) Option {
	return func(s *Searcher) {
		if n <= 0 {
			return
		}
		if cache, err := lru.New[[32]byte, *cacheEntry](n); err == nil {
			s.cache = cache
		}
	}
}

// NewSearcher creates a new Searcher instance
func NewSearcher(index storage.VectorIndex, emb embedder.Embedder, opts ...Option) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](DefaultCacheSize)
	if err != nil {
		// Only possible with a non-positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	s := &Searcher{
		index:        index,
		embedder:     emb,
		embedTimeout: DefaultEmbedTimeout,
		log:          logger.Nop(),
		cache:        cache,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve embeds req.Query and returns up to req.Limit nearest chunks,
// nearest first, with RelevanceScore = 1 - Distance. An embedding failure
// fails the whole call.
func (s *Searcher) Retrieve(ctx context.Context, req RetrieveRequest) ([]types.RetrievalResult, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	hash := computeQueryHash(req)
	if req.UseCache {
		if cached, ok := s.checkCache(hash); ok {
			s.log.Debug("retrieval cache hit", "query", req.Query)
			return cached, nil
		}
	}

	vector, err := embedder.EmbedQuery(ctx, s.embedder, req.Query, s.embedTimeout)
	if err != nil {
		return nil, err
	}

	matches, err := s.index.Query(ctx, vector, req.Limit, req.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]types.RetrievalResult, len(matches))
	for i, m := range matches {
		results[i] = types.NewRetrievalResult(m.ChunkID, m.Text, m.Metadata, m.Distance)
	}

	if req.UseCache {
		s.storeInCache(hash, results, req.CacheTTL)
	}
	return results, nil
}

// validateRequest checks req and fills defaults
func validateRequest(req *RetrieveRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}
	if req.Limit < 1 {
		return fmt.Errorf("%w: limit must be at least 1, got %d", ErrInvalidRequest, req.Limit)
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// checkCache looks up cached results, dropping expired entries
func (s *Searcher) checkCache(hash [32]byte) ([]types.RetrievalResult, bool) {
	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	s.cacheMu.RUnlock()
	if !found {
		return nil, false
	}

	if s.now().After(entry.expiresAt) {
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, false
	}
	return copyResults(entry.results), true
}

// storeInCache saves a deep copy of results
func (s *Searcher) storeInCache(hash [32]byte, results []types.RetrievalResult, ttl time.Duration) {
	entry := &cacheEntry{
		results:   copyResults(results),
		expiresAt: s.now().Add(ttl),
	}
	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

func copyResults(src []types.RetrievalResult) []types.RetrievalResult {
	dst := make([]types.RetrievalResult, len(src))
	copy(dst, src)
	for i := range dst {
		if src[i].Metadata.Keywords != nil {
			dst[i].Metadata.Keywords = append([]string(nil), src[i].Metadata.Keywords...)
		}
	}
	return dst
}

// computeQueryHash computes a unique hash for a retrieval request
func computeQueryHash(req RetrieveRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	if req.Filter != nil {
		data.WriteString("|session:")
		data.WriteString(req.Filter.SessionID)
		data.WriteString("|category:")
		data.WriteString(req.Filter.Category)
	}
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache removes every cached query. The index has no per-entry
// invalidation, so new ingestions purge everything.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached queries
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
