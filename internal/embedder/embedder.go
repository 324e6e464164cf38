package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrEmptyVector       = errors.New("provider returned an empty vector")
)

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash for caching
}

// InputType tells asymmetric models whether text is stored or searched for.
// Symmetric providers ignore it.
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

func (t InputType) orDocument() InputType {
	if t == InputQuery {
		return InputQuery
	}
	return InputDocument
}

// EmbeddingRequest represents a request to generate embeddings
type EmbeddingRequest struct {
	Text      string
	Model     string    // Optional: override default model
	InputType InputType // Empty means InputDocument
}

// BatchEmbeddingRequest represents a batch request
type BatchEmbeddingRequest struct {
	Texts     []string
	Model     string // Optional: override default model
	InputType InputType
}

// BatchEmbeddingResponse represents a batch response
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder interface defines methods for generating embeddings.
// Ingestion and retrieval must share one Embedder so chunks and queries live
// in the same vector space.
type Embedder interface {
	// GenerateEmbedding generates a single embedding for the given text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch generates embeddings for multiple texts efficiently
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Embed is the text -> vector call used by ingestion. It bounds the call
// with timeout (when positive) and reports every failure as an embedding
// CollaboratorError.
func Embed(ctx context.Context, e Embedder, text string, timeout time.Duration) ([]float32, error) {
	return embed(ctx, e, EmbeddingRequest{Text: text, InputType: InputDocument}, timeout)
}

// EmbedQuery is Embed for retrieval queries.
func EmbedQuery(ctx context.Context, e Embedder, text string, timeout time.Duration) ([]float32, error) {
	return embed(ctx, e, EmbeddingRequest{Text: text, InputType: InputQuery}, timeout)
}

func embed(ctx context.Context, e Embedder, req EmbeddingRequest, timeout time.Duration) ([]float32, error) {
	if e == nil {
		return nil, types.NewCollaboratorError(types.CollaboratorEmbedding, "embed", ErrNoProviderEnabled)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	emb, err := e.GenerateEmbedding(ctx, req)
	if err != nil {
		return nil, types.NewCollaboratorError(types.CollaboratorEmbedding, e.Provider(), err)
	}
	if emb == nil || len(emb.Vector) == 0 {
		return nil, types.NewCollaboratorError(types.CollaboratorEmbedding, e.Provider(), ErrEmptyVector)
	}
	return emb.Vector, nil
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a deep copy of an embedding from cache
// Returns a copy to prevent caller mutations from affecting cached values
func (c *Cache) Get(hash string) (*Embedding, bool) {
	if c == nil {
		return nil, false
	}
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return copyEmbedding(emb), true
}

// Set stores a copy of an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, emb *Embedding) {
	if c == nil || emb == nil {
		return
	}
	c.cache.Add(hash, copyEmbedding(emb))
}

// Size returns the current cache size
func (c *Cache) Size() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.cache.Purge()
}

func copyEmbedding(emb *Embedding) *Embedding {
	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)
	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}
}

// cacheKey scopes a text hash to a provider, model and input type so a
// query vector is never served for a document or from another model's space.
func cacheKey(provider, model string, input InputType, text string) string {
	return provider + ":" + model + ":" + string(input.orDocument()) + ":" + ComputeHash(text)
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateRequest validates an embedding request
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}

// batchEmbedder is the provider-specific part of a remote Embedder.
type batchEmbedder interface {
	embedTexts(ctx context.Context, texts []string, model string, input InputType) ([][]float32, error)
}

// remote implements the shared request flow for network providers:
// validation, cache lookup, retry with backoff, cache fill.
type remote struct {
	provider  string
	model     string
	dimension int
	maxBatch  int
	cache     *Cache
	retryCfg  RetryConfig
	impl      batchEmbedder
}

func (r *remote) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := r.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model, InputType: req.InputType})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (r *remote) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if r.maxBatch > 0 && len(req.Texts) > r.maxBatch {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, r.maxBatch)
	}

	model := req.Model
	if model == "" {
		model = r.model
	}
	input := req.InputType.orDocument()

	out := make([]*Embedding, len(req.Texts))
	var missing []string
	var missingIdx []int
	for i, text := range req.Texts {
		if emb, ok := r.cache.Get(cacheKey(r.provider, model, input, text)); ok {
			out[i] = emb
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vectors, err := retryWithBackoff(ctx, r.retryCfg, func(ctx context.Context) ([][]float32, error) {
			return r.impl.embedTexts(ctx, missing, model, input)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		if len(vectors) != len(missing) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(missing), len(vectors))
		}
		for j, vec := range vectors {
			if len(vec) == 0 {
				return nil, fmt.Errorf("%w: %v at index %d", ErrProviderFailed, ErrEmptyVector, missingIdx[j])
			}
			key := cacheKey(r.provider, model, input, missing[j])
			emb := &Embedding{
				Vector:    vec,
				Dimension: len(vec),
				Provider:  r.provider,
				Model:     model,
				Hash:      key,
			}
			r.cache.Set(key, emb)
			out[missingIdx[j]] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: out,
		Provider:   r.provider,
		Model:      model,
	}, nil
}

func (r *remote) Dimension() int   { return r.dimension }
func (r *remote) Provider() string { return r.provider }
func (r *remote) Model() string    { return r.model }
