package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"
)

// Provider configuration
const (
	ProviderGoogleAI = "googleai"
	ProviderCohere   = "cohere"
	ProviderJina     = "jina"
	ProviderOpenAI   = "openai"
	ProviderLocal    = "local"

	// Default models
	DefaultGoogleAIModel = "models/embedding-001"
	DefaultCohereModel   = "embed-english-v3.0"
	DefaultJinaModel     = "jina-embeddings-v3"
	DefaultOpenAIModel   = "text-embedding-3-small"
	DefaultLocalModel    = "local-hashed-bow"

	// Dimensions
	GoogleAIDimension = 768
	CohereDimension   = 1024
	JinaDimension     = 1024
	OpenAIDimension   = 1536
	LocalDimension    = 384

	// Endpoints
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// DefaultCacheSize is the number of embeddings kept by NewCache(0)
	DefaultCacheSize = 10000

	// DefaultHTTPTimeout bounds a single provider HTTP call
	DefaultHTTPTimeout = 30 * time.Second

	// Retry configuration
	MaxRetries       = 3
	InitialBackoffMs = 100
	MaxBackoffMs     = 5000
)

// openAICompatible calls an OpenAI-style /embeddings endpoint. Jina serves
// the same request and response shape and also takes a retrieval task.
type openAICompatible struct {
	client *resty.Client
	tasks  map[InputType]string
}

// jinaTasks are the Jina v3 retrieval adapters for stored passages and queries.
var jinaTasks = map[InputType]string{
	InputDocument: "retrieval.passage",
	InputQuery:    "retrieval.query",
}

func newOpenAICompatible(baseURL, apiKey string) *openAICompatible {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(DefaultHTTPTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)
	return &openAICompatible{client: client}
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (o *openAICompatible) embedTexts(ctx context.Context, texts []string, model string, input InputType) ([][]float32, error) {
	body := map[string]interface{}{
		"input": texts,
		"model": model,
	}
	if task, ok := o.tasks[input]; ok {
		body["task"] = task
	}

	var apiResp embeddingsResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&apiResp).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	if resp.IsError() {
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
		if resp.StatusCode() != http.StatusTooManyRequests && resp.StatusCode() < 500 {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	vectors := make([][]float32, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, permanent(fmt.Errorf("response index %d out of range", data.Index))
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}

func (o *openAICompatible) close() error {
	o.client.GetClient().CloseIdleConnections()
	return nil
}

// JinaProvider implements Embedder using Jina AI API
type JinaProvider struct {
	remote
	api *openAICompatible
}

// NewJinaProvider creates a new Jina AI embedder. An empty baseURL uses the public endpoint.
func NewJinaProvider(apiKey, baseURL string, cache *Cache) (*JinaProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultJinaBaseURL
	}
	api := newOpenAICompatible(baseURL, apiKey)
	api.tasks = jinaTasks
	p := &JinaProvider{api: api}
	p.remote = remote{
		provider:  ProviderJina,
		model:     DefaultJinaModel,
		dimension: JinaDimension,
		maxBatch:  MaxBatchSize,
		cache:     cache,
		retryCfg:  DefaultRetryConfig(),
		impl:      p.api,
	}
	return p, nil
}

func (j *JinaProvider) Close() error {
	return j.api.close()
}

// OpenAIProvider implements Embedder using OpenAI API
type OpenAIProvider struct {
	remote
	api *openAICompatible
}

// NewOpenAIProvider creates a new OpenAI embedder. An empty baseURL uses the public endpoint.
func NewOpenAIProvider(apiKey, baseURL string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	p := &OpenAIProvider{api: newOpenAICompatible(baseURL, apiKey)}
	p.remote = remote{
		provider:  ProviderOpenAI,
		model:     DefaultOpenAIModel,
		dimension: OpenAIDimension,
		maxBatch:  MaxBatchSize,
		cache:     cache,
		retryCfg:  DefaultRetryConfig(),
		impl:      p.api,
	}
	return p, nil
}

func (o *OpenAIProvider) Close() error {
	return o.api.close()
}

// LocalProvider embeds text without any network call using a hashed
// bag-of-words: each lower-cased token is hashed into one of LocalDimension
// buckets and the resulting term-frequency vector is L2-normalized. Texts
// sharing vocabulary land close together, which is enough for offline runs
// and tests.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: DefaultLocalModel,
		cache: cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(ProviderLocal, l.model, InputDocument, req.Text)
	if emb, ok := l.cache.Get(key); ok {
		return emb, nil
	}

	emb := &Embedding{
		Vector:    hashedBagOfWords(req.Text, LocalDimension),
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      key,
	}
	l.cache.Set(key, emb)
	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// hashedBagOfWords maps tokens to buckets by SHA-256 and returns the
// normalized term-frequency vector. Text without any token falls back to a
// single bucket derived from the whole text so the vector is never zero.
func hashedBagOfWords(text string, dim int) []float32 {
	vector := make([]float32, dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		tokens = []string{text}
	}
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		bucket := binary.LittleEndian.Uint32(sum[:4]) % uint32(dim)
		vector[bucket]++
	}
	return NormalizeVector(vector)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
