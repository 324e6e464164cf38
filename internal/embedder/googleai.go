package embedder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
)

// LangchainProvider implements Embedder over a langchaingo embedder, such as
// Google AI embeddings.
type LangchainProvider struct {
	remote
	lc embeddings.Embedder
}

type langchainBatch struct {
	lc embeddings.Embedder
}

func (l langchainBatch) embedTexts(ctx context.Context, texts []string, _ string, input InputType) ([][]float32, error) {
	if input != InputQuery {
		return l.lc.EmbedDocuments(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.lc.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// NewGoogleAIProvider creates a Google AI embedder for model (DefaultGoogleAIModel when empty).
func NewGoogleAIProvider(ctx context.Context, apiKey, model string, cache *Cache) (*LangchainProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvGoogleAPIKey)
	}
	if model == "" {
		model = DefaultGoogleAIModel
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(DefaultBatchSize))
	if err != nil {
		return nil, fmt.Errorf("googleai embedder: %w", err)
	}
	return WrapLangchain(ProviderGoogleAI, model, GoogleAIDimension, impl, cache), nil
}

// WrapLangchain adapts any langchaingo embedder to Embedder, adding the
// shared cache and retry behaviour.
func WrapLangchain(provider, model string, dimension int, impl embeddings.Embedder, cache *Cache) *LangchainProvider {
	p := &LangchainProvider{lc: impl}
	p.remote = remote{
		provider:  provider,
		model:     model,
		dimension: dimension,
		maxBatch:  MaxBatchSize,
		cache:     cache,
		retryCfg:  DefaultRetryConfig(),
		impl:      langchainBatch{lc: impl},
	}
	return p
}

func (g *LangchainProvider) Close() error {
	return nil
}
