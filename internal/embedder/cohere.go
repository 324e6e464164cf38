package embedder

import (
	"context"
	"fmt"
	"net/http"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// CohereProvider implements Embedder using the Cohere v2 embed API.
type CohereProvider struct {
	remote
	httpClient *http.Client
}

type cohereBatch struct {
	client *cohereclient.Client
}

func cohereInputType(input InputType) cohere.EmbedInputType {
	if input == InputQuery {
		return cohere.EmbedInputTypeSearchQuery
	}
	return cohere.EmbedInputTypeSearchDocument
}

func (c cohereBatch) embedTexts(ctx context.Context, texts []string, model string, input InputType) ([][]float32, error) {
	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          model,
		InputType:      cohereInputType(input),
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, permanent(fmt.Errorf("cohere embed returned no float embeddings"))
	}

	out := make([][]float32, len(resp.Embeddings.Float))
	for i, vec := range resp.Embeddings.Float {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out, nil
}

// NewCohereProvider creates a Cohere embedder for model (DefaultCohereModel when empty).
func NewCohereProvider(apiKey, model string, cache *Cache) (*CohereProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvCohereAPIKey)
	}
	if model == "" {
		model = DefaultCohereModel
	}
	httpClient := &http.Client{Timeout: DefaultHTTPTimeout}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	p := &CohereProvider{httpClient: httpClient}
	p.remote = remote{
		provider:  ProviderCohere,
		model:     model,
		dimension: CohereDimension,
		maxBatch:  96,
		cache:     cache,
		retryCfg:  DefaultRetryConfig(),
		impl:      cohereBatch{client: client},
	}
	return p, nil
}

func (c *CohereProvider) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
