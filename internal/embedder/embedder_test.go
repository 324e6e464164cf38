package embedder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeHash(tt.text))
		})
	}
}

func TestCacheKey_ScopedByProviderAndModel(t *testing.T) {
	a := cacheKey(ProviderOpenAI, "m1", InputDocument, "text")
	b := cacheKey(ProviderOpenAI, "m2", InputDocument, "text")
	c := cacheKey(ProviderJina, "m1", InputDocument, "text")
	q := cacheKey(ProviderOpenAI, "m1", InputQuery, "text")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, q)
	assert.Equal(t, a, cacheKey(ProviderOpenAI, "m1", InputDocument, "text"))
	assert.Equal(t, a, cacheKey(ProviderOpenAI, "m1", "", "text"), "empty input type is a document")
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "hello"}))
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr error
	}{
		{name: "valid", req: BatchEmbeddingRequest{Texts: []string{"a", "b"}}},
		{name: "no texts", req: BatchEmbeddingRequest{}, wantErr: ErrInvalidInput},
		{name: "empty text in batch", req: BatchEmbeddingRequest{Texts: []string{"a", ""}}, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get returns copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("k", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

		got, ok := cache.Get("k")
		require.True(t, ok)
		got.Vector[0] = 99

		again, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("set stores copy", func(t *testing.T) {
		cache := NewCache(10)
		emb := &Embedding{Vector: []float32{1, 2, 3}}
		cache.Set("k", emb)
		emb.Vector[0] = 42

		got, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, float32(1), got.Vector[0])
	})

	t.Run("lru eviction", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{Vector: []float32{1}})
		cache.Set("b", &Embedding{Vector: []float32{2}})
		cache.Set("c", &Embedding{Vector: []float32{3}})

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("a")
		assert.False(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{Vector: []float32{1}})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("nil cache is a no-op", func(t *testing.T) {
		var cache *Cache
		cache.Set("a", &Embedding{Vector: []float32{1}})
		_, ok := cache.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, cache.Size())
		cache.Clear()
	})
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := mustNewLocalProvider(t)

	assert.Equal(t, ProviderLocal, p.Provider())
	assert.Equal(t, DefaultLocalModel, p.Model())
	assert.Equal(t, LocalDimension, p.Dimension())

	t.Run("deterministic", func(t *testing.T) {
		a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "acme launches new battery"})
		require.NoError(t, err)
		b, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "acme launches new battery"})
		require.NoError(t, err)
		assert.Equal(t, a.Vector, b.Vector)
		assert.Len(t, a.Vector, LocalDimension)
	})

	t.Run("shared vocabulary is closer", func(t *testing.T) {
		q, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "electric vehicle battery"})
		require.NoError(t, err)
		near, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "new battery for electric vehicle makers"})
		require.NoError(t, err)
		far, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "quarterly dividend announced by bank"})
		require.NoError(t, err)

		assert.Greater(t, dot(q.Vector, near.Vector), dot(q.Vector, far.Vector))
	})

	t.Run("unit length", func(t *testing.T) {
		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "one two three"})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, dot(emb.Vector, emb.Vector), 1e-5)
	})

	t.Run("punctuation only text is non-zero", func(t *testing.T) {
		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "!!!"})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, dot(emb.Vector, emb.Vector), 1e-5)
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{})
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("batch preserves order", func(t *testing.T) {
		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"alpha", "beta"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)

		alpha, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "alpha"})
		require.NoError(t, err)
		assert.Equal(t, alpha.Vector, resp.Embeddings[0].Vector)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.GenerateEmbedding(cctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNormalizeVector(t *testing.T) {
	got := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

// stubEmbedder lets tests drive Embed without a provider.
type stubEmbedder struct {
	vector []float32
	err    error
	delay  time.Duration
	input  InputType
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	s.input = req.InputType
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Embedding{Vector: s.vector, Dimension: len(s.vector)}, nil
}

func (s *stubEmbedder) GenerateBatch(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return nil, errors.New("not implemented")
}
func (s *stubEmbedder) Dimension() int   { return len(s.vector) }
func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Model() string    { return "stub" }
func (s *stubEmbedder) Close() error     { return nil }

func TestEmbed(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		stub := &stubEmbedder{vector: []float32{1, 0}}
		vec, err := Embed(ctx, stub, "hello", time.Second)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, vec)
		assert.Equal(t, InputDocument, stub.input)
	})

	t.Run("query input type", func(t *testing.T) {
		stub := &stubEmbedder{vector: []float32{1, 0}}
		_, err := EmbedQuery(ctx, stub, "hello", time.Second)
		require.NoError(t, err)
		assert.Equal(t, InputQuery, stub.input)

		_, err = EmbedQuery(ctx, &stubEmbedder{err: errors.New("boom")}, "hello", 0)
		assert.ErrorIs(t, err, types.ErrEmbedding)
	})

	t.Run("provider error is an embedding failure", func(t *testing.T) {
		cause := errors.New("boom")
		_, err := Embed(ctx, &stubEmbedder{err: cause}, "hello", 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrEmbedding)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("empty vector", func(t *testing.T) {
		_, err := Embed(ctx, &stubEmbedder{vector: []float32{}}, "hello", 0)
		assert.ErrorIs(t, err, ErrEmptyVector)
		assert.ErrorIs(t, err, types.ErrEmbedding)
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := Embed(ctx, &stubEmbedder{vector: []float32{1}, delay: time.Second}, "hello", 10*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, err, types.ErrEmbedding)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := Embed(ctx, nil, "hello", 0)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func mustNewLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(NewCache(100))
	require.NoError(t, err)
	return p
}
