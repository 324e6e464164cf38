package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/newsdigest-mcp/internal/embedder"
	"github.com/dshills/newsdigest-mcp/internal/fetcher"
	"github.com/dshills/newsdigest-mcp/internal/ids"
	"github.com/dshills/newsdigest-mcp/internal/metrics"
	"github.com/dshills/newsdigest-mcp/internal/storage"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// fakeFetcher serves canned pages by URL; unknown URLs fail.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	text, ok := f.pages[rawURL]
	if !ok {
		return "", errors.New("connection refused")
	}
	return text, nil
}

// fakeEmbedder wraps the local provider, failing texts containing poison and
// tracking the peak number of concurrent calls.
type fakeEmbedder struct {
	embedder.Embedder
	poison   string
	panicOn  string
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeEmbedder(t *testing.T) *fakeEmbedder {
	t.Helper()
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)
	return &fakeEmbedder{Embedder: local}
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicOn != "" && strings.Contains(req.Text, f.panicOn) {
		panic("provider client exploded")
	}
	if f.poison != "" && strings.Contains(req.Text, f.poison) {
		return nil, errors.New("quota exceeded")
	}
	return f.Embedder.GenerateEmbedding(ctx, req)
}

// failingIndex rejects every write.
type failingIndex struct {
	*storage.MemoryIndex
}

func (failingIndex) AddBatch(context.Context, []storage.Entry) error {
	return types.NewIndexError("add", errors.New("disk full"))
}

func article(url, focus string) types.Article {
	return types.NewArticle(types.SearchHit{URL: url, Title: "Title " + url, Snippet: "snippet " + url}, focus, []string{"battery", "ev"})
}

func testConfig() Config {
	return Config{ChunkSize: 100, ChunkOverlap: 20, Workers: 3, EmbedTimeout: time.Second, FetchTimeout: time.Second}
}

// longText returns n characters built from distinct words.
func longText(prefix string, n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString(prefix)
		b.WriteString(" word ")
	}
	return b.String()[:n]
}

func TestNew(t *testing.T) {
	f := &fakeFetcher{}
	e := newFakeEmbedder(t)
	idx := storage.NewMemoryIndex()

	t.Run("invalid overlap", func(t *testing.T) {
		_, err := New(f, e, idx, Config{ChunkSize: 100, ChunkOverlap: 100})
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})

	t.Run("negative size", func(t *testing.T) {
		_, err := New(f, e, idx, Config{ChunkSize: -1})
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})

	t.Run("missing dependency", func(t *testing.T) {
		_, err := New(nil, e, idx, testConfig())
		assert.Error(t, err)
	})

	t.Run("zero config uses defaults", func(t *testing.T) {
		ix, err := New(f, e, idx, Config{})
		require.NoError(t, err)
		assert.Equal(t, 1000, ix.chunker.Size())
		assert.Equal(t, 200, ix.chunker.Overlap())
		assert.Equal(t, DefaultWorkers, ix.workers)
		assert.Equal(t, DefaultEmbedTimeout, ix.embedTimeout)
		assert.Equal(t, DefaultFetchTimeout, ix.fetchTimeout)
	})
}

func TestIngest_FaultIsolation(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": longText("alpha", 250),
		"https://a.example/3": longText("gamma", 90),
	}}
	index := storage.NewMemoryIndex()
	ix, err := New(f, newFakeEmbedder(t), index, testConfig())
	require.NoError(t, err)

	articles := []types.Article{
		article("https://a.example/1", "batteries"),
		article("https://a.example/2", "batteries"),
		article("https://a.example/3", "pricing"),
	}
	res, err := ix.Ingest(ctx, articles, "session_1")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.ArticlesTotal)
	assert.Equal(t, 2, res.Stats.ArticlesIndexed)
	assert.Equal(t, 1, res.Stats.ArticlesSkipped)
	assert.Equal(t, 4, res.Stats.ChunksCreated) // 3 windows for 250 chars, 1 for 90
	assert.Zero(t, res.Stats.ChunksFailed)
	require.Len(t, res.Stats.ErrorMessages, 1)
	assert.Contains(t, res.Stats.ErrorMessages[0], "https://a.example/2")

	require.Len(t, res.Chunks, 4)
	assert.Equal(t, "https://a.example/1", res.Chunks[0].Metadata.Link)
	assert.Equal(t, "https://a.example/3", res.Chunks[3].Metadata.Link)

	count, err := index.Count(ctx, &storage.Filter{SessionID: "session_1"})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}, f.calls)
}

func TestIngest_ChunkMetadataAndIDs(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://a.example/1": longText("alpha", 250)}}
	ix, err := New(f, newFakeEmbedder(t), storage.NewMemoryIndex(), testConfig(), WithIDGenerator(ids.Sequence("id")))
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), []types.Article{article("https://a.example/1", "batteries")}, "session_x")
	require.NoError(t, err)
	require.Len(t, res.Chunks, 3)

	seen := map[string]bool{}
	for i, c := range res.Chunks {
		assert.Equal(t, "id-1", c.ArticleID)
		assert.Equal(t, "id-1", c.Metadata.ArticleID)
		assert.False(t, seen[c.ChunkID], "chunk ids are unique")
		seen[c.ChunkID] = true
		assert.Equal(t, "session_x", c.Metadata.SessionID)
		assert.Equal(t, "batteries", c.Metadata.Category)
		assert.Equal(t, "Title https://a.example/1", c.Metadata.Title)
		assert.Equal(t, "snippet https://a.example/1", c.Metadata.Snippet)
		assert.Equal(t, []string{"battery", "ev"}, c.Metadata.Keywords)
		assert.Len(t, c.Embedding, embedder.LocalDimension)
		if i < len(res.Chunks)-1 {
			assert.Len(t, c.Text, 100)
		}
	}
	assert.Equal(t, res.Chunks[0].Text[80:100], res.Chunks[1].Text[:20], "windows overlap")
}

func TestIngest_ChunkFailureDoesNotAbortArticle(t *testing.T) {
	text := longText("alpha", 100) + strings.Repeat("POISON ", 20)
	f := &fakeFetcher{pages: map[string]string{"https://a.example/1": text}}
	e := newFakeEmbedder(t)
	e.poison = "POISON"

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ix, err := New(f, e, storage.NewMemoryIndex(), testConfig(), WithMetrics(m))
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), []types.Article{article("https://a.example/1", "fp")}, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.ArticlesIndexed)
	assert.Equal(t, 1, res.Stats.ChunksCreated)
	assert.Equal(t, 2, res.Stats.ChunksFailed)
	assert.Len(t, res.Stats.ErrorMessages, 2)

	assert.Equal(t, 1.0, counterValue(t, reg, "newsdigest_articles_total", "indexed"))
	assert.Equal(t, 2.0, counterValue(t, reg, "newsdigest_chunks_total", "failed"))
	assert.Equal(t, 1.0, counterValue(t, reg, "newsdigest_chunks_total", "indexed"))
}

func TestIngest_EmbedPanicIsChunkFailure(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": longText("alpha", 100) + strings.Repeat("BOOM ", 20),
		"https://a.example/2": longText("beta", 90),
	}}
	e := newFakeEmbedder(t)
	e.panicOn = "BOOM"
	ix, err := New(f, e, storage.NewMemoryIndex(), testConfig())
	require.NoError(t, err)

	var res *Result
	require.NotPanics(t, func() {
		res, err = ix.Ingest(context.Background(), []types.Article{
			article("https://a.example/1", "fp"),
			article("https://a.example/2", "fp"),
		}, "s")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.ArticlesIndexed)
	assert.Equal(t, 2, res.Stats.ChunksFailed)
	require.NotEmpty(t, res.Stats.ErrorMessages)
	assert.Contains(t, res.Stats.ErrorMessages[0], "panic: provider client exploded")
}

func TestIngest_InvalidChunkIsSkipped(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://a.example/1": longText("alpha", 150)}}
	index := storage.NewMemoryIndex()
	ix, err := New(f, newFakeEmbedder(t), index, testConfig(), WithIDGenerator(func() string { return "" }))
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), []types.Article{article("https://a.example/1", "fp")}, "s")
	assert.ErrorIs(t, err, ErrNothingIndexed)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Stats.ChunksFailed)
	assert.Contains(t, res.Stats.ErrorMessages[0], types.ErrInvalidChunkID.Error())

	n, err := index.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngest_AllChunksFailSkipsArticle(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://a.example/1": "POISON only"}}
	e := newFakeEmbedder(t)
	e.poison = "POISON"
	ix, err := New(f, e, storage.NewMemoryIndex(), testConfig())
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), []types.Article{article("https://a.example/1", "fp")}, "s")
	assert.ErrorIs(t, err, ErrNothingIndexed)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Stats.ArticlesSkipped)
	assert.Equal(t, 1, res.Stats.ChunksFailed)
}

func TestIngest_NothingIndexed(t *testing.T) {
	ix, err := New(&fakeFetcher{}, newFakeEmbedder(t), storage.NewMemoryIndex(), testConfig())
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), []types.Article{article("https://x/1", "a"), article("", "a")}, "s")
	assert.ErrorIs(t, err, ErrNothingIndexed)
	assert.Equal(t, 2, res.Stats.ArticlesSkipped)
	assert.Empty(t, res.Chunks)
}

func TestIngest_EmptyInput(t *testing.T) {
	ix, err := New(&fakeFetcher{}, newFakeEmbedder(t), storage.NewMemoryIndex(), testConfig())
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), nil, "s")
	require.NoError(t, err)
	assert.Zero(t, res.Stats.ArticlesTotal)
	assert.NotNil(t, res.Chunks)
}

func TestIngest_EmptyPageIsSkipped(t *testing.T) {
	f := fetcher.Func(func(context.Context, string) (string, error) { return "", nil })
	ix, err := New(f, newFakeEmbedder(t), storage.NewMemoryIndex(), testConfig())
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), []types.Article{article("https://x/1", "a")}, "s")
	assert.ErrorIs(t, err, ErrNothingIndexed)
	require.Len(t, res.Stats.ErrorMessages, 1)
	assert.Contains(t, res.Stats.ErrorMessages[0], fetcher.ErrEmptyContent.Error())
}

func TestIngest_IndexWriteFailure(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://a.example/1": longText("alpha", 250)}}
	ix, err := New(f, newFakeEmbedder(t), failingIndex{storage.NewMemoryIndex()}, testConfig())
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), []types.Article{article("https://a.example/1", "fp")}, "s")
	assert.ErrorIs(t, err, ErrNothingIndexed)
	assert.Equal(t, 3, res.Stats.ChunksFailed)
	assert.Zero(t, res.Stats.ChunksCreated)
	assert.Contains(t, res.Stats.ErrorMessages[0], "disk full")
}

func TestIngest_WorkerLimit(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://a.example/1": longText("alpha", 1000)}}
	e := newFakeEmbedder(t)
	e.delay = 10 * time.Millisecond
	cfg := testConfig()
	cfg.Workers = 2
	ix, err := New(f, e, storage.NewMemoryIndex(), cfg)
	require.NoError(t, err)

	res, err := ix.Ingest(context.Background(), []types.Article{article("https://a.example/1", "fp")}, "s")
	require.NoError(t, err)
	assert.Greater(t, res.Stats.ChunksCreated, 2)
	assert.LessOrEqual(t, e.peak.Load(), int32(2))
}

func TestIngest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := fetcher.Func(func(context.Context, string) (string, error) {
		cancel()
		return longText("alpha", 250), nil
	})
	ix, err := New(f, newFakeEmbedder(t), storage.NewMemoryIndex(), testConfig())
	require.NoError(t, err)

	res, err := ix.Ingest(ctx, []types.Article{article("https://x/1", "a"), article("https://x/2", "a")}, "s")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.Stats.ArticlesIndexed)
}

func TestIngest_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{pages: map[string]string{
		"https://a.example/battery": "Battery news: Acme battery breakthrough, battery cells for electric vehicles.",
		"https://a.example/bank":    "The central bank held interest rates steady amid inflation worries.",
	}}
	e := newFakeEmbedder(t)
	index := storage.NewMemoryIndex()
	ix, err := New(f, e, index, testConfig())
	require.NoError(t, err)

	res, err := ix.Ingest(ctx, []types.Article{
		article("https://a.example/battery", "batteries"),
		article("https://a.example/bank", "rates"),
	}, "s")
	require.NoError(t, err)

	query, err := embedder.Embed(ctx, e, "battery", time.Second)
	require.NoError(t, err)
	matches, err := index.Query(ctx, query, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, res.Chunks[0].ArticleID, matches[0].Metadata.ArticleID)
}

func TestIndexLock(t *testing.T) {
	var l IndexLock
	assert.False(t, l.Held())
	require.True(t, l.TryAcquire())
	assert.True(t, l.Held())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
	l.Release()
}

// counterValue reads a labelled counter from reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}
