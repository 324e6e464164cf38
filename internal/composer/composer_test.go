package composer

import (
	"context"
	"encoding/json"
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
	"github.com/dshills/newsdigest-mcp/internal/indexer"
	"github.com/dshills/newsdigest-mcp/internal/keywords"
	"github.com/dshills/newsdigest-mcp/internal/logger"
	"github.com/dshills/newsdigest-mcp/internal/metrics"
	"github.com/dshills/newsdigest-mcp/internal/searcher"
	"github.com/dshills/newsdigest-mcp/internal/session"
	"github.com/dshills/newsdigest-mcp/internal/storage"
	"github.com/dshills/newsdigest-mcp/internal/websearch"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedTime }

// fakeKeywords returns a fixed keyword set and counts calls.
type fakeKeywords struct {
	set   *types.KeywordSet
	err   error
	panic bool
	calls atomic.Int32
}

func (f *fakeKeywords) Extract(_ context.Context, _ string, _ []string) (*types.KeywordSet, error) {
	f.calls.Add(1)
	if f.panic {
		panic("model client exploded")
	}
	return f.set, f.err
}

func automotive() *fakeKeywords {
	return &fakeKeywords{set: &types.KeywordSet{
		Industry: "Automotive",
		Keywords: map[string][]string{
			"battery technology": {"solid state", "battery"},
			"pricing":            {"price cut"},
		},
	}}
}

// fakeSearch answers by focus point keyword and records every query.
type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	hits    map[string][]types.SearchHit // keyed by a substring of the query
	fail    string                       // queries containing this fail
}

func (f *fakeSearch) Search(_ context.Context, query string, _ int) ([]types.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.fail != "" && strings.Contains(query, f.fail) {
		return nil, types.NewCollaboratorError(types.CollaboratorSearch, "request", errors.New("status 500"))
	}
	for key, hits := range f.hits {
		if strings.Contains(query, key) {
			return hits, nil
		}
	}
	return nil, nil
}

func (f *fakeSearch) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func newsSearch() *fakeSearch {
	return &fakeSearch{hits: map[string][]types.SearchHit{
		"solid state": {
			{URL: "https://news.example/battery-1", Title: "Battery one", Snippet: "cells"},
			{URL: "https://news.example/battery-2", Title: "Battery two"},
			{URL: "https://news.example/battery-1", Title: "Battery one again"},
			{URL: " ", Title: "no url"},
		},
		"price cut": {
			{URL: "https://news.example/price-1", Title: "Price one"},
		},
	}}
}

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	text, ok := f.pages[rawURL]
	if !ok {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, "get", errors.New("connection refused"))
	}
	return text, nil
}

func pages() map[string]string {
	return map[string]string{
		"https://news.example/battery-1": strings.Repeat("Acme unveils a solid state battery with faster charging. ", 20),
		"https://news.example/battery-2": strings.Repeat("Battery supply deals expand across the industry. ", 20),
		"https://news.example/price-1":   strings.Repeat("Acme announces a price cut on its compact model. ", 20),
	}
}

// pipeline wires the real indexer and searcher over an in-memory index.
type pipeline struct {
	index    *storage.MemoryIndex
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

func newPipeline(t *testing.T, f fetcher.Fetcher) *pipeline {
	t.Helper()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)
	index := storage.NewMemoryIndex()
	t.Cleanup(func() { _ = index.Close() })

	idx, err := indexer.New(f, emb, index, indexer.Config{
		ChunkSize:    200,
		ChunkOverlap: 40,
		Workers:      2,
	}, indexer.WithIDGenerator(ids.Sequence("id")))
	require.NoError(t, err)

	return &pipeline{index: index, indexer: idx, searcher: searcher.NewSearcher(index, emb)}
}

func newComposer(t *testing.T, deps Deps, cfg Config) *Composer {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = clock
	}
	c, err := New(deps, cfg)
	require.NoError(t, err)
	return c
}

func states(res *Result) []State {
	out := make([]State, len(res.Transitions))
	for i, tr := range res.Transitions {
		out[i] = tr.State
	}
	return out
}

func TestCompose_EndToEnd(t *testing.T) {
	p := newPipeline(t, &fakeFetcher{pages: pages()})
	search := newsSearch()
	history := session.NewHistory(nil)
	reg := prometheus.NewRegistry()

	c := newComposer(t, Deps{
		Keywords: automotive(),
		Search:   search,
		Indexer:  p.indexer,
		Searcher: p.searcher,
		History:  history,
		Metrics:  metrics.New(reg),
	}, DefaultConfig())

	res := c.Compose(context.Background(), Request{
		Company:     "Acme",
		FocusPoints: []string{"battery technology", "pricing"},
	})

	require.False(t, res.Failed(), "unexpected failure: %+v", res.Error)
	assert.Equal(t, StateComposed, res.State)
	assert.Equal(t, []State{
		StateInitialized, StateKeywordsExtracted, StateNewsFetched, StateIngested, StateComposed,
	}, states(res))
	assert.Nil(t, res.Error)

	report := res.Report
	require.NotNil(t, report)
	assert.Equal(t, "Acme", report.Company)
	assert.Equal(t, "Automotive", report.Industry)
	assert.Equal(t, "session_20260301_120000", report.SessionID)
	assert.True(t, report.Timestamp.Equal(fixedTime))
	require.Len(t, report.NewsSummary, 2)
	assert.Equal(t, "battery technology", report.NewsSummary[0].FocusPoint)
	assert.Equal(t, "pricing", report.NewsSummary[1].FocusPoint)
	for _, fs := range report.NewsSummary {
		assert.Empty(t, fs.Error)
		require.NotEmpty(t, fs.Articles)
		assert.LessOrEqual(t, len(fs.Articles), DefaultMaxResults)
		assert.True(t, strings.HasSuffix(fs.Articles[0].TextSnippet, "..."))
	}

	// search queries follow focus point order and use the extracted keywords
	assert.Equal(t, []string{
		"Automotive solid state battery news",
		"Automotive price cut news",
	}, search.Queries())

	// duplicate and empty URLs were dropped before ingestion
	require.NotNil(t, res.Ingest)
	assert.Equal(t, 3, res.Ingest.ArticlesTotal)
	assert.Equal(t, 3, res.Ingest.ArticlesIndexed)

	n, err := p.index.Count(context.Background(), &storage.Filter{SessionID: report.SessionID})
	require.NoError(t, err)
	assert.Equal(t, res.Ingest.ChunksCreated, n)

	stored, ok := history.Get(report.SessionID)
	require.True(t, ok)
	assert.Equal(t, "Automotive", stored.Industry)
	assert.Equal(t, []string{"battery technology", "pricing"}, stored.FocusPoints)

	assert.Equal(t, 1.0, counterValue(t, reg, "newsdigest_compositions_total", "composed"))

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "news_summary")
	assert.NotContains(t, doc, "error")
}

func TestCompose_KeywordExtractionFailure(t *testing.T) {
	extractor := keywords.NewExtractor(keywords.CompleterFunc(func(context.Context, string) (string, error) {
		return "", nil
	}))
	search := newsSearch()
	p := newPipeline(t, &fakeFetcher{pages: pages()})

	c := newComposer(t, Deps{Keywords: extractor, Search: search, Indexer: p.indexer, Searcher: p.searcher}, DefaultConfig())
	res := c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"pricing"}, SessionID: "session_kw"})

	require.True(t, res.Failed())
	assert.Nil(t, res.Report)
	require.NotNil(t, res.Error)
	assert.Equal(t, "session_kw", res.Error.SessionID)
	assert.False(t, res.Error.Timestamp.IsZero())
	assert.ErrorIs(t, res.Err, types.ErrComposition)
	assert.ErrorIs(t, res.Err, types.ErrKeywordExtraction)
	assert.ErrorIs(t, res.Err, keywords.ErrMalformedResponse)
	assert.Equal(t, []State{StateInitialized, StateFailed}, states(res))

	// no further collaborator calls once failed
	assert.Empty(t, search.Queries())

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.ElementsMatch(t, []string{"error", "session_id", "timestamp"}, mapKeys(doc))
}

func TestCompose_EmptyKeywordSet(t *testing.T) {
	p := newPipeline(t, &fakeFetcher{})
	c := newComposer(t, Deps{
		Keywords: &fakeKeywords{set: &types.KeywordSet{}},
		Search:   newsSearch(), Indexer: p.indexer, Searcher: p.searcher,
	}, DefaultConfig())

	res := c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"pricing"}})
	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, types.ErrKeywordExtraction)
}

func TestCompose_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"empty company", Request{Company: "  ", FocusPoints: []string{"a"}}},
		{"no focus points", Request{Company: "Acme"}},
		{"blank focus points", Request{Company: "Acme", FocusPoints: []string{"", " "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kw := automotive()
			p := newPipeline(t, &fakeFetcher{})
			c := newComposer(t, Deps{Keywords: kw, Search: newsSearch(), Indexer: p.indexer, Searcher: p.searcher}, DefaultConfig())

			res := c.Compose(context.Background(), tt.req)
			require.True(t, res.Failed())
			assert.ErrorIs(t, res.Err, ErrInvalidRequest)
			assert.NotEmpty(t, res.Error.SessionID)
			assert.Zero(t, kw.calls.Load())
		})
	}
}

// fetching the second of three articles always fails; the run still composes
func TestCompose_FetchFaultIsolation(t *testing.T) {
	pg := pages()
	delete(pg, "https://news.example/battery-2")
	p := newPipeline(t, &fakeFetcher{pages: pg})

	c := newComposer(t, Deps{Keywords: automotive(), Search: newsSearch(), Indexer: p.indexer, Searcher: p.searcher}, DefaultConfig())
	res := c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"battery technology", "pricing"}})

	require.False(t, res.Failed())
	require.NotNil(t, res.Ingest)
	assert.Equal(t, 3, res.Ingest.ArticlesTotal)
	assert.Equal(t, 2, res.Ingest.ArticlesIndexed)
	assert.Equal(t, 1, res.Ingest.ArticlesSkipped)

	ctx := context.Background()
	for _, fp := range []string{"battery technology", "pricing"} {
		n, err := p.index.Count(ctx, &storage.Filter{Category: fp})
		require.NoError(t, err)
		assert.Positive(t, n, fp)
	}
	for _, fs := range res.Report.NewsSummary {
		for _, a := range fs.Articles {
			assert.NotEqual(t, "https://news.example/battery-2", a.URL)
		}
	}
}

func TestCompose_SearchFailureIsolated(t *testing.T) {
	search := newsSearch()
	search.fail = "solid state"
	p := newPipeline(t, &fakeFetcher{pages: pages()})

	c := newComposer(t, Deps{Keywords: automotive(), Search: search, Indexer: p.indexer, Searcher: p.searcher}, DefaultConfig())
	res := c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"battery technology", "pricing"}})

	require.False(t, res.Failed())
	assert.Len(t, search.Queries(), 2)
	assert.Equal(t, 1, res.Ingest.ArticlesTotal)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "battery technology")
}

func TestCompose_NothingIndexedIsDegraded(t *testing.T) {
	p := newPipeline(t, &fakeFetcher{})
	c := newComposer(t, Deps{Keywords: automotive(), Search: newsSearch(), Indexer: p.indexer, Searcher: p.searcher}, DefaultConfig())

	res := c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"pricing"}})
	require.False(t, res.Failed())
	assert.Equal(t, StateComposed, res.State)
	assert.Equal(t, 1, res.Ingest.ArticlesSkipped)
	assert.Contains(t, res.Warnings, "no article could be indexed")
	require.Len(t, res.Report.NewsSummary, 1)
	assert.Empty(t, res.Report.NewsSummary[0].Articles)
}

// explodingEmbedder panics on every embedding call.
type explodingEmbedder struct {
	embedder.Embedder
}

func (explodingEmbedder) GenerateEmbedding(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	panic("provider client exploded")
}

func TestCompose_EmbeddingPanicStaysInsideCompose(t *testing.T) {
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)
	emb := explodingEmbedder{Embedder: local}
	index := storage.NewMemoryIndex()
	idx, err := indexer.New(&fakeFetcher{pages: pages()}, emb, index, indexer.Config{ChunkSize: 200, ChunkOverlap: 40, Workers: 2})
	require.NoError(t, err)

	c := newComposer(t, Deps{
		Keywords: automotive(),
		Search:   newsSearch(),
		Indexer:  idx,
		Searcher: searcher.NewSearcher(index, emb),
	}, DefaultConfig())

	var res *Result
	require.NotPanics(t, func() {
		res = c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"pricing"}})
	})
	require.False(t, res.Failed(), "unexpected failure: %+v", res.Error)
	assert.Equal(t, 1, res.Ingest.ArticlesSkipped)
	assert.Contains(t, res.Warnings, "no article could be indexed")
	require.Len(t, res.Report.NewsSummary, 1)
	assert.Contains(t, res.Report.NewsSummary[0].Error, "panic")
}

// orderedRetriever finishes focus points in reverse order.
type orderedRetriever struct {
	delays  map[string]time.Duration
	fail    string
	panic   string
	mu      sync.Mutex
	reqs    []searcher.RetrieveRequest
	invalid atomic.Int32
}

func (o *orderedRetriever) Retrieve(ctx context.Context, req searcher.RetrieveRequest) ([]types.RetrievalResult, error) {
	o.mu.Lock()
	o.reqs = append(o.reqs, req)
	o.mu.Unlock()

	for fp, d := range o.delays {
		if strings.Contains(req.Query, " "+fp+" ") {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if o.panic != "" && strings.Contains(req.Query, o.panic) {
		panic("index corrupted")
	}
	if o.fail != "" && strings.Contains(req.Query, o.fail) {
		return nil, types.NewIndexError("query", errors.New("disk I/O error"))
	}
	md := types.ChunkMetadata{Title: req.Query, Link: "https://news.example/" + req.Query}
	return []types.RetrievalResult{types.NewRetrievalResult("c1", "text", md, 0.3)}, nil
}

func (o *orderedRetriever) InvalidateCache() { o.invalid.Add(1) }

type stubIngester struct {
	err   error
	calls atomic.Int32
}

func (s *stubIngester) Ingest(_ context.Context, articles []types.Article, _ string) (*indexer.Result, error) {
	s.calls.Add(1)
	return &indexer.Result{Stats: indexer.Statistics{ArticlesTotal: len(articles), ArticlesIndexed: len(articles)}}, s.err
}

func TestCompose_PreservesFocusPointOrder(t *testing.T) {
	r := &orderedRetriever{delays: map[string]time.Duration{
		"A": 60 * time.Millisecond,
		"C": 30 * time.Millisecond,
	}}
	c := newComposer(t, Deps{
		Keywords: &fakeKeywords{set: &types.KeywordSet{Industry: "Tech"}},
		Search:   newsSearch(),
		Indexer:  &stubIngester{},
		Searcher: r,
	}, Config{RetrievalWorkers: 3})

	res := c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"A", "B", "C"}, TimePeriod: "last_week"})
	require.False(t, res.Failed())

	got := make([]string, 0, 3)
	for _, fs := range res.Report.NewsSummary {
		got = append(got, fs.FocusPoint)
		require.Len(t, fs.Articles, 1)
		assert.Equal(t, "Acme "+fs.FocusPoint+" last_week", fs.Articles[0].Title)
		assert.InDelta(t, 0.7, fs.Articles[0].RelevanceScore, 1e-9)
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)
	assert.Equal(t, int32(1), r.invalid.Load())
}

func TestCompose_RetrievalFailureIsolated(t *testing.T) {
	r := &orderedRetriever{fail: "pricing", panic: "safety"}
	c := newComposer(t, Deps{
		Keywords: automotive(), Search: newsSearch(), Indexer: &stubIngester{}, Searcher: r,
	}, DefaultConfig())

	res := c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"battery technology", "pricing", "safety"}})
	require.False(t, res.Failed())

	summaries := res.Report.NewsSummary
	require.Len(t, summaries, 3)
	assert.Empty(t, summaries[0].Error)
	assert.Len(t, summaries[0].Articles, 1)
	assert.Contains(t, summaries[1].Error, "disk I/O error")
	assert.Empty(t, summaries[1].Articles)
	assert.NotNil(t, summaries[1].Articles)
	assert.Contains(t, summaries[2].Error, "panic")
	assert.Len(t, res.Warnings, 2)
}

func TestCompose_RequestOptions(t *testing.T) {
	r := &orderedRetriever{}
	c := newComposer(t, Deps{
		Keywords: automotive(), Search: newsSearch(), Indexer: &stubIngester{}, Searcher: r,
	}, Config{ScopeToSession: true})

	res := c.Compose(context.Background(), Request{
		Company:     "Acme",
		FocusPoints: []string{"pricing"},
		SessionID:   "session_custom",
		MaxResults:  2,
	})
	require.False(t, res.Failed())
	require.Len(t, r.reqs, 1)
	req := r.reqs[0]
	assert.Equal(t, "Acme pricing last_month", req.Query)
	assert.Equal(t, 2, req.Limit)
	require.NotNil(t, req.Filter)
	assert.Equal(t, "session_custom", req.Filter.SessionID)
	assert.Equal(t, "pricing", req.Filter.Category)

	// unscoped by default
	r2 := &orderedRetriever{}
	c = newComposer(t, Deps{Keywords: automotive(), Search: newsSearch(), Indexer: &stubIngester{}, Searcher: r2}, DefaultConfig())
	c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"pricing"}})
	require.Len(t, r2.reqs, 1)
	assert.Nil(t, r2.reqs[0].Filter)
	assert.Equal(t, DefaultMaxResults, r2.reqs[0].Limit)
}

func TestCompose_IngestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ing := &stubIngester{}
	r := &orderedRetriever{}
	cancelling := ingestFunc(func(ctx context.Context, _ []types.Article, _ string) (*indexer.Result, error) {
		ing.calls.Add(1)
		cancel()
		return &indexer.Result{}, ctx.Err()
	})
	c := newComposer(t, Deps{Keywords: automotive(), Search: newsSearch(), Indexer: cancelling, Searcher: r}, DefaultConfig())

	res := c.Compose(ctx, Request{Company: "Acme", FocusPoints: []string{"pricing"}})
	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, string(StateNewsFetched), res.Err.(*types.CompositionError).State)
	assert.Empty(t, r.reqs)
}

type ingestFunc func(ctx context.Context, articles []types.Article, sessionID string) (*indexer.Result, error)

func (f ingestFunc) Ingest(ctx context.Context, articles []types.Article, sessionID string) (*indexer.Result, error) {
	return f(ctx, articles, sessionID)
}

func TestCompose_PanicBecomesEnvelope(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newComposer(t, Deps{
		Keywords: &fakeKeywords{panic: true},
		Search:   newsSearch(), Indexer: &stubIngester{}, Searcher: &orderedRetriever{},
		Metrics: metrics.New(reg),
	}, DefaultConfig())

	var res *Result
	require.NotPanics(t, func() {
		res = c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"pricing"}})
	})
	require.True(t, res.Failed())
	assert.Contains(t, res.Error.Error, "model client exploded")
	assert.Equal(t, 1.0, counterValue(t, reg, "newsdigest_compositions_total", "failed"))
}

type failingHistory struct{}

func (failingHistory) Record(context.Context, types.Session) error { return errors.New("disk full") }

func TestCompose_HistoryFailureIsWarning(t *testing.T) {
	c := newComposer(t, Deps{
		Keywords: automotive(), Search: newsSearch(), Indexer: &stubIngester{}, Searcher: &orderedRetriever{},
		History: failingHistory{},
	}, DefaultConfig())

	res := c.Compose(context.Background(), Request{Company: "Acme", FocusPoints: []string{"pricing"}})
	require.False(t, res.Failed())
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "disk full")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, DefaultConfig())
	assert.Error(t, err)
	_, err = New(Deps{Keywords: automotive(), Search: websearch.ProviderFunc(nil)}, DefaultConfig())
	assert.Error(t, err)
}

func TestState(t *testing.T) {
	assert.True(t, StateComposed.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateIngested.Terminal())

	r := &run{c: &Composer{log: nopLogger(), now: clock}, result: &Result{}, log: nopLogger()}
	r.enter(StateInitialized)
	assert.ErrorIs(t, r.advance(StateIngested), ErrIllegalTransition)
	assert.NoError(t, r.advance(StateKeywordsExtracted))
}

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

func mapKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func nopLogger() logger.Logger { return logger.Nop() }
