package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/newsdigest-mcp/internal/indexer"
	"github.com/dshills/newsdigest-mcp/internal/logger"
	"github.com/dshills/newsdigest-mcp/internal/metrics"
	"github.com/dshills/newsdigest-mcp/internal/searcher"
	"github.com/dshills/newsdigest-mcp/internal/storage"
	"github.com/dshills/newsdigest-mcp/internal/websearch"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// Defaults applied when Config or Request fields are zero
const (
	DefaultMaxResults       = 5
	DefaultTimePeriod       = "last_month"
	DefaultRetrievalWorkers = 4
	DefaultSearchTimeout    = 30 * time.Second
)

var (
	// ErrInvalidRequest is returned for an empty company or focus point list
	ErrInvalidRequest = errors.New("invalid composition request")
	// ErrIllegalTransition guards the state machine against out-of-order steps
	ErrIllegalTransition = errors.New("illegal state transition")
)

// KeywordExtractor is the keyword-extraction collaborator.
type KeywordExtractor interface {
	Extract(ctx context.Context, company string, focusPoints []string) (*types.KeywordSet, error)
}

// Ingester is the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, articles []types.Article, sessionID string) (*indexer.Result, error)
}

// Retriever is the retrieval service.
type Retriever interface {
	Retrieve(ctx context.Context, req searcher.RetrieveRequest) ([]types.RetrievalResult, error)
}

// SessionRecorder stores finished sessions.
type SessionRecorder interface {
	Record(ctx context.Context, s types.Session) error
}

type cacheInvalidator interface {
	InvalidateCache()
}

// Deps are the collaborators of a Composer. History, Logger, Metrics and
// Clock are optional.
type Deps struct {
	Keywords KeywordExtractor
	Search   websearch.Provider
	Indexer  Ingester
	Searcher Retriever
	History  SessionRecorder
	Logger   logger.Logger
	Metrics  *metrics.Metrics
	Clock    func() time.Time
}

// Config tunes a Composer.
type Config struct {
	MaxResults       int           // Articles per focus point in the report
	MaxArticles      int           // Search hits requested per focus point
	TimePeriod       string        // Appended to every retrieval query
	ScopeToSession   bool          // Filter retrieval by session id and focus point
	RetrievalWorkers int           // Concurrent retrieval calls
	SearchTimeout    time.Duration // Per focus point search timeout
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MaxResults:       DefaultMaxResults,
		MaxArticles:      websearch.DefaultMaxArticles,
		TimePeriod:       DefaultTimePeriod,
		RetrievalWorkers: DefaultRetrievalWorkers,
		SearchTimeout:    DefaultSearchTimeout,
	}
}

// Request describes one composition.
type Request struct {
	Company     string
	FocusPoints []string
	SessionID   string // Optional: derived from the clock when empty
	MaxResults  int    // Optional: Config.MaxResults when zero
	TimePeriod  string // Optional: Config.TimePeriod when empty
}

// Composer sequences keyword extraction, search, ingestion and retrieval.
type Composer struct {
	deps Deps
	cfg  Config
	log  logger.Logger
	now  func() time.Time
}

// New creates a Composer. Keywords, Search, Indexer and Searcher are required.
func New(deps Deps, cfg Config) (*Composer, error) {
	switch {
	case deps.Keywords == nil:
		return nil, fmt.Errorf("composer requires a keyword extractor")
	case deps.Search == nil:
		return nil, fmt.Errorf("composer requires a search provider")
	case deps.Indexer == nil:
		return nil, fmt.Errorf("composer requires an ingester")
	case deps.Searcher == nil:
		return nil, fmt.Errorf("composer requires a retriever")
	}

	def := DefaultConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = def.MaxArticles
	}
	if cfg.TimePeriod == "" {
		cfg.TimePeriod = def.TimePeriod
	}
	if cfg.RetrievalWorkers <= 0 {
		cfg.RetrievalWorkers = def.RetrievalWorkers
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Composer{deps: deps, cfg: cfg, log: logger.OrNop(deps.Logger), now: now}, nil
}

// run is the mutable state of one Compose call.
type run struct {
	c           *Composer
	sessionID   string
	company     string
	focusPoints []string
	maxResults  int
	timePeriod  string

	state  State
	result *Result
	log    logger.Logger
}

// Compose runs a composition. It always returns a Result; failures of any
// kind, panics included, end in StateFailed with an ErrorEnvelope.
func (c *Composer) Compose(ctx context.Context, req Request) (res *Result) {
	r := c.newRun(req)
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("composition panicked", "state", r.state, "panic", p)
			if r.state == StateComposed {
				r.warn(fmt.Sprintf("panic after composition: %v", p))
				res = r.result
				return
			}
			res = r.fail(fmt.Errorf("panic: %v", p))
		}
	}()
	return r.execute(ctx)
}

func (c *Composer) newRun(req Request) *run {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = types.NewSessionID(c.now())
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = c.cfg.MaxResults
	}
	timePeriod := strings.TrimSpace(req.TimePeriod)
	if timePeriod == "" {
		timePeriod = c.cfg.TimePeriod
	}

	focusPoints := make([]string, 0, len(req.FocusPoints))
	for _, fp := range req.FocusPoints {
		if fp = strings.TrimSpace(fp); fp != "" {
			focusPoints = append(focusPoints, fp)
		}
	}

	r := &run{
		c:           c,
		sessionID:   sessionID,
		company:     strings.TrimSpace(req.Company),
		focusPoints: focusPoints,
		maxResults:  maxResults,
		timePeriod:  timePeriod,
		result:      &Result{Warnings: []string{}},
		log:         c.log.With("session_id", sessionID),
	}
	r.enter(StateInitialized)
	return r
}

func (r *run) execute(ctx context.Context) *Result {
	if r.company == "" {
		return r.fail(fmt.Errorf("%w: company is required", ErrInvalidRequest))
	}
	if len(r.focusPoints) == 0 {
		return r.fail(fmt.Errorf("%w: at least one focus point is required", ErrInvalidRequest))
	}
	r.log.Info("composition started", "company", r.company, "focus_points", r.focusPoints)

	kw, err := r.extractKeywords(ctx)
	if err != nil {
		return r.fail(err)
	}
	if err := r.advance(StateKeywordsExtracted); err != nil {
		return r.fail(err)
	}

	articles, err := r.fetchNews(ctx, kw)
	if err != nil {
		return r.fail(err)
	}
	if err := r.advance(StateNewsFetched); err != nil {
		return r.fail(err)
	}

	if err := r.ingest(ctx, articles); err != nil {
		return r.fail(err)
	}
	if err := r.advance(StateIngested); err != nil {
		return r.fail(err)
	}

	summaries, err := r.retrieve(ctx)
	if err != nil {
		return r.fail(err)
	}

	now := r.c.now()
	r.result.Report = &types.Report{
		Company:     r.company,
		Industry:    kw.Industry,
		FocusPoints: append([]string(nil), r.focusPoints...),
		SessionID:   r.sessionID,
		Timestamp:   now,
		NewsSummary: summaries,
	}
	if err := r.advance(StateComposed); err != nil {
		return r.fail(err)
	}
	r.c.deps.Metrics.Composition(string(StateComposed))

	r.recordSession(ctx, kw.Industry, now)
	r.log.Info("composition complete", "focus_points", len(summaries), "warnings", len(r.result.Warnings))
	return r.result
}

func (r *run) extractKeywords(ctx context.Context) (*types.KeywordSet, error) {
	defer r.c.deps.Metrics.ObserveStage("keywords", time.Now())

	kw, err := r.c.deps.Keywords.Extract(ctx, r.company, r.focusPoints)
	if err != nil {
		return nil, types.NewCollaboratorError(types.CollaboratorKeywords, "extract", err)
	}
	if kw == nil || strings.TrimSpace(kw.Industry) == "" {
		return nil, types.NewCollaboratorError(types.CollaboratorKeywords, "extract",
			errors.New("empty keyword extraction result"))
	}
	r.log.Debug("keywords extracted", "industry", kw.Industry, "keywords", kw.Keywords)
	return kw, nil
}

// fetchNews runs one search per focus point, in order. A failed search is
// recorded as a warning and contributes no articles.
func (r *run) fetchNews(ctx context.Context, kw *types.KeywordSet) ([]types.Article, error) {
	defer r.c.deps.Metrics.ObserveStage("search", time.Now())

	var articles []types.Article
	for _, fp := range r.focusPoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		keywords := kw.For(fp)
		query := websearch.BuildQuery(kw.Industry, keywords)

		sctx, cancel := context.WithTimeout(ctx, r.c.cfg.SearchTimeout)
		hits, err := r.c.deps.Search.Search(sctx, query, r.c.cfg.MaxArticles)
		cancel()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.warn(fmt.Sprintf("search for %q failed: %v", fp, err), "focus_point", fp, "error", err)
			continue
		}

		seen := make(map[string]struct{}, len(hits))
		added := 0
		for _, hit := range hits {
			url := strings.TrimSpace(hit.URL)
			if url == "" {
				continue
			}
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			articles = append(articles, types.NewArticle(hit, fp, keywords))
			added++
		}
		r.log.Debug("search complete", "focus_point", fp, "query", query, "articles", added)
	}

	if len(articles) == 0 {
		r.warn("no articles found for any focus point")
	}
	return articles, nil
}

// ingest indexes the articles. Only cancellation is fatal; a run where
// nothing could be indexed continues with a warning.
func (r *run) ingest(ctx context.Context, articles []types.Article) error {
	defer r.c.deps.Metrics.ObserveStage("ingest", time.Now())

	res, err := r.c.deps.Indexer.Ingest(ctx, articles, r.sessionID)
	if res != nil {
		stats := res.Stats
		r.result.Ingest = &stats
	}
	if inv, ok := r.c.deps.Searcher.(cacheInvalidator); ok {
		inv.InvalidateCache()
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, indexer.ErrNothingIndexed):
		r.warn("no article could be indexed", "articles", len(articles))
		return nil
	default:
		return err
	}
}

// retrieve issues one retrieval per focus point concurrently. Each focus
// point owns its slot, so the summaries follow the request order.
func (r *run) retrieve(ctx context.Context) ([]types.FocusSummary, error) {
	defer r.c.deps.Metrics.ObserveStage("retrieve", time.Now())

	summaries := make([]types.FocusSummary, len(r.focusPoints))
	var mu sync.Mutex // guards r.result.Warnings

	var g errgroup.Group
	g.SetLimit(r.c.cfg.RetrievalWorkers)
	for i, fp := range r.focusPoints {
		g.Go(func() error {
			summary, err := r.retrieveOne(ctx, fp)
			if err != nil {
				summary.Error = err.Error()
				mu.Lock()
				r.warn(fmt.Sprintf("retrieval for %q failed: %v", fp, err), "focus_point", fp, "error", err)
				mu.Unlock()
			}
			summaries[i] = summary
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// retrieveOne builds the summary block for one focus point. A panic in the
// retriever is reported as that focus point's error.
func (r *run) retrieveOne(ctx context.Context, fp string) (summary types.FocusSummary, err error) {
	summary = types.FocusSummary{FocusPoint: fp, Articles: []types.ArticleSummary{}}
	defer func() {
		if p := recover(); p != nil {
			summary.Articles = []types.ArticleSummary{}
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	results, err := r.c.deps.Searcher.Retrieve(ctx, searcher.RetrieveRequest{
		Query:    r.retrievalQuery(fp),
		Limit:    r.maxResults,
		Filter:   r.filter(fp),
		UseCache: true,
	})
	if err != nil {
		return summary, err
	}
	for _, res := range results {
		summary.Articles = append(summary.Articles, types.SummarizeResult(res))
	}
	return summary, nil
}

func (r *run) retrievalQuery(focusPoint string) string {
	parts := []string{r.company, focusPoint}
	if r.timePeriod != "" {
		parts = append(parts, r.timePeriod)
	}
	return strings.Join(parts, " ")
}

func (r *run) filter(focusPoint string) *storage.Filter {
	if !r.c.cfg.ScopeToSession {
		return nil
	}
	return &storage.Filter{SessionID: r.sessionID, Category: focusPoint}
}

func (r *run) recordSession(ctx context.Context, industry string, at time.Time) {
	if r.c.deps.History == nil {
		return
	}
	err := r.c.deps.History.Record(ctx, types.Session{
		SessionID:   r.sessionID,
		Timestamp:   at,
		Company:     r.company,
		Industry:    industry,
		FocusPoints: append([]string(nil), r.focusPoints...),
	})
	if err != nil {
		r.warn(fmt.Sprintf("session history not saved: %v", err), "error", err)
	}
}

// advance moves to the next state, refusing anything but the single
// forward transition.
func (r *run) advance(to State) error {
	if next[r.state] != to {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.state, to)
	}
	r.enter(to)
	return nil
}

func (r *run) enter(s State) {
	r.state = s
	r.result.State = s
	r.result.Transitions = append(r.result.Transitions, Transition{State: s, At: r.c.now()})
	r.log.Debug("state entered", "state", s)
}

// fail wraps err in a CompositionError and ends the run. It is idempotent.
func (r *run) fail(err error) *Result {
	if r.state == StateFailed {
		return r.result
	}
	cerr := &types.CompositionError{SessionID: r.sessionID, State: string(r.state), Err: err}
	r.enter(StateFailed)
	r.result.Report = nil
	r.result.Err = cerr
	r.result.Error = &types.ErrorEnvelope{
		Error:     cerr.Error(),
		SessionID: r.sessionID,
		Timestamp: r.c.now(),
	}
	r.c.deps.Metrics.Composition(string(StateFailed))
	r.log.Error("composition failed", "state", cerr.State, "error", err)
	return r.result
}

func (r *run) warn(msg string, keyvals ...any) {
	r.result.Warnings = append(r.result.Warnings, msg)
	r.log.Warn(msg, keyvals...)
}
