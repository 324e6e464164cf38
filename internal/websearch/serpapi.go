package websearch

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// DefaultSerpAPIURL is the SerpAPI endpoint root
const DefaultSerpAPIURL = "https://serpapi.com"

// ErrSearchAPI is returned when SerpAPI reports an error in its payload
var ErrSearchAPI = errors.New("search API error")

// SerpAPI queries Google organic results through serpapi.com.
type SerpAPI struct {
	client     *resty.Client
	apiKey     string
	engine     string
	baseURL    string
	timeout    time.Duration
	maxRetries uint64
	backoff    time.Duration
}

// SerpOption configures SerpAPI
type SerpOption func(*SerpAPI)

// WithSerpBaseURL points the client at another host (tests, proxies)
func WithSerpBaseURL(u string) SerpOption {
	return func(s *SerpAPI) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithEngine sets the SerpAPI engine parameter (default "google")
func WithEngine(engine string) SerpOption {
	return func(s *SerpAPI) {
		if engine != "" {
			s.engine = engine
		}
	}
}

// WithSerpTimeout bounds each HTTP request
func WithSerpTimeout(d time.Duration) SerpOption {
	return func(s *SerpAPI) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetry sets how often transient failures (5xx, 429) are retried and
// the initial backoff.
func WithRetry(maxRetries uint64, backoff time.Duration) SerpOption {
	return func(s *SerpAPI) {
		s.maxRetries = maxRetries
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// NewSerpAPI creates a SerpAPI provider. The API key is required.
func NewSerpAPI(apiKey string, opts ...SerpOption) (*SerpAPI, error) {
	if apiKey == "" {
		return nil, types.NewConfigurationError("search.api_key", "SERPAPI_API_KEY is not set")
	}
	s := &SerpAPI{
		apiKey:     apiKey,
		engine:     "google",
		baseURL:    DefaultSerpAPIURL,
		timeout:    DefaultTimeout,
		maxRetries: 2,
		backoff:    250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.client = resty.New().
		SetBaseURL(s.baseURL).
		SetTimeout(s.timeout).
		SetHeader("Accept", "application/json")
	return s, nil
}

// Search runs one query. A payload without organic_results is zero hits.
func (s *SerpAPI) Search(ctx context.Context, query string, num int) ([]types.SearchHit, error) {
	if num <= 0 {
		num = DefaultMaxArticles
	}

	var body []byte
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"engine":  s.engine,
				"q":       query,
				"num":     strconv.Itoa(num),
				"api_key": s.apiKey,
			}).
			Get("/search")
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(err)
		}
		switch code := resp.StatusCode(); {
		case code == http.StatusTooManyRequests || code >= 500:
			return retry.RetryableError(searchErrorf("request", "status %d", code))
		case code != http.StatusOK:
			return searchErrorf("request", "status %d: %s", code, apiMessage(resp.Body()))
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, searchError("request", err)
	}

	return parseSerpResults(body, num)
}

func parseSerpResults(body []byte, num int) ([]types.SearchHit, error) {
	if !gjson.ValidBytes(body) {
		return nil, searchErrorf("decode", "response is not valid JSON")
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return nil, searchError("decode", errors.Join(ErrSearchAPI, errors.New(msg.String())))
	}

	results := gjson.GetBytes(body, "organic_results")
	if !results.IsArray() {
		return []types.SearchHit{}, nil
	}

	hits := make([]types.SearchHit, 0, len(results.Array()))
	for _, r := range results.Array() {
		link := strings.TrimSpace(r.Get("link").String())
		if link == "" {
			continue
		}
		hits = append(hits, types.SearchHit{
			URL:     link,
			Title:   r.Get("title").String(),
			Snippet: r.Get("snippet").String(),
		})
		if len(hits) == num {
			break
		}
	}
	return hits, nil
}

func apiMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return msg.String()
	}
	return strings.TrimSpace(string(body))
}
