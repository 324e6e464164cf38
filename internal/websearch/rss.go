package websearch

import (
	"context"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// DefaultFeedTemplate is the Google News search feed; %s receives the
// escaped query.
const DefaultFeedTemplate = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// RSS searches a news feed endpoint. It needs no API key.
type RSS struct {
	template string
	timeout  time.Duration
	parser   *gofeed.Parser
}

// RSSOption configures RSS
type RSSOption func(*RSS)

// WithFeedTemplate sets the feed URL template. It must contain one %s.
func WithFeedTemplate(tmpl string) RSSOption {
	return func(r *RSS) {
		if strings.Contains(tmpl, "%s") {
			r.template = tmpl
		}
	}
}

// WithFeedTimeout bounds each feed request
func WithFeedTimeout(d time.Duration) RSSOption {
	return func(r *RSS) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRSS creates an RSS provider.
func NewRSS(opts ...RSSOption) *RSS {
	r := &RSS{template: DefaultFeedTemplate, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	r.parser = gofeed.NewParser()
	r.parser.Client = &http.Client{Timeout: r.timeout}
	return r
}

// FeedURL renders the feed URL for query.
func (r *RSS) FeedURL(query string) string {
	return strings.Replace(r.template, "%s", url.QueryEscape(query), 1)
}

// Search fetches the feed and maps its first num items to hits.
func (r *RSS) Search(ctx context.Context, query string, num int) ([]types.SearchHit, error) {
	if num <= 0 {
		num = DefaultMaxArticles
	}

	feed, err := r.parser.ParseURLWithContext(r.FeedURL(query), ctx)
	if err != nil {
		return nil, searchError("feed", err)
	}

	hits := make([]types.SearchHit, 0, min(len(feed.Items), num))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		hits = append(hits, types.SearchHit{
			URL:     link,
			Title:   strings.TrimSpace(item.Title),
			Snippet: stripMarkup(summary),
		})
		if len(hits) == num {
			break
		}
	}
	return hits, nil
}

func stripMarkup(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
