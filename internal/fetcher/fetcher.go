// Package fetcher turns an article URL into cleaned plain text.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	readability "github.com/go-shiori/go-readability"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// DefaultTimeout bounds a single page fetch
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent is sent with every request; many news sites reject the
// Go default.
const DefaultUserAgent = "Mozilla/5.0 (compatible; newsdigest/1.0; +https://github.com/dshills/newsdigest-mcp)"

var (
	// ErrEmptyContent means the page had no readable text. The ingestion
	// pipeline skips such articles.
	ErrEmptyContent = errors.New("no readable content")
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs
	ErrInvalidURL = errors.New("invalid article URL")
)

// Fetcher retrieves the cleaned text of an article.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Func adapts an ordinary function to Fetcher.
type Func func(ctx context.Context, rawURL string) (string, error)

// Fetch calls f(ctx, rawURL).
func (f Func) Fetch(ctx context.Context, rawURL string) (string, error) {
	return f(ctx, rawURL)
}

// Readability downloads a page and extracts its main text with
// go-readability.
type Readability struct {
	client  *resty.Client
	timeout time.Duration
}

// Option configures a Readability fetcher
type Option func(*Readability)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(r *Readability) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithUserAgent overrides DefaultUserAgent
func WithUserAgent(ua string) Option {
	return func(r *Readability) {
		r.client.SetHeader("User-Agent", ua)
	}
}

// NewReadability creates a fetcher with the given options
func NewReadability(opts ...Option) *Readability {
	r := &Readability{
		client: resty.New().
			SetHeader("User-Agent", DefaultUserAgent).
			SetHeader("Accept", "text/html,application/xhtml+xml").
			SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client.SetTimeout(r.timeout)
	return r
}

// Fetch downloads rawURL and returns its cleaned main text. Every failure,
// including an empty page, is a fetch CollaboratorError.
func (r *Readability) Fetch(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, rawURL, ErrInvalidURL)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.R().SetContext(ctx).Get(pageURL.String())
	if err != nil {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, rawURL, err)
	}
	if resp.IsError() {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, rawURL,
			fmt.Errorf("http status %d", resp.StatusCode()))
	}

	article, err := readability.FromReader(bytes.NewReader(resp.Body()), pageURL)
	if err != nil {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, rawURL,
			fmt.Errorf("readability: %w", err))
	}

	text := CleanText(article.TextContent)
	if text == "" {
		return "", types.NewCollaboratorError(types.CollaboratorFetch, rawURL, ErrEmptyContent)
	}
	return text, nil
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?-]`)
)

// CleanText collapses whitespace, removes characters other than letters,
// digits, underscore, whitespace and .,!?- and trims the result.
func CleanText(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = disallowed.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
