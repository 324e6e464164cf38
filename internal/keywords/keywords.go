// Package keywords asks a language model for a company's industry and
// per-focus-point search keywords, and validates the answer strictly.
package keywords

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/dshills/newsdigest-mcp/internal/logger"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

const (
	// DefaultModel is the Gemini model used by NewGoogleAI
	DefaultModel = "gemini-pro"
	// DefaultTimeout bounds one completion call
	DefaultTimeout = 60 * time.Second
)

var (
	// ErrMalformedResponse means the model answer did not have the
	// {"industry": string, "keywords": {focus: [string]}} shape.
	ErrMalformedResponse = errors.New("malformed keyword response")
	// ErrInvalidInput is returned for an empty company or focus point list
	ErrInvalidInput = errors.New("company and focus points are required")
)

// Completer returns a model completion for a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f(ctx, prompt).
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// LLMCompleter adapts a langchaingo model to Completer.
type LLMCompleter struct {
	model llms.Model
	opts  []llms.CallOption
}

// NewLLMCompleter wraps model; opts are passed on every call.
func NewLLMCompleter(model llms.Model, opts ...llms.CallOption) *LLMCompleter {
	return &LLMCompleter{model: model, opts: opts}
}

// Complete sends prompt as a single human message.
func (c *LLMCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.model, prompt, c.opts...)
}

// NewGoogleAI builds a Gemini completer. An empty model uses DefaultModel.
func NewGoogleAI(ctx context.Context, apiKey, model string) (*LLMCompleter, error) {
	if apiKey == "" {
		return nil, types.NewConfigurationError("llm.api_key", "GOOGLE_API_KEY is not set")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}
	return NewLLMCompleter(client, llms.WithTemperature(0.2)), nil
}

// Extractor turns (company, focus points) into a KeywordSet.
type Extractor struct {
	completer Completer
	timeout   time.Duration
	log       logger.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger used to record raw model output at debug level
func WithLogger(l logger.Logger) Option {
	return func(e *Extractor) { e.log = logger.OrNop(l) }
}

// NewExtractor creates an Extractor backed by c
func NewExtractor(c Completer, opts ...Option) *Extractor {
	e := &Extractor{completer: c, timeout: DefaultTimeout, log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the model for the company's industry and keywords. Every
// failure, including an unparseable answer, is a keyword-extraction
// CollaboratorError.
func (e *Extractor) Extract(ctx context.Context, company string, focusPoints []string) (*types.KeywordSet, error) {
	if strings.TrimSpace(company) == "" || len(focusPoints) == 0 {
		return nil, types.NewCollaboratorError(types.CollaboratorKeywords, "extract", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.completer.Complete(ctx, BuildPrompt(company, focusPoints))
	if err != nil {
		return nil, types.NewCollaboratorError(types.CollaboratorKeywords, "complete", err)
	}
	e.log.Debug("keyword extraction output", "company", company, "output", raw)

	return ParseResponse(raw)
}

// BuildPrompt renders the keyword extraction prompt.
func BuildPrompt(company string, focusPoints []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the company name '%s' and the following focus points:\n", company)
	b.WriteString(strings.Join(focusPoints, ", "))
	b.WriteString(`

Please provide:
1. The industry this company belongs to
2. A list of relevant keywords for each focus point that would be useful for finding news articles

Use each focus point exactly as written above as a key. Respond with JSON only, using this structure:
{
    "industry": "industry name",
    "keywords": {
        "focus_point_1": ["keyword1", "keyword2"],
        "focus_point_2": ["keyword1", "keyword2"]
    }
}
`)
	return b.String()
}

// ParseResponse validates a model answer. Markdown code fences and prose
// around the JSON object are tolerated; anything else that does not match
// {"industry": non-empty string, "keywords": {string: [string]}} is
// ErrMalformedResponse.
func ParseResponse(raw string) (*types.KeywordSet, error) {
	text := extractJSON(raw)
	if text == "" {
		return nil, malformed("empty response")
	}
	if !gjson.Valid(text) {
		return nil, malformed("response is not valid JSON")
	}

	root := gjson.Parse(text)
	if !root.IsObject() {
		return nil, malformed("response is not a JSON object")
	}

	industry := root.Get("industry")
	if industry.Type != gjson.String || strings.TrimSpace(industry.String()) == "" {
		return nil, malformed("industry is missing or empty")
	}

	kw := root.Get("keywords")
	if !kw.IsObject() {
		return nil, malformed("keywords is missing or not an object")
	}

	set := &types.KeywordSet{
		Industry: strings.TrimSpace(industry.String()),
		Keywords: make(map[string][]string),
	}
	var parseErr error
	kw.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			parseErr = malformed(fmt.Sprintf("keywords for %q is not an array", key.String()))
			return false
		}
		list := make([]string, 0, len(value.Array()))
		for _, item := range value.Array() {
			if item.Type != gjson.String {
				parseErr = malformed(fmt.Sprintf("keywords for %q contains a non-string", key.String()))
				return false
			}
			if s := strings.TrimSpace(item.String()); s != "" {
				list = append(list, s)
			}
		}
		set.Keywords[key.String()] = list
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return set, nil
}

func malformed(reason string) error {
	return types.NewCollaboratorError(types.CollaboratorKeywords, "parse",
		fmt.Errorf("%w: %s", ErrMalformedResponse, reason))
}

// extractJSON strips code fences and surrounding prose, returning the
// outermost {...} span (or the trimmed text when there is none).
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:] // drop the language tag line
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
