package types

import "time"

// TextSnippetLength is the number of characters kept in ArticleSummary.TextSnippet.
const TextSnippetLength = 200

// ArticleSummary is one ranked article inside a focus point block.
type ArticleSummary struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet"`
	TextSnippet    string  `json:"text_snippet"`
}

// FocusSummary groups the retrieved articles for one focus point. Error is set
// when retrieval for this focus point failed; Articles is then empty.
type FocusSummary struct {
	FocusPoint string           `json:"focus_point"`
	Articles   []ArticleSummary `json:"articles"`
	Error      string           `json:"error,omitempty"`
}

// Report is the composed digest returned on success.
type Report struct {
	Company     string         `json:"company"`
	Industry    string         `json:"industry"`
	FocusPoints []string       `json:"focus_points"`
	SessionID   string         `json:"session_id"`
	Timestamp   time.Time      `json:"timestamp"`
	NewsSummary []FocusSummary `json:"news_summary"`
}

// ErrorEnvelope is returned instead of a Report when a run fails.
type ErrorEnvelope struct {
	Error     string    `json:"error"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SummarizeResult maps a retrieval result to an article summary.
func SummarizeResult(r RetrievalResult) ArticleSummary {
	return ArticleSummary{
		Title:          r.Metadata.Title,
		URL:            r.Metadata.Link,
		RelevanceScore: r.RelevanceScore,
		Snippet:        r.Metadata.Snippet,
		TextSnippet:    TextSnippet(r.Text),
	}
}

// TextSnippet returns the first TextSnippetLength runes of text followed by "...".
func TextSnippet(text string) string {
	runes := []rune(text)
	if len(runes) > TextSnippetLength {
		runes = runes[:TextSnippetLength]
	}
	return string(runes) + "..."
}
