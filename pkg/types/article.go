package types

import (
	"slices"
	"strings"
)

// SearchHit is one result returned by a search collaborator.
type SearchHit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Article is a discovered document awaiting ingestion. It is never persisted
// on its own; only its chunks reach the vector index.
type Article struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet"`
	Keywords   []string `json:"keywords"`
	FocusPoint string   `json:"focus_point"`
}

// NewArticle tags a search hit with the focus point and keywords that produced it.
func NewArticle(hit SearchHit, focusPoint string, keywords []string) Article {
	kw := make([]string, len(keywords))
	copy(kw, keywords)
	return Article{
		URL:        strings.TrimSpace(hit.URL),
		Title:      hit.Title,
		Snippet:    hit.Snippet,
		Keywords:   kw,
		FocusPoint: focusPoint,
	}
}

// KeywordSet is the validated output of keyword extraction.
type KeywordSet struct {
	Industry string              `json:"industry"`
	Keywords map[string][]string `json:"keywords"`
}

// For returns the keyword list for a focus point. Keys are matched exactly
// first, then case-insensitively after trimming; among several loose matches
// the lexically smallest key wins. When the model omitted the focus point,
// the focus point itself is the only keyword.
func (k *KeywordSet) For(focusPoint string) []string {
	if k != nil {
		if kw, ok := k.Keywords[focusPoint]; ok && len(kw) > 0 {
			return kw
		}
		want := strings.ToLower(strings.TrimSpace(focusPoint))
		keys := make([]string, 0, len(k.Keywords))
		for key := range k.Keywords {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			if kw := k.Keywords[key]; strings.ToLower(strings.TrimSpace(key)) == want && len(kw) > 0 {
				return kw
			}
		}
	}
	return []string{focusPoint}
}
