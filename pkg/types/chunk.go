package types

import "errors"

// ChunkMetadata is the metadata record stored with every chunk. SessionID and
// Category are the fields the vector index can filter on.
type ChunkMetadata struct {
	Link      string   `json:"link"`
	Title     string   `json:"title"`
	Snippet   string   `json:"snippet"`
	Keywords  []string `json:"keywords"`
	SessionID string   `json:"session_id"`
	Category  string   `json:"category"`
	ArticleID string   `json:"article_id"`
}

// NewChunkMetadata builds the metadata for a chunk of article.
func NewChunkMetadata(article Article, sessionID, articleID string) ChunkMetadata {
	kw := make([]string, len(article.Keywords))
	copy(kw, article.Keywords)
	return ChunkMetadata{
		Link:      article.URL,
		Title:     article.Title,
		Snippet:   article.Snippet,
		Keywords:  kw,
		SessionID: sessionID,
		Category:  article.FocusPoint,
		ArticleID: articleID,
	}
}

// Chunk is a contiguous window of an article's cleaned text, the unit of
// embedding and indexing. Chunks are written once and never mutated.
type Chunk struct {
	ChunkID   string        `json:"chunk_id"`
	ArticleID string        `json:"article_id"`
	Text      string        `json:"text"`
	Embedding []float32     `json:"-"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// Validate checks that the chunk can be written to an index.
func (c *Chunk) Validate() error {
	if c.ChunkID == "" {
		return ErrInvalidChunkID
	}
	if c.ArticleID == "" {
		return errors.New("article ID is required")
	}
	if c.Text == "" {
		return ErrEmptyContent
	}
	if len(c.Embedding) == 0 {
		return errors.New("embedding is required")
	}
	return nil
}
