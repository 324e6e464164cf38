package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

var (
	// ErrEmptyVector is returned when an entry or query carries no vector
	ErrEmptyVector = errors.New("vector cannot be empty")
	// ErrClosed is returned when using an index after Close
	ErrClosed = errors.New("index is closed")
)

// VectorIndex stores (vector, text, metadata) entries keyed by chunk id and
// answers nearest-neighbour queries.
//
// Re-adding an existing chunk id overwrites the stored entry. Query results
// ascend by cosine distance, ties broken by chunk id.
type VectorIndex interface {
	// Add stores a single entry
	Add(ctx context.Context, chunkID string, vector []float32, metadata types.ChunkMetadata, text string) error

	// AddBatch stores entries atomically where the backend supports it
	AddBatch(ctx context.Context, entries []Entry) error

	// Query returns at most k nearest entries that pass filter
	Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error)

	// Count returns the number of entries that pass filter
	Count(ctx context.Context, filter *Filter) (int, error)

	// Close releases resources held by the index
	Close() error
}

// Entry is one row of the vector index.
type Entry struct {
	ChunkID  string
	Vector   []float32
	Metadata types.ChunkMetadata
	Text     string
}

// EntryFromChunk converts an embedded chunk to an index entry.
func EntryFromChunk(c types.Chunk) Entry {
	return Entry{
		ChunkID:  c.ChunkID,
		Vector:   c.Embedding,
		Metadata: c.Metadata,
		Text:     c.Text,
	}
}

func (e Entry) validate() error {
	if e.ChunkID == "" {
		return types.ErrInvalidChunkID
	}
	if len(e.Vector) == 0 {
		return fmt.Errorf("%w: chunk %s", ErrEmptyVector, e.ChunkID)
	}
	return nil
}

// Filter is an equality constraint on entry metadata. Empty fields do not
// constrain; a nil *Filter matches everything.
type Filter struct {
	SessionID string
	Category  string
}

// Matches reports whether metadata passes the filter.
func (f *Filter) Matches(md types.ChunkMetadata) bool {
	if f == nil {
		return true
	}
	if f.SessionID != "" && md.SessionID != f.SessionID {
		return false
	}
	if f.Category != "" && md.Category != f.Category {
		return false
	}
	return true
}

// IsEmpty reports whether the filter constrains nothing.
func (f *Filter) IsEmpty() bool {
	return f == nil || (f.SessionID == "" && f.Category == "")
}

// Match is a query hit.
type Match struct {
	ChunkID  string
	Text     string
	Metadata types.ChunkMetadata
	Distance float64
}

// Status describes an index for status reporting.
type Status struct {
	Backend       string `json:"backend"`
	BuildMode     string `json:"build_mode,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty"`
	Chunks        int    `json:"chunks"`
}

// Describe reports the backend and entry count for index, filtered by filter.
func Describe(ctx context.Context, index VectorIndex, filter *Filter) (*Status, error) {
	count, err := index.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	status := &Status{Chunks: count}
	switch idx := index.(type) {
	case *SQLiteIndex:
		status.Backend = "sqlite"
		status.BuildMode = BuildMode
		status.SchemaVersion, err = idx.SchemaVersion(ctx)
		if err != nil {
			return nil, err
		}
	case *MemoryIndex:
		status.Backend = "memory"
	default:
		status.Backend = fmt.Sprintf("%T", index)
	}
	return status, nil
}
