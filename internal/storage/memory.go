package storage

import (
	"context"
	"sync"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// MemoryIndex is a VectorIndex held in process memory. It has the same
// overwrite, filter and ordering semantics as SQLiteIndex.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

func (m *MemoryIndex) Add(ctx context.Context, chunkID string, vector []float32, metadata types.ChunkMetadata, text string) error {
	return m.AddBatch(ctx, []Entry{{ChunkID: chunkID, Vector: vector, Metadata: metadata, Text: text}})
}

func (m *MemoryIndex) AddBatch(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return types.NewIndexError("add", err)
	}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return types.NewIndexError("add", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.NewIndexError("add", ErrClosed)
	}
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		e.Metadata.Keywords = append([]string(nil), e.Metadata.Keywords...)
		m.entries[e.ChunkID] = e
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewIndexError("query", err)
	}
	if k <= 0 {
		return []Match{}, nil
	}
	if len(vector) == 0 {
		return nil, types.NewIndexError("query", ErrEmptyVector)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, types.NewIndexError("query", ErrClosed)
	}

	candidates := make([]candidate, 0, len(m.entries))
	for _, e := range m.entries {
		if len(e.Vector) != len(vector) || !filter.Matches(e.Metadata) {
			continue
		}
		md := e.Metadata
		md.Keywords = append([]string(nil), md.Keywords...)
		candidates = append(candidates, candidate{
			chunkID:  e.ChunkID,
			text:     e.Text,
			metadata: md,
			distance: cosineDistance(vector, e.Vector),
		})
	}
	return topMatches(candidates, k), nil
}

func (m *MemoryIndex) Count(ctx context.Context, filter *Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, types.NewIndexError("count", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, types.NewIndexError("count", ErrClosed)
	}
	if filter.IsEmpty() {
		return len(m.entries), nil
	}
	n := 0
	for _, e := range m.entries {
		if filter.Matches(e.Metadata) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
