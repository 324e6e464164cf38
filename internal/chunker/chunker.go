package chunker

import (
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

const (
	// DefaultSize is the default window length in characters
	DefaultSize = 1000

	// DefaultOverlap is the default number of characters shared by consecutive windows
	DefaultOverlap = 200
)

// Span is a half-open window [Start, End) over a rune sequence.
type Span struct {
	Start int
	End   int
}

// Chunker splits cleaned article text into overlapping fixed-size windows.
// A Chunker holds no mutable state and is safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker, rejecting configurations whose advance step
// (size - overlap) would not be positive.
func New(size, overlap int) (*Chunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Validate checks a size/overlap pair.
func Validate(size, overlap int) error {
	if size <= 0 {
		return types.NewConfigurationError("chunking.size", "must be greater than zero, got %d", size)
	}
	if overlap < 0 {
		return types.NewConfigurationError("chunking.overlap", "must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return types.NewConfigurationError("chunking.overlap", "must be smaller than size (%d), got %d", size, overlap)
	}
	return nil
}

// Size returns the window length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap between consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the windows of text in order.
func (c *Chunker) Split(text string) []string {
	return Split(text, c.size, c.overlap)
}

// Split cuts text into windows of at most size characters, each starting
// size-overlap characters after the previous one. It never rejects its
// arguments: a non-positive advance is clamped to 1 so the loop always
// terminates. Use New when an invalid configuration should be an error.
func Split(text string, size, overlap int) []string {
	if text == "" {
		return []string{}
	}
	runes := []rune(text)
	spans := Spans(len(runes), size, overlap)

	chunks := make([]string, len(spans))
	for i, sp := range spans {
		chunks[i] = string(runes[sp.Start:sp.End])
	}
	return chunks
}

// Spans computes the window boundaries for a text of length runes.
// Iteration stops at the first window that reaches the end of the text, so
// no trailing window made only of overlap is produced.
func Spans(length, size, overlap int) []Span {
	if length <= 0 {
		return []Span{}
	}
	if size <= 0 {
		size = 1
	}
	step := size - overlap
	if step < 1 {
		step = 1
	}

	spans := make([]Span, 0, length/step+1)
	for start := 0; ; start += step {
		end := start + size
		if end > length {
			end = length
		}
		spans = append(spans, Span{Start: start, End: end})
		if end == length {
			break
		}
	}
	return spans
}
