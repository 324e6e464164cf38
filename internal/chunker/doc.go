// Package chunker splits article text into overlapping fixed-size windows for
// embedding.
//
// # Basic Usage
//
//	c, err := chunker.New(1000, 200)
//	if err != nil {
//	    return err // overlap >= size is a configuration error
//	}
//	for i, window := range c.Split(text) {
//	    fmt.Printf("chunk %d: %d chars\n", i, utf8.RuneCountInString(window))
//	}
//
// # Window Semantics
//
// Lengths are counted in runes. A cursor starts at 0; each step emits
// text[cursor : cursor+size] (clipped to the text) and advances by
// size-overlap. Iteration stops once a window reaches the end of the text.
//
//   - Empty text yields no chunks.
//   - Text no longer than size yields exactly one chunk equal to the text.
//   - Every chunk except the last has exactly size runes.
//   - The union of all windows covers the whole text with no gaps.
//
// # Termination
//
// New rejects overlap >= size with a ConfigurationError. The package level
// Split never rejects; it clamps the advance step to 1, so even
// Split(text, 1000, 1000) finishes in at most len(text) steps.
package chunker
