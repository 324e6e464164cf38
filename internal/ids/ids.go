// Package ids generates identifiers for articles and chunks.
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a new unique identifier on every call.
type Generator func() string

// New returns a random (version 4) UUID string. Identifiers carry no ordering
// and need no shared state.
func New() string {
	return uuid.NewString()
}

// Sequence returns a deterministic generator producing prefix-1, prefix-2, ...
// It is safe for concurrent use and intended for tests and reproducible runs.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// OrDefault returns g, or New when g is nil.
func OrDefault(g Generator) Generator {
	if g == nil {
		return New
	}
	return g
}
