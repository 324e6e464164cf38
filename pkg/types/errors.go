package types

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrEmptyContent   = errors.New("content cannot be empty")

	// Error taxonomy. Typed errors below match one of these through errors.Is.
	ErrConfiguration     = errors.New("configuration error")
	ErrKeywordExtraction = errors.New("keyword extraction failed")
	ErrSearch            = errors.New("search failed")
	ErrEmbedding         = errors.New("embedding failed")
	ErrFetch             = errors.New("fetch failed")
	ErrIndex             = errors.New("vector index error")
	ErrComposition       = errors.New("composition failed")
)

// Collaborator names an external service at the pipeline boundary.
type Collaborator string

const (
	CollaboratorKeywords  Collaborator = "keyword_extraction"
	CollaboratorSearch    Collaborator = "search"
	CollaboratorEmbedding Collaborator = "embedding"
	CollaboratorFetch     Collaborator = "fetch"
)

func (c Collaborator) sentinel() error {
	switch c {
	case CollaboratorKeywords:
		return ErrKeywordExtraction
	case CollaboratorSearch:
		return ErrSearch
	case CollaboratorEmbedding:
		return ErrEmbedding
	case CollaboratorFetch:
		return ErrFetch
	default:
		return nil
	}
}

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError returns a ConfigurationError for field.
func NewConfigurationError(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CollaboratorError wraps a failure of an external collaborator. It matches
// both the collaborator's sentinel and the underlying cause.
type CollaboratorError struct {
	Collaborator Collaborator
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	errs := []error{e.Err}
	if s := e.Collaborator.sentinel(); s != nil {
		errs = append(errs, s)
	}
	return errs
}

// NewCollaboratorError wraps err unless it is nil or already a CollaboratorError
// for the same collaborator.
func NewCollaboratorError(c Collaborator, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) && ce.Collaborator == c {
		return err
	}
	return &CollaboratorError{Collaborator: c, Op: op, Err: err}
}

// IndexError wraps a vector index write or query failure.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() []error { return []error{e.Err, ErrIndex} }

// NewIndexError wraps err, returning nil for a nil err.
func NewIndexError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Op: op, Err: err}
}

// CompositionError is the top-level failure of a run. It is the only error
// surfaced to callers of the composer, always as an ErrorEnvelope.
type CompositionError struct {
	SessionID string
	State     string
	Err       error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition %s failed in state %s: %v", e.SessionID, e.State, e.Err)
}

func (e *CompositionError) Unwrap() []error { return []error{e.Err, ErrComposition} }
