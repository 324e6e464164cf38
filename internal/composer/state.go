package composer

import (
	"encoding/json"
	"time"

	"github.com/dshills/newsdigest-mcp/internal/indexer"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// State is a composition run state.
type State string

const (
	StateInitialized       State = "initialized"
	StateKeywordsExtracted State = "keywords_extracted"
	StateNewsFetched       State = "news_fetched"
	StateIngested          State = "ingested"
	StateComposed          State = "composed"
	StateFailed            State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateComposed || s == StateFailed
}

// next is the only forward transition allowed from each non-terminal state.
var next = map[State]State{
	StateInitialized:       StateKeywordsExtracted,
	StateKeywordsExtracted: StateNewsFetched,
	StateNewsFetched:       StateIngested,
	StateIngested:          StateComposed,
}

// Transition records entry into a state.
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Result is the outcome of Compose. Exactly one of Report and Error is set.
type Result struct {
	State       State
	Report      *types.Report
	Error       *types.ErrorEnvelope
	Err         error // the CompositionError behind Error
	Transitions []Transition
	Ingest      *indexer.Statistics
	Warnings    []string
}

// Failed reports whether the run ended in StateFailed.
func (r *Result) Failed() bool { return r.State == StateFailed }

// MarshalJSON emits the error envelope for failed runs and the report
// otherwise.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(r.Error)
	}
	return json.Marshal(r.Report)
}
