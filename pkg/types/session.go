package types

import "time"

// SessionIDLayout formats time-derived session identifiers.
const SessionIDLayout = "20060102_150405"

// NewSessionID derives a session identifier from t.
func NewSessionID(t time.Time) string {
	return "session_" + t.Format(SessionIDLayout)
}

// Session records one composition run. It is keyed by SessionID in the
// history and never mutated after it is recorded.
type Session struct {
	SessionID   string    `json:"-"`
	Timestamp   time.Time `json:"timestamp"`
	Company     string    `json:"company"`
	Industry    string    `json:"industry"`
	FocusPoints []string  `json:"focus_points"`
}
