package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// Backends accepted by Open
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ErrMissingSessionID is returned when recording a session without an id
var ErrMissingSessionID = errors.New("session id is required")

// History is the in-memory session mapping, optionally backed by a Store.
// Records are never mutated once written.
type History struct {
	mu       sync.RWMutex
	sessions map[string]types.Session
	store    Store
}

// NewHistory creates an empty history. store may be nil.
func NewHistory(store Store) *History {
	return &History{sessions: make(map[string]types.Session), store: store}
}

// Store returns the attached store, or nil
func (h *History) Store() Store { return h.store }

// Record adds s and, when a store is attached, persists the full mapping.
// The in-memory record is kept even if persistence fails.
func (h *History) Record(ctx context.Context, s types.Session) error {
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrMissingSessionID
	}
	s.FocusPoints = append([]string(nil), s.FocusPoints...)

	h.mu.Lock()
	h.sessions[s.SessionID] = s
	h.mu.Unlock()

	if h.store == nil {
		return nil
	}
	return h.SaveTo(ctx, h.store)
}

// Get returns the session with id.
func (h *History) Get(id string) (types.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Len returns the number of sessions
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// List returns all sessions ordered by timestamp, then id.
func (h *History) List() []types.Session {
	h.mu.RLock()
	out := make([]types.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// LoadFrom merges the sessions held by store into the history.
func (h *History) LoadFrom(ctx context.Context, store Store) error {
	loaded, err := store.Load(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range loaded {
		s.SessionID = id
		h.sessions[id] = s
	}
	return nil
}

// Load merges the attached store, if any.
func (h *History) Load(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	return h.LoadFrom(ctx, h.store)
}

// SaveTo writes a snapshot of the history to store.
func (h *History) SaveTo(ctx context.Context, store Store) error {
	h.mu.RLock()
	snapshot := make(map[string]types.Session, len(h.sessions))
	for id, s := range h.sessions {
		snapshot[id] = s
	}
	h.mu.RUnlock()
	return store.Save(ctx, snapshot)
}

// Close releases the attached store when it holds a connection.
func (h *History) Close() error {
	if c, ok := h.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Config selects the history backend.
type Config struct {
	Backend   string
	Path      string
	RedisAddr string
	RedisKey  string
}

// Open builds a History on the configured backend and loads existing
// sessions from it.
func Open(ctx context.Context, cfg Config) (*History, error) {
	var store Store
	switch strings.ToLower(cfg.Backend) {
	case BackendFile, "":
		if cfg.Path == "" {
			return nil, types.NewConfigurationError("session.path", "must not be empty for the file backend")
		}
		store = NewFileStore(cfg.Path)
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, types.NewConfigurationError("session.redis_addr", "must not be empty for the redis backend")
		}
		rs, err := DialRedis(ctx, cfg.RedisAddr, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		store = rs
	case BackendMemory:
	default:
		return nil, types.NewConfigurationError("session.backend", "unknown backend %q", cfg.Backend)
	}

	h := NewHistory(store)
	if err := h.Load(ctx); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("load session history: %w", err)
	}
	return h, nil
}
