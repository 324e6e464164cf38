// Package session keeps the history of composition runs keyed by session id
// and persists it to a JSON file or a Redis hash.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// DefaultRedisKey is the hash holding one field per session
const DefaultRedisKey = "newsdigest:sessions"

// Store persists the whole session mapping.
type Store interface {
	Load(ctx context.Context) (map[string]types.Session, error)
	Save(ctx context.Context, sessions map[string]types.Session) error
}

// FileStore keeps sessions in a human-readable JSON object.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path
func (f *FileStore) Path() string { return f.path }

// Load reads the file. A missing or empty file is an empty mapping.
func (f *FileStore) Load(_ context.Context) (map[string]types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]types.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]types.Session{}, nil
	}

	sessions := make(map[string]types.Session)
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("decode session history %s: %w", f.path, err)
	}
	for id, s := range sessions {
		s.SessionID = id
		sessions[id] = s
	}
	return sessions, nil
}

// Save replaces the file atomically (temp file, then rename).
func (f *FileStore) Save(_ context.Context, sessions map[string]types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session history: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session history: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace session history: %w", err)
	}
	return nil
}

// RedisStore keeps sessions in one Redis hash, one JSON value per field.
type RedisStore struct {
	client redis.Cmdable
	key    string
	closer func() error
}

// NewRedisStore uses an existing client. An empty key uses DefaultRedisKey.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	s := NewRedisStore(client, key)
	s.closer = client.Close
	return s, nil
}

// Key returns the hash name
func (r *RedisStore) Key() string { return r.key }

// Load reads every field of the hash. A missing hash is an empty mapping.
func (r *RedisStore) Load(ctx context.Context) (map[string]types.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions from redis: %w", err)
	}
	sessions := make(map[string]types.Session, len(fields))
	for id, raw := range fields {
		var s types.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		s.SessionID = id
		sessions[id] = s
	}
	return sessions, nil
}

// Save writes every session in one transaction. Fields not in sessions
// are left alone.
func (r *RedisStore) Save(ctx context.Context, sessions map[string]types.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	values := make([]any, 0, len(sessions)*2)
	for id, s := range sessions {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", id, err)
		}
		values = append(values, id, string(data))
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key, values...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save sessions to redis: %w", err)
	}
	return nil
}

// Close releases a connection opened by DialRedis.
func (r *RedisStore) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
