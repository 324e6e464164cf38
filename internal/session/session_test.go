package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

func sample(id string, ts time.Time) types.Session {
	return types.Session{
		SessionID:   id,
		Timestamp:   ts,
		Company:     "Acme",
		Industry:    "Automotive",
		FocusPoints: []string{"batteries", "pricing"},
	}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFileStore_MissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.json")
	s := NewFileStore(path)

	in := map[string]types.Session{
		"session_a": sample("session_a", t0),
		"session_b": sample("session_b", t0.Add(time.Hour)),
	}
	require.NoError(t, s.Save(ctx, in))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "session_a", got["session_a"].SessionID)
	assert.True(t, got["session_b"].Timestamp.Equal(t0.Add(time.Hour)))
	assert.Equal(t, []string{"batteries", "pricing"}, got["session_a"].FocusPoints)

	// the on-disk shape is {session_id: {timestamp, company, industry, focus_points}}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.ElementsMatch(t, []string{"timestamp", "company", "industry", "focus_points"}, keys(doc["session_a"]))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	assert.Equal(t, DefaultRedisKey, s.Key())

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.Save(ctx, map[string]types.Session{"session_a": sample("session_a", t0)}))
	require.NoError(t, s.Save(ctx, map[string]types.Session{"session_b": sample("session_b", t0)}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme", got["session_b"].Company)
	assert.Equal(t, "session_b", got["session_b"].SessionID)

	raw := mr.HGet(DefaultRedisKey, "session_a")
	assert.Contains(t, raw, `"focus_points":["batteries","pricing"]`)
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()
	_, err := s.Load(context.Background())
	assert.Error(t, err)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := DialRedis(context.Background(), mr.Addr(), "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", s.Key())
	assert.NoError(t, s.Close())
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(nil)

	require.NoError(t, h.Record(ctx, sample("session_late", t0.Add(time.Minute))))
	require.NoError(t, h.Record(ctx, sample("session_early", t0)))
	assert.ErrorIs(t, h.Record(ctx, types.Session{}), ErrMissingSessionID)

	got, ok := h.Get("session_early")
	require.True(t, ok)
	assert.Equal(t, "Acme", got.Company)
	_, ok = h.Get("missing")
	assert.False(t, ok)

	list := h.List()
	require.Len(t, list, 2)
	assert.Equal(t, "session_early", list[0].SessionID)
	assert.Equal(t, "session_late", list[1].SessionID)
}

func TestHistory_RecordCopiesFocusPoints(t *testing.T) {
	h := NewHistory(nil)
	s := sample("session_a", t0)
	require.NoError(t, h.Record(context.Background(), s))
	s.FocusPoints[0] = "mutated"

	got, _ := h.Get("session_a")
	assert.Equal(t, "batteries", got.FocusPoints[0])
}

func TestHistory_PersistsThroughStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")

	h := NewHistory(NewFileStore(path))
	require.NoError(t, h.Record(ctx, sample("session_a", t0)))

	reloaded, err := Open(ctx, Config{Backend: BackendFile, Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
	_, ok := reloaded.Get("session_a")
	assert.True(t, ok)
}

type failingStore struct{}

func (failingStore) Load(context.Context) (map[string]types.Session, error) { return nil, nil }
func (failingStore) Save(context.Context, map[string]types.Session) error {
	return errors.New("disk full")
}

func TestHistory_StoreFailureKeepsRecord(t *testing.T) {
	h := NewHistory(failingStore{})
	err := h.Record(context.Background(), sample("session_a", t0))
	assert.EqualError(t, err, "disk full")
	_, ok := h.Get("session_a")
	assert.True(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	h, err := Open(ctx, Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.Nil(t, h.Store())

	mr := miniredis.RunT(t)
	h, err = Open(ctx, Config{Backend: BackendRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, h.Record(ctx, sample("session_r", t0)))
	assert.True(t, mr.Exists(DefaultRedisKey))
	assert.NoError(t, h.Close())

	_, err = Open(ctx, Config{Backend: "postgres"})
	assert.ErrorIs(t, err, types.ErrConfiguration)
	_, err = Open(ctx, Config{Backend: BackendFile})
	assert.ErrorIs(t, err, types.ErrConfiguration)
	_, err = Open(ctx, Config{Backend: BackendRedis})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
