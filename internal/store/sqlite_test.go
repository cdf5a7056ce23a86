package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordConnect(ctx, "a", "10.0.0.1:1", base))
	require.NoError(t, s.RecordConnect(ctx, "b", "10.0.0.2:2", base.Add(time.Second)))
	require.NoError(t, s.RecordDisconnect(ctx, "a", base.Add(time.Minute), 42))

	rec, err := s.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:1", rec.RemoteAddr)
	assert.True(t, base.Equal(rec.ConnectedAt))
	require.NotNil(t, rec.DisconnectedAt)
	assert.True(t, base.Add(time.Minute).Equal(*rec.DisconnectedAt))
	assert.Equal(t, int64(42), rec.WordsTaken)

	open, err := s.GetSession(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, open.DisconnectedAt)

	history, err := s.ListHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].ID, "newest first")
	assert.Equal(t, "a", history[1].ID)

	history, err = s.ListHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSessionHistoryErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.RecordDisconnect(ctx, "missing", time.Now(), 0), ErrNotFound)

	require.NoError(t, s.RecordConnect(ctx, "dup", "x", time.Now()))
	assert.Error(t, s.RecordConnect(ctx, "dup", "x", time.Now()))
}
