package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pebblestore "github.com/rzbill/bgq/internal/storage/pebble"
)

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	return db
}

func newStore(t *testing.T) *PebbleStore {
	t.Helper()
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	s, err := Open(db, Options{Queue: "test"})
	require.NoError(t, err)
	return s
}

func TestAddAssignsIdentityAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	inv, err := s.Add(ctx, Task{Type: "identifyProfile", Data: []byte(`{"a":1}`), GroupStart: "g1"})
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.NotEmpty(t, inv[0].TaskID)
	assert.Equal(t, "g1", inv[0].GroupStart)

	inv, err = s.Add(ctx, Task{Type: "trackEvent", Data: []byte(`{}`), BlockingGroups: []string{"g1"}})
	require.NoError(t, err)
	require.Len(t, inv, 2)
	assert.Equal(t, "identifyProfile", inv[0].Type)
	assert.Equal(t, "trackEvent", inv[1].Type)
	assert.Equal(t, []string{"g1"}, inv[1].BlockingGroups)
	assert.Equal(t, -1, inv[0].OrderKey.Compare(inv[1].OrderKey))

	got, err := s.Get(ctx, inv[0].TaskID)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), got.Data)
	assert.Equal(t, inv[0], got.Item())
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	inv, err := s.Add(ctx, Task{Type: "t", Data: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, inv[0].TaskID))
	require.NoError(t, s.Delete(ctx, inv[0].TaskID))
	require.NoError(t, s.Delete(ctx, "never-existed"))

	_, err = s.Get(ctx, inv[0].TaskID)
	assert.ErrorIs(t, err, ErrNotFound)

	inv, err = s.Inventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, inv)
}

func TestDeleteCorruptRecordRemovesInventoryEntry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	inv, err := s.Add(ctx, Task{Type: "t", Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, s.db.Set(TaskKey("test", inv[0].TaskID), []byte("garbage-record")))

	_, err = s.Get(ctx, inv[0].TaskID)
	require.ErrorIs(t, err, ErrCorruptRecord)

	require.NoError(t, s.Delete(ctx, inv[0].TaskID))
	inv, err = s.Inventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, inv)
}

func TestInventorySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	db := openDB(t, dir)
	s, err := Open(db, Options{Queue: "q", Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.Add(ctx, Task{Type: "t", Data: []byte{byte(i)}})
		require.NoError(t, err)
	}
	before, err := s.Inventory(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, db.Close())

	db = openDB(t, dir)
	defer db.Close()
	s, err = Open(db, Options{Queue: "q"})
	require.NoError(t, err)
	after, err := s.Inventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.True(t, after[0].CreatedAt.Equal(fixed))

	inv, err := s.Add(ctx, Task{Type: "t", Data: []byte("new")})
	require.NoError(t, err)
	require.Len(t, inv, 4)
	assert.Equal(t, "new", string(mustGet(t, s, inv[3].TaskID).Data))
}

func TestQueuesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, t.TempDir())
	defer db.Close()

	a, err := Open(db, Options{Queue: "a"})
	require.NoError(t, err)
	b, err := Open(db, Options{Queue: "b"})
	require.NoError(t, err)

	_, err = a.Add(ctx, Task{Type: "t", Data: []byte("1")})
	require.NoError(t, err)
	inv, err := b.Inventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, inv)
}

func TestMetaRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	v, err := s.GetMeta(ctx, "pause_until")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.SetMeta(ctx, "pause_until", []byte("123")))
	v, err = s.GetMeta(ctx, "pause_until")
	require.NoError(t, err)
	assert.Equal(t, []byte("123"), v)

	require.NoError(t, s.SetMeta(ctx, "pause_until", nil))
	v, err = s.GetMeta(ctx, "pause_until")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCompactKeepsLiveTasks(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.Add(ctx, Task{Type: "t", Data: []byte("x")})
		require.NoError(t, err)
	}
	inv, err := s.Inventory(ctx)
	require.NoError(t, err)
	for _, it := range inv[:4] {
		require.NoError(t, s.Delete(ctx, it.TaskID))
	}

	require.NoError(t, s.Compact(ctx))

	left, err := s.Inventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, inv[4:], left)
	assert.Equal(t, []byte("x"), mustGet(t, s, inv[4].TaskID).Data)
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Close())
	_, err := s.Add(context.Background(), Task{Type: "t", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.GetMeta(context.Background(), "pause_until")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.SetMeta(context.Background(), "pause_until", []byte("1")), ErrClosed)
	assert.ErrorIs(t, s.Compact(context.Background()), ErrClosed)
}

func mustGet(t *testing.T, s Store, taskID string) Task {
	t.Helper()
	task, err := s.Get(context.Background(), taskID)
	require.NoError(t, err)
	return task
}
