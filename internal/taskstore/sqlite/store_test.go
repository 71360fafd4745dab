package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/bgq/internal/taskstore"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", Options{Queue: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddGetDelete(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	inv, err := s.Add(ctx, taskstore.Task{Type: "identifyProfile", Data: []byte(`{"id":"1"}`), GroupStart: "g"})
	require.NoError(t, err)
	require.Len(t, inv, 1)

	inv, err = s.Add(ctx, taskstore.Task{Type: "trackEvent", Data: []byte(`{}`), BlockingGroups: []string{"g"}})
	require.NoError(t, err)
	require.Len(t, inv, 2)
	assert.Equal(t, "identifyProfile", inv[0].Type)
	assert.Nil(t, inv[0].BlockingGroups)
	assert.Equal(t, []string{"g"}, inv[1].BlockingGroups)

	got, err := s.Get(ctx, inv[1].TaskID)
	require.NoError(t, err)
	assert.Equal(t, inv[1], got.Item())
	assert.Equal(t, []byte(`{}`), got.Data)

	require.NoError(t, s.Delete(ctx, inv[0].TaskID))
	require.NoError(t, s.Delete(ctx, inv[0].TaskID))
	_, err = s.Get(ctx, inv[0].TaskID)
	assert.ErrorIs(t, err, taskstore.ErrNotFound)

	inv, err = s.Inventory(ctx)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, "trackEvent", inv[0].Type)
}

func TestOrderSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	s, err := Open(ctx, path, Options{Queue: "q"})
	require.NoError(t, err)
	for _, typ := range []string{"a", "b", "c"} {
		_, err := s.Add(ctx, taskstore.Task{Type: typ, Data: []byte("x")})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Options{Queue: "q"})
	require.NoError(t, err)
	defer s.Close()
	inv, err := s.Add(ctx, taskstore.Task{Type: "d", Data: []byte("x")})
	require.NoError(t, err)

	var types []string
	for _, it := range inv {
		types = append(types, it.Type)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, types)
}

func TestMeta(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	v, err := s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.SetMeta(ctx, "k", []byte("1")))
	require.NoError(t, s.SetMeta(ctx, "k", []byte("2")))
	v, err = s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	require.NoError(t, s.SetMeta(ctx, "k", []byte{}))
	v, err = s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
	require.NoError(t, s.Compact(ctx))
}

func TestImplementsStore(t *testing.T) {
	var _ taskstore.Store = (*Store)(nil)
	var _ taskstore.MetaStore = (*Store)(nil)
	var _ taskstore.Compactor = (*Store)(nil)
}

func TestClosedStoreRejectsMeta(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.GetMeta(ctx, "pause_until")
	assert.ErrorIs(t, err, taskstore.ErrClosed)
	assert.ErrorIs(t, s.SetMeta(ctx, "pause_until", []byte("1")), taskstore.ErrClosed)
	assert.ErrorIs(t, s.Compact(ctx), taskstore.ErrClosed)
}
