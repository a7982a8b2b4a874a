package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	ID    uint   `json:"id"`
	State string `json:"state"`
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewStore(client)
}

func TestAside(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *snapshot) func() error {
		return func() error {
			calls++
			*dest = snapshot{ID: 4, State: "ready"}
			return nil
		}
	}

	var first snapshot
	require.NoError(t, store.Aside(ctx, PostKey(4), &first, PostTTL, fetch(&first)))
	var second snapshot
	require.NoError(t, store.Aside(ctx, PostKey(4), &second, PostTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	store.InvalidatePost(ctx, 4)
	var third snapshot
	require.NoError(t, store.Aside(ctx, PostKey(4), &third, PostTTL, fetch(&third)))
	assert.Equal(t, 2, calls)
}

func TestAside_FetchErrorNotCached(t *testing.T) {
	mr, store := newTestStore(t)
	boom := errors.New("boom")

	var dest snapshot
	err := store.Aside(context.Background(), PostKey(9), &dest, PostTTL, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(PostKey(9)))
}

func TestMarkOnce(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	first, err := store.MarkOnce(ctx, ViewKey(1, 2), time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.MarkOnce(ctx, ViewKey(1, 2), time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	mr.FastForward(2 * time.Minute)
	afterExpiry, err := store.MarkOnce(ctx, ViewKey(1, 2), time.Minute)
	require.NoError(t, err)
	assert.True(t, afterExpiry)
}

func TestNilStore(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	ok, err := store.MarkOnce(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	calls := 0
	var dest snapshot
	require.NoError(t, store.Aside(ctx, "k", &dest, time.Minute, func() error { calls++; return nil }))
	require.NoError(t, store.Aside(ctx, "k", &dest, time.Minute, func() error { calls++; return nil }))
	assert.Equal(t, 2, calls)
	store.Invalidate(ctx, "k")
}
