package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStore_AdmitThenThrottle(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	remaining, ok, err := store.Admit(ctx, "user-1", now, 5*time.Minute, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, remaining)

	mr.FastForward(2 * time.Minute)
	remaining, ok, err = store.Admit(ctx, "user-1", now.Add(2*time.Minute), 5*time.Minute, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, float64(3*time.Minute), float64(remaining), float64(time.Second))

	mr.FastForward(3 * time.Minute)
	_, ok, err = store.Admit(ctx, "user-1", now.Add(5*time.Minute), 5*time.Minute, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_ForceOverridesWindow(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, _, err := store.Admit(ctx, "user-1", now, 5*time.Minute, false)
	require.NoError(t, err)

	_, ok, err := store.Admit(ctx, "user-1", now.Add(time.Second), 5*time.Minute, true)
	require.NoError(t, err)
	assert.True(t, ok)

	// Forced alert restarts the window.
	got, err := mr.Get(key("user-1"))
	require.NoError(t, err)
	assert.Equal(t, stamp(now.Add(time.Second)), got)
}

func TestRedisStore_ReleaseOnlyOwnStamp(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	first := time.Now()
	second := first.Add(time.Second)

	_, _, err := store.Admit(ctx, "user-1", first, 5*time.Minute, false)
	require.NoError(t, err)
	_, _, err = store.Admit(ctx, "user-1", second, 5*time.Minute, true)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "user-1", first))
	assert.True(t, mr.Exists(key("user-1")))

	require.NoError(t, store.Release(ctx, "user-1", second))
	assert.False(t, mr.Exists(key("user-1")))
}

func TestRedisStore_UsersAreIndependent(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, ok, err := store.Admit(ctx, "user-1", now, time.Minute, false)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = store.Admit(ctx, "user-2", now, time.Minute, false)
	require.NoError(t, err)
	assert.True(t, ok)
}
