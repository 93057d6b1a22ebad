package tier

import (
	"context"
	"testing"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/stretchr/testify/require"
)

func TestLocal_SetGetRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLocal(LocalConfig{Capacity: 8})

	_, ok, err := l.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Set(ctx, "a", []byte("1"), time.Minute))
	v, ok, err := l.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, l.Remove(ctx, "a"))
	_, ok, err = l.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocal_TTLExpiryWithFakeClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := tiercache.NewFakeClock(time.Unix(0, 0))
	l := NewLocal(LocalConfig{Capacity: 8, Clock: clk})

	require.NoError(t, l.Set(ctx, "x", []byte("v"), 100*time.Millisecond))
	_, ok, _ := l.Get(ctx, "x")
	require.True(t, ok)

	clk.Advance(200 * time.Millisecond)
	_, ok, _ = l.Get(ctx, "x")
	require.False(t, ok, "expired entry must not be returned")
}

func TestLocal_SetZeroTTLDeletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLocal(LocalConfig{Capacity: 8})

	require.NoError(t, l.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, l.Set(ctx, "a", []byte("1"), 0))
	_, ok, _ := l.Get(ctx, "a")
	require.False(t, ok)
}

func TestLocal_EvictionByCapacity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// Single shard forces deterministic, global LRU ordering.
	l := NewLocal(LocalConfig{Capacity: 2, Shards: 1})

	require.NoError(t, l.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, l.Set(ctx, "b", []byte("2"), time.Minute))
	_, _, _ = l.Get(ctx, "a") // promote a to MRU
	require.NoError(t, l.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok, _ := l.Get(ctx, "b")
	require.False(t, ok, "b should have been evicted as LRU")
	_, ok, _ = l.Get(ctx, "a")
	require.True(t, ok)
	_, ok, _ = l.Get(ctx, "c")
	require.True(t, ok)
}

func TestLocal_GetWithRemainingTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := tiercache.NewFakeClock(time.Unix(0, 0))
	l := NewLocal(LocalConfig{Capacity: 8, Clock: clk})

	require.NoError(t, l.Set(ctx, "a", []byte("1"), time.Minute))
	_, ttl, ok, err := l.GetWithRemainingTTL(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, ttl)
	require.InDelta(t, time.Minute, *ttl, float64(time.Second))
}

func TestLocal_ScanKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLocal(LocalConfig{Capacity: 100})

	require.NoError(t, l.Set(ctx, "user:1", []byte("a"), time.Minute))
	require.NoError(t, l.Set(ctx, "user:2", []byte("b"), time.Minute))
	require.NoError(t, l.Set(ctx, "session:1", []byte("c"), time.Minute))

	keys, err := l.ScanKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 3)
}

func TestLocal_Health(t *testing.T) {
	t.Parallel()
	l := NewLocal(LocalConfig{})
	require.True(t, l.Health(context.Background()))
}
