package tier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func newTestShared(t *testing.T) (*Shared, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewShared(SharedConfig{Client: client}), mr
}

func TestShared_SetGetRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestShared(t)

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, s.Remove(ctx, "a"))
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestShared_GetWithRemainingTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := newTestShared(t)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	_, ttl, ok, err := s.GetWithRemainingTTL(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, ttl)
	require.InDelta(t, time.Minute, *ttl, float64(2*time.Second))

	mr.SetTTL("a", 0)
	_, ttl, ok, err = s.GetWithRemainingTTL(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, ttl, "no expiry should report an unknown TTL")
}

func TestShared_RemoveBulk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestShared(t)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, s.RemoveBulk(ctx, []string{"a", "b"}))

	_, ok, _ := s.Get(ctx, "a")
	require.False(t, ok)
	_, ok, _ = s.Get(ctx, "b")
	require.False(t, ok)
}

func TestShared_Scan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestShared(t)

	require.NoError(t, s.Set(ctx, "user:1", []byte("a"), time.Minute))
	require.NoError(t, s.Set(ctx, "user:2", []byte("b"), time.Minute))
	require.NoError(t, s.Set(ctx, "session:1", []byte("c"), time.Minute))

	it, err := s.Scan(ctx, "user:*")
	require.NoError(t, err)

	var found []string
	for {
		key, ok := it.Next(ctx)
		if !ok {
			break
		}
		found = append(found, key)
	}
	require.NoError(t, it.Err())
	require.ElementsMatch(t, []string{"user:1", "user:2"}, found)
}

func TestShared_Health(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := newTestShared(t)
	require.True(t, s.Health(ctx))

	mr.Close()
	require.False(t, s.Health(ctx))
}

func TestShared_BreakerTripsAfterConsecutiveFailuresAndFailsFast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := newTestShared(t)

	mr.Close() // every call through s.run now fails at the transport level

	for i := 0; i < 5; i++ {
		_, _, err := s.Get(ctx, "a")
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, s.breaker.State(), "5 consecutive failures must trip the default breaker")

	// Once open, the breaker must reject immediately without the call
	// actually reaching the backend (degrading to "try the next tier"
	// instead of blocking on a Redis round trip that will only time out).
	start := time.Now()
	_, _, err := s.Get(ctx, "a")
	require.Error(t, err)
	require.Less(t, time.Since(start), 100*time.Millisecond, "an open breaker must reject without dialing the backend")
}
