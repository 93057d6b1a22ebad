package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSidecar(t *testing.T) (*Sidecar, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(Config{Client: client}), client
}

func TestSidecar_AppendAndReadLatest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestSidecar(t)

	require.NoError(t, s.Append(ctx, "events", map[string]any{"kind": "remove", "key": "k1"}, 0))
	require.NoError(t, s.Append(ctx, "events", map[string]any{"kind": "update", "key": "k2"}, 0))

	entries, err := s.ReadLatest(ctx, "events", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// newest first
	require.Equal(t, "k2", entries[0].Fields["key"])
	require.Equal(t, "k1", entries[1].Fields["key"])
}

func TestSidecar_ReadLatestOnEmptyStream(t *testing.T) {
	t.Parallel()
	s, _ := newTestSidecar(t)

	entries, err := s.ReadLatest(context.Background(), "nothing-here", 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSidecar_AppendTrimsToMaxLen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestSidecar(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "events", map[string]any{"i": i}, 2))
	}

	entries, err := s.ReadLatest(ctx, "events", 100)
	require.NoError(t, err)
	require.LessOrEqual(t, len(entries), 3, "approximate trimming may lag slightly behind exact maxLen")
}

func TestSidecar_ReadBlockingReturnsNewEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, client := newTestSidecar(t)

	require.NoError(t, s.Append(ctx, "events", map[string]any{"key": "seed"}, 0))

	done := make(chan struct{})
	var entries []Entry
	var readErr error
	go func() {
		entries, readErr = s.ReadBlocking(ctx, "events", "$", 10, 2*time.Second)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "events",
		Values: map[string]any{"key": "late-arrival"},
	}).Err())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("ReadBlocking did not return after a new entry was appended")
	}

	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	require.Equal(t, "late-arrival", entries[0].Fields["key"])
}

func TestSidecar_ReadBlockingTimesOutWithNoEntries(t *testing.T) {
	t.Parallel()
	s, _ := newTestSidecar(t)

	entries, err := s.ReadBlocking(context.Background(), "quiet-stream", "$", 10, 200*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, entries)
}
