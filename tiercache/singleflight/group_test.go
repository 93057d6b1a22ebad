package singleflight

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGroup_OneLeaderManyWaiters(t *testing.T) {
	g := NewGroup()

	entry, isLeader := g.Start("k")
	require.True(t, isLeader)

	const n = 32
	var eg errgroup.Group
	var waiters int32
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < n; i++ {
		eg.Go(func() error {
			e, isLeader := g.Start("k")
			if isLeader {
				t.Error("only one goroutine should be leader")
				return nil
			}
			atomic.AddInt32(&waiters, 1)
			v, err := e.Wait()
			if err != nil {
				return err
			}
			if string(v) != "value" {
				t.Errorf("got %q", v)
			}
			return nil
		})
	}

	// Give waiters a chance to register before the leader finishes.
	time.Sleep(20 * time.Millisecond)
	entry.Done([]byte("value"), nil)
	g.Finish("k", entry)

	require.NoError(t, eg.Wait())
	require.Equal(t, int32(n), atomic.LoadInt32(&waiters))
	require.Equal(t, 0, g.Len())
	_ = ctx
}

func TestGroup_FinishOnlyRemovesCurrentEntry(t *testing.T) {
	g := NewGroup()
	e1, _ := g.Start("k")
	e1.Done([]byte("v1"), nil)
	g.Finish("k", e1)
	require.Equal(t, 0, g.Len())

	e2, leader := g.Start("k")
	require.True(t, leader)
	require.NotSame(t, e1, e2)

	// Finishing the stale first entry must not remove the new leader's entry.
	g.Finish("k", e1)
	require.Equal(t, 1, g.Len())
}

func TestGroup_ErrorIsPublishedToWaiters(t *testing.T) {
	g := NewGroup()
	entry, _ := g.Start("k")

	boom := errFake("boom")
	go func() {
		time.Sleep(10 * time.Millisecond)
		entry.Done(nil, boom)
	}()

	waiter, isLeader := g.Start("k")
	require.False(t, isLeader)
	_, err := waiter.Wait()
	require.ErrorIs(t, err, boom)
}

type errFake string

func (e errFake) Error() string { return string(e) }
