// Package singleflight implements the per-key in-flight coordinator
// described in §4.5 and §9: a mutex-guarded mapping keyed by the cache key,
// whose values are shared handles holding a completion channel plus a slot
// for the outcome. It is adapted from the teacher's internal/singleflight, but
// the leader/follower handshake is reshaped around an explicit Entry handle
// so the cache manager can re-read all tiers once it becomes leader, before
// deciding whether to run the producer at all (§4.5 step 3) — something the
// teacher's simpler Do(ctx, key, fn)-in-one-call Group does not expose.
package singleflight

import "sync"

// Entry is a per-key handle, fair and starvation-free by construction since
// every waiter blocks on the same channel close and is released together
// (§5: "per-key locks are fair (FIFO) or at minimum starvation-free").
type Entry struct {
	done  chan struct{}
	value []byte
	err   error
}

// Wait blocks until the leader calls Done, then returns the published
// outcome. Wait does not observe cancellation; callers that need an early
// return should select on Entry.C() directly instead.
func (e *Entry) Wait() ([]byte, error) {
	<-e.done
	return e.value, e.err
}

// C exposes the completion channel for callers that need to select on
// cancellation alongside the result (§5: "if a caller abandons ... while on
// the waiter path, no side effect is produced").
func (e *Entry) C() <-chan struct{} { return e.done }

// Result returns the published outcome; only valid after C() is closed.
func (e *Entry) Result() ([]byte, error) { return e.value, e.err }

// Done publishes the outcome and releases every waiter. It must be called
// exactly once, by the leader.
func (e *Entry) Done(value []byte, err error) {
	e.value, e.err = value, err
	close(e.done)
}

// Group coalesces concurrent producers for the same key, guaranteeing that
// at most one producer executes per key at a time in this process (§4.5,
// §5: "linearization of producer completions per key").
type Group struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewGroup constructs an empty Group.
func NewGroup() *Group {
	return &Group{entries: make(map[string]*Entry)}
}

// Start atomically either inserts a new Entry for key and returns (entry,
// true) meaning the caller is the leader and must eventually call Done, or
// returns the existing entry and (entry, false) meaning the caller must
// wait on it.
//
// The entry map never grows without bound: the leader removes its entry via
// Finish once Done has been called (§5: "entries are removed on the
// producer's exit path under lock").
func (g *Group) Start(key string) (entry *Entry, isLeader bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[key]; ok {
		return e, false
	}

	e := &Entry{done: make(chan struct{})}
	g.entries[key] = e
	return e, true
}

// Finish removes key's entry from the map, provided it is still the current
// entry for that key (a new leader may already have replaced it). Only the
// leader calls this, after Done. If the producer is cancelled before
// calling Done, the caller must still invoke Done (with an error) before
// Finish so waiters are not orphaned (§5).
func (g *Group) Finish(key string, e *Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entries[key] == e {
		delete(g.entries, key)
	}
}

// Len reports the number of keys currently in flight, for tests and
// diagnostics.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
