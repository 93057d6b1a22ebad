package tier

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache/internal/util"
)

// shard is an independent partition of the local tier with its own lock, map
// and intrusive MRU/LRU doubly linked list, adapted from the teacher's
// cache/shard.go. Eviction is always LRU (the teacher's pluggable-policy
// abstraction is dropped here: the local tier's one job is being the fast,
// predictable hot path, so there is no need for a policy seam the rest of
// the system never uses).
type shard struct {
	mu   sync.RWMutex
	m    map[string]*entry
	head *entry // MRU
	tail *entry // LRU
	len  int
	cap  int

	clock func() time.Time

	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard(capacity int, clock func() time.Time) *shard {
	return &shard{
		m:     make(map[string]*entry, capacity),
		cap:   capacity,
		clock: clock,
	}
}

// set inserts or updates key->value with an absolute UnixNano deadline
// (0 = no TTL) and promotes the entry to MRU.
func (s *shard) set(key string, val []byte, exp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[key]; ok {
		e.val = val
		e.exp = exp
		s.moveToFront(e)
		return
	}

	e := &entry{key: key, val: val, exp: exp}
	s.m[key] = e
	s.insertFront(e)
	s.enforceCapacityLocked()
}

// get returns the value and promotes the entry to MRU on hit.
func (s *shard) get(key string) ([]byte, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		s.misses.Add(1)
		return nil, 0, false
	}
	if s.expiredLocked(e) {
		s.removeEntryLocked(e)
		s.misses.Add(1)
		return nil, 0, false
	}
	s.moveToFront(e)
	s.hits.Add(1)
	return e.val, e.exp, true
}

// remove deletes key if present; returns true if it existed.
func (s *shard) remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		return false
	}
	s.removeEntryLocked(e)
	return true
}

// scanKeys returns a snapshot of all non-expired keys in this shard, used
// by the local tier's in-memory pattern-invalidation path (§4.6: "apply a
// glob match to every in-memory tier and delete matching keys").
func (s *shard) scanKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock().UnixNano()
	keys := make([]string, 0, s.len)
	for k, e := range s.m {
		if e.exp != 0 && now > e.exp {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

func (s *shard) length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

func (s *shard) expiredLocked(e *entry) bool {
	if e.exp == 0 {
		return false
	}
	return s.clock().UnixNano() > e.exp
}

func (s *shard) insertFront(e *entry) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
	s.len++
}

func (s *shard) moveToFront(e *entry) {
	if e == s.head {
		return
	}
	s.detach(e)
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *shard) detach(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.head == e {
		s.head = e.next
	}
	if s.tail == e {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (s *shard) removeEntryLocked(e *entry) {
	s.detach(e)
	delete(s.m, e.key)
	s.len--
}

func (s *shard) enforceCapacityLocked() {
	for s.len > s.cap {
		if s.tail == nil {
			break
		}
		victim := s.tail
		s.removeEntryLocked(victim)
		s.evicts.Add(1)
	}
}
