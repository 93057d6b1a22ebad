package util

import "sync/atomic"

// CacheLineSize is a reasonable default for most modern CPUs.
const CacheLineSize = 64

// PaddedAtomicInt64 is an atomic int64 padded to one cache line, used for
// hot per-shard counters (hits/misses/evictions) to avoid false sharing
// between shards that live on adjacent cache lines.
type PaddedAtomicInt64 struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte
}

// PaddedAtomicUint64 is the uint64 counterpart.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}
