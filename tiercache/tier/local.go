package tier

import (
	"context"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/IvanBrykalov/multitiercache/tiercache/internal/util"
)

// DefaultLocalCapacity is used when LocalConfig.Capacity is <= 0, per §6's
// reference collaborator description ("default capacity 2000").
const DefaultLocalCapacity = 2000

// LocalConfig configures a local (in-process, sharded) tier.
type LocalConfig struct {
	// Name is the stable identifier reported by Name(); defaults to "local".
	Name string
	// Capacity is the target entry count across all shards; each shard holds
	// at most Capacity/shards (rounded up) entries and evicts its own LRU
	// entry beyond that, so the total can slightly exceed Capacity.
	// <= 0 uses DefaultLocalCapacity.
	Capacity int
	// Shards is the shard count; <= 0 picks a CPU-based default, rounded up
	// to the next power of two.
	Shards int
	// Clock overrides the time source; nil uses the real clock.
	Clock tiercache.Clock
}

// Local is a fast, sharded, in-memory tier with LRU-by-capacity eviction and
// lazy TTL expiry, adapted from the teacher's cache.cache[K,V] engine
// specialized to this module's fixed (string, []byte) domain.
type Local struct {
	name   string
	shards []*shard
	now    func() time.Time
}

// NewLocal builds a local tier. It never fails: malformed options are
// clamped to sane defaults, mirroring the teacher's New() default-filling
// rather than the config-build-time failure used by tierchain (a single
// local tier has no cross-tier invariant to violate).
func NewLocal(cfg LocalConfig) *Local {
	name := cfg.Name
	if name == "" {
		name = "local"
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	shardCount := cfg.Shards
	if shardCount <= 0 {
		shardCount = util.ReasonableShardCount()
	} else {
		shardCount = int(util.NextPow2(uint64(shardCount)))
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock.Now
	}

	perShardCap := (capacity + shardCount - 1) / shardCount
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = newShard(perShardCap, now)
	}

	return &Local{name: name, shards: shards, now: now}
}

func (l *Local) Name() string { return l.name }

func (l *Local) Health(ctx context.Context) bool { return true }

func (l *Local) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, _, ok := l.shardFor(key).get(key)
	return val, ok, nil
}

func (l *Local) GetWithRemainingTTL(ctx context.Context, key string) ([]byte, *time.Duration, bool, error) {
	val, exp, ok := l.shardFor(key).get(key)
	if !ok {
		return nil, nil, false, nil
	}
	if exp == 0 {
		return val, nil, true, nil
	}
	remaining := time.Unix(0, exp).Sub(l.now())
	if remaining < 0 {
		remaining = 0
	}
	return val, &remaining, true, nil
}

func (l *Local) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		l.shardFor(key).remove(key)
		return nil
	}
	exp := l.now().Add(ttl).UnixNano()
	l.shardFor(key).set(key, value, exp)
	return nil
}

func (l *Local) Remove(ctx context.Context, key string) error {
	l.shardFor(key).remove(key)
	return nil
}

// Len returns the total number of resident entries across all shards.
func (l *Local) Len() int {
	total := 0
	for _, s := range l.shards {
		total += s.length()
	}
	return total
}

// ScanKeys returns a snapshot of every live key across all shards. It backs
// local, in-memory pattern invalidation (§4.6); the shared tier instead
// performs its own scan-and-delete and must never be walked this way.
func (l *Local) ScanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for _, s := range l.shards {
		keys = append(keys, s.scanKeys()...)
	}
	return keys, nil
}

func (l *Local) shardFor(key string) *shard {
	h := util.Fnv64a(key)
	idx := util.ShardIndex(h, len(l.shards))
	return l.shards[idx]
}
