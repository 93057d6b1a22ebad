package tier

import (
	"context"
	"errors"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// DefaultSharedTimeout bounds every shared-tier round trip (§5: "Every
// shared-tier operation uses a bounded timeout (default 5 s)").
const DefaultSharedTimeout = 5 * time.Second

// RedisClient is the subset of *redis.Client this tier depends on, so tests
// can pass a miniredis-backed client without further abstraction.
type RedisClient interface {
	redis.Cmdable
}

// SharedConfig configures the Redis-backed shared tier.
type SharedConfig struct {
	// Name defaults to "shared".
	Name string
	// Client is the Redis collaborator. Required.
	Client RedisClient
	// Timeout bounds every round trip; <= 0 uses DefaultSharedTimeout.
	Timeout time.Duration
	// ScanBatchSize bounds each SCAN round trip's COUNT hint; <= 0 uses 100.
	ScanBatchSize int64
	// Logger is kept on the tier; the tier's methods return their failures
	// as errors and do not log them.
	Logger zerolog.Logger
	// Breaker wraps every round trip in a circuit breaker; nil uses
	// defaultBreaker (trips after 5 consecutive failures).
	Breaker *gobreaker.CircuitBreaker[any]
}

// Shared is the reference "distributed key-value service" collaborator: a
// Redis-backed tier with TTL introspection (PTTL command) and bounded scan
// support (SCAN), grounded on the Redis usage in GrokNexus-QuantatomAI's
// TieredGridCache and sawpanic-cryptorun's redisCache adapter, wrapped in a
// gobreaker circuit breaker the way sawpanic-cryptorun wraps its outbound
// calls (infra/breakers).
type Shared struct {
	name    string
	client  RedisClient
	timeout time.Duration
	scanN   int64
	log     zerolog.Logger
	breaker *gobreaker.CircuitBreaker[any]
}

// NewShared builds a Redis-backed shared tier. It panics if cfg.Client is
// nil, mirroring the teacher's cache.New panic on a non-recoverable
// programmer error at construction time.
func NewShared(cfg SharedConfig) *Shared {
	if cfg.Client == nil {
		panic("tier: SharedConfig.Client must not be nil")
	}
	name := cfg.Name
	if name == "" {
		name = "shared"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSharedTimeout
	}
	scanN := cfg.ScanBatchSize
	if scanN <= 0 {
		scanN = 100
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = defaultBreaker(name)
	}
	return &Shared{
		name:    name,
		client:  cfg.Client,
		timeout: timeout,
		scanN:   scanN,
		log:     cfg.Logger,
		breaker: breaker,
	}
}

// defaultBreaker trips after 5 consecutive failures and probes a single
// request after 30s half-open, mirroring sawpanic-cryptorun's
// infra/breakers default thresholds. A caller that wants different
// thresholds (or to disable breaking outright, which this module has no
// reason to do) supplies SharedConfig.Breaker explicitly.
func defaultBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

func (s *Shared) Name() string { return s.name }

func (s *Shared) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

func (s *Shared) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, _, ok, err := s.GetWithRemainingTTL(ctx, key)
	return val, ok, err
}

func (s *Shared) GetWithRemainingTTL(ctx context.Context, key string) ([]byte, *time.Duration, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.run(ctx, func(ctx context.Context) (any, error) {
		val, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		ttl, err := s.client.PTTL(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		return ttlResult{val: val, ttl: ttl}, nil
	})
	if err != nil {
		return nil, nil, false, tiercache.NewBackendError(s.name, "get", err)
	}
	if result == nil {
		return nil, nil, false, nil
	}
	r := result.(ttlResult)
	if r.ttl == -1 {
		// -1 means "no associated expiry" in Redis; report "unknown TTL".
		return r.val, nil, true, nil
	}
	if r.ttl <= 0 {
		// Zero or negative (e.g. -2, "key does not exist") means the key
		// expired at the backend between GET and PTTL, or clock skew made
		// it look expired; treat defensively as a miss (§4.3).
		return nil, nil, false, nil
	}
	d := r.ttl
	return r.val, &d, true, nil
}

type ttlResult struct {
	val []byte
	ttl time.Duration
}

func (s *Shared) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if ttl <= 0 {
		return s.Remove(ctx, key)
	}
	_, err := s.run(ctx, func(ctx context.Context) (any, error) {
		return nil, s.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		return tiercache.NewBackendError(s.name, "set", err)
	}
	return nil
}

func (s *Shared) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.run(ctx, func(ctx context.Context) (any, error) {
		return nil, s.client.Del(ctx, key).Err()
	})
	if err != nil {
		return tiercache.NewBackendError(s.name, "remove", err)
	}
	return nil
}

func (s *Shared) RemoveBulk(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.run(ctx, func(ctx context.Context) (any, error) {
		return nil, s.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return tiercache.NewBackendError(s.name, "remove_bulk", err)
	}
	return nil
}

// Scan returns a bounded, non-blocking iterator over keys matching pattern,
// backed by Redis's cursor-based SCAN so a single pattern invalidation never
// blocks the shared tier the way KEYS would.
func (s *Shared) Scan(ctx context.Context, pattern string) (ScanIterator, error) {
	return &redisScanIterator{client: s.client, pattern: pattern, count: s.scanN, timeout: s.timeout}, nil
}

func (s *Shared) run(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(func() (any, error) { return fn(ctx) })
}

type redisScanIterator struct {
	client  RedisClient
	pattern string
	count   int64
	timeout time.Duration

	cursor  uint64
	buf     []string
	started bool
	done    bool
	err     error
}

func (it *redisScanIterator) Next(ctx context.Context) (string, bool) {
	for len(it.buf) == 0 {
		if it.done {
			return "", false
		}
		if err := it.fill(ctx); err != nil {
			it.err = err
			it.done = true
			return "", false
		}
	}
	key := it.buf[0]
	it.buf = it.buf[1:]
	return key, true
}

func (it *redisScanIterator) Err() error { return it.err }

func (it *redisScanIterator) fill(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, it.timeout)
	defer cancel()

	keys, next, err := it.client.Scan(ctx, it.cursor, it.pattern, it.count).Result()
	if err != nil {
		return err
	}
	it.started = true
	it.cursor = next
	it.buf = keys
	if next == 0 {
		it.done = true
	}
	return nil
}
