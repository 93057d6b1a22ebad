// Package tier defines the uniform contract every cache layer implements
// (§4.1) and ships two reference collaborators: a sharded in-memory tier
// (local) with size-and-age eviction, and a Redis-backed shared tier with
// TTL introspection and scan support.
package tier

import (
	"context"
	"time"
)

// Tier is the contract every cache layer must satisfy. Every method may
// fail; callers classify failures per §4.1's failure model rather than
// panicking.
type Tier interface {
	// Get returns the current live value, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// GetWithRemainingTTL behaves like Get but also reports the remaining
	// TTL when the backend can introspect it. ttl is nil if the backend
	// stores values without TTL introspection; the manager then falls back
	// to the tier-configured default TTL when promoting.
	GetWithRemainingTTL(ctx context.Context, key string) (value []byte, ttl *time.Duration, ok bool, err error)

	// Set stores value with an absolute expiration at now+ttl. A zero ttl
	// is treated as an immediate delete.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Remove idempotently deletes key.
	Remove(ctx context.Context, key string) error

	// Health is a cheap liveness probe.
	Health(ctx context.Context) bool

	// Name is a stable identifier used in logs and statistics.
	Name() string
}

// SharedTier extends Tier with the capabilities only a networked, shared
// layer exposes: non-blocking bounded pattern scan and bulk delete.
type SharedTier interface {
	Tier

	// Scan returns keys matching pattern via a non-blocking, bounded-batch
	// iterator. The returned ScanIterator must be closed (conceptually,
	// simply drained) once the caller is done; implementations that need to
	// release resources do so when Next returns ok=false.
	Scan(ctx context.Context, pattern string) (ScanIterator, error)

	// RemoveBulk deletes every key in keys; implementations should batch
	// this into as few round trips as the backend allows.
	RemoveBulk(ctx context.Context, keys []string) error
}

// ScanIterator yields keys in bounded batches so a pattern scan never blocks
// the shared tier for an unbounded amount of time.
type ScanIterator interface {
	// Next advances to the next key. It returns ok=false once exhausted or
	// on error (see Err).
	Next(ctx context.Context) (key string, ok bool)
	// Err returns the first error encountered during iteration, if any.
	Err() error
}

// LocalScanner is implemented by in-process tiers that can cheaply enumerate
// their resident keys for glob-pattern invalidation (§4.6) without the
// round-trip-bounded Scan a networked SharedTier requires. The local tier
// implements this; the shared tier deliberately does not, so pattern
// invalidation can tell the two families apart without a type switch on a
// concrete type.
type LocalScanner interface {
	ScanKeys(ctx context.Context) ([]string, error)
}
