package invalidation

import (
	"context"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
)

// LocalApplier is implemented by the cache manager and lets the Subscriber
// apply received messages to the local tier chain without importing the
// manager package (which itself imports invalidation to publish).
type LocalApplier interface {
	// ApplyRemove deletes key from every tier that is not the shared tier.
	ApplyRemove(ctx context.Context, key string) error
	// ApplyUpdate writes (value, ttl or tier-default) to every local tier;
	// it must not touch the shared tier.
	ApplyUpdate(ctx context.Context, key string, value tiercache.Value, ttl *time.Duration) error
	// ApplyRemovePattern glob-matches every in-memory tier and deletes
	// matching keys; it must not scan the shared tier.
	ApplyRemovePattern(ctx context.Context, pattern string) error
	// ApplyRemoveBulk point-deletes keys from every local tier.
	ApplyRemoveBulk(ctx context.Context, keys []string) error
}
