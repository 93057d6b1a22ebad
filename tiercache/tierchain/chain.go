// Package tierchain composes an ordered set of tiers with per-tier policy
// (promotion, TTL scaling, level) into the read/write order views the cache
// manager consumes (§4.2).
package tierchain

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/IvanBrykalov/multitiercache/tiercache/tier"
)

// TierSpec is one (backend, per-tier policy) pair supplied at construction.
type TierSpec struct {
	// Backend implements the tier contract (§4.1).
	Backend tier.Tier
	// Level orders tiers ascending; lower is closer to the caller. Two
	// tiers may not share a level.
	Level int
	// Promote enables copying a value found at this tier on read into every
	// shallower tier (§4.3). Typically false for level 1 (nothing is
	// shallower), true for deeper tiers.
	Promote bool
	// TTLScale multiplies the resolved strategy TTL when writing through
	// this tier (§4.4). Zero is treated as 1.0 (unit scaling).
	TTLScale float64
	// Required marks this tier as one whose write must succeed for the
	// overall Set to be considered successful (§4.4); the shared tier is
	// required by default.
	Required bool
	// DefaultTTL is the TTL applied when this tier is a promotion target and
	// the originating tier could not report a remaining TTL
	// (tier.Tier.GetWithRemainingTTL's ttl == nil case); when a remaining TTL
	// is known, the promoted entry's TTL is capped at DefaultTTL. It is also
	// used for a received Update that carries no TTL. <= 0 uses the
	// manager's 5-minute fallback instead.
	DefaultTTL time.Duration
}

// ConfiguredTier pairs a TierSpec with its runtime hit counter, the unit the
// manager and invalidation subscriber operate on.
type ConfiguredTier struct {
	TierSpec
	hits atomic.Int64
}

// Hits returns the number of reads satisfied by this tier.
func (t *ConfiguredTier) Hits() int64 { return t.hits.Load() }

// IncrHit records a read satisfied by this tier.
func (t *ConfiguredTier) IncrHit() { t.hits.Add(1) }

func (t *ConfiguredTier) scale() float64 {
	if t.TTLScale <= 0 {
		return 1
	}
	return t.TTLScale
}

// Chain is the totally-ordered set of tiers the manager walks on every
// operation.
type Chain struct {
	tiers []*ConfiguredTier // ascending level; read order == write order
}

// New builds a Chain from specs, sorting by ascending level. It returns a
// ConfigurationError (§7, kind 4) if two tiers share a level or specs is
// empty; construction never partially initializes.
func New(specs []TierSpec) (*Chain, error) {
	if len(specs) == 0 {
		return nil, tiercache.NewConfigurationError("tierchain: at least one tier is required")
	}

	seenLevels := make(map[int]struct{}, len(specs))
	configured := make([]*ConfiguredTier, 0, len(specs))
	for _, spec := range specs {
		if spec.Backend == nil {
			return nil, tiercache.NewConfigurationError("tierchain: tier backend must not be nil")
		}
		if _, dup := seenLevels[spec.Level]; dup {
			return nil, tiercache.NewConfigurationError("tierchain: duplicate tier level")
		}
		seenLevels[spec.Level] = struct{}{}
		configured = append(configured, &ConfiguredTier{TierSpec: spec})
	}

	sort.Slice(configured, func(i, j int) bool { return configured[i].Level < configured[j].Level })

	return &Chain{tiers: configured}, nil
}

// NewLegacyTwoTier builds a two-tier chain identical in behavior to an
// explicit two-tier chain with promotion-to-L1 enabled and unit scaling
// (§4.2: "a legacy two-tier mode is permitted").
func NewLegacyTwoTier(l1, l2 tier.Tier) (*Chain, error) {
	return New([]TierSpec{
		{Backend: l1, Level: 1, Promote: false, TTLScale: 1, Required: false},
		{Backend: l2, Level: 2, Promote: true, TTLScale: 1, Required: true},
	})
}

// Tiers returns the read order (== write order), ascending by level.
func (c *Chain) Tiers() []*ConfiguredTier { return c.tiers }

// Shallower returns every configured tier with a strictly lower level than
// the tier at index idx (§4.2's "read order"), used by the manager to
// decide which tiers are eligible for promotion on a hit at idx.
func (c *Chain) Shallower(idx int) []*ConfiguredTier {
	return c.tiers[:idx]
}

// HitCounts returns a name->hit-count snapshot across all tiers (§D.2's
// per-tier statistics breakdown).
func (c *Chain) HitCounts() map[string]int64 {
	out := make(map[string]int64, len(c.tiers))
	for _, t := range c.tiers {
		out[t.Backend.Name()] = t.Hits()
	}
	return out
}

// Health probes every tier and returns a name->healthy map (supplemented
// feature, §D.1).
func (c *Chain) Health(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(c.tiers))
	for _, t := range c.tiers {
		out[t.Backend.Name()] = t.Backend.Health(ctx)
	}
	return out
}

// ScaledTTL resolves the TTL to store at tier t given the base TTL resolved
// from the caller's strategy (§4.4: T_i = T * scale_i).
func ScaledTTL(t *ConfiguredTier, base time.Duration) time.Duration {
	return time.Duration(float64(base) * t.scale())
}
