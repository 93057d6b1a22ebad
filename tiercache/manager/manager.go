// Package manager implements the cache manager (§4.3–§4.5): the component
// callers actually talk to, orchestrating tierchain.Chain reads/writes,
// singleflight-coordinated get-or-compute, and invalidation broadcast.
package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/IvanBrykalov/multitiercache/tiercache/invalidation"
	"github.com/IvanBrykalov/multitiercache/tiercache/singleflight"
	"github.com/IvanBrykalov/multitiercache/tiercache/streaming"
	"github.com/IvanBrykalov/multitiercache/tiercache/tier"
	"github.com/IvanBrykalov/multitiercache/tiercache/tierchain"
	"github.com/rs/zerolog"
)

// promotionFallbackTTL is used when a promoted-to tier needs a TTL but the
// originating tier could not report a remaining one (tier.Tier's
// GetWithRemainingTTL ttl == nil case) and the tier itself has no configured
// DefaultTTL (§4.3: "falls back to the tier-configured default TTL when
// promoting").
const promotionFallbackTTL = 5 * time.Minute

// Config configures a Manager. Chain is the only required field; every
// other collaborator is optional and the corresponding feature is simply
// unavailable when absent (SetWithBroadcast without a Publisher returns a
// ConfigurationError). Sidecar is stored on the Manager, but the Manager
// exposes no stream operations of its own; callers use the Sidecar directly.
type Config struct {
	Chain      *tierchain.Chain
	Publisher  *invalidation.Publisher
	Sidecar    *streaming.Sidecar
	Counters   *tiercache.Counters
	Clock      tiercache.Clock
	Logger     zerolog.Logger
	// ShutdownDeadline bounds how long Shutdown waits for in-flight
	// operations to finish before giving up (§5 quiescence contract).
	ShutdownDeadline time.Duration
}

// Manager is the cache manager described in §4.3–§4.5: it reads/writes
// through a tierchain.Chain with read-time promotion, coalesces concurrent
// misses for the same key via singleflight, and optionally publishes
// invalidation broadcasts after a successful write.
type Manager struct {
	chain    *tierchain.Chain
	sf       *singleflight.Group
	pub      *invalidation.Publisher
	sidecar  *streaming.Sidecar
	counters *tiercache.Counters
	clock    tiercache.Clock
	log      zerolog.Logger

	deadline time.Duration
	closed   atomic.Bool
	wg       sync.WaitGroup

	sub *invalidation.Subscriber
}

// Manager implements invalidation.LocalApplier (see applier.go), so a
// Subscriber can apply received messages to this manager's tier chain
// without the invalidation package importing manager.
var _ invalidation.LocalApplier = (*Manager)(nil)

// New builds a Manager. It returns a ConfigurationError if cfg.Chain is nil.
func New(cfg Config) (*Manager, error) {
	if cfg.Chain == nil {
		return nil, tiercache.NewConfigurationError("manager: Config.Chain must not be nil")
	}
	counters := cfg.Counters
	if counters == nil {
		counters = &tiercache.Counters{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = tiercache.RealClock
	}
	deadline := cfg.ShutdownDeadline
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	return &Manager{
		chain:    cfg.Chain,
		sf:       singleflight.NewGroup(),
		pub:      cfg.Publisher,
		sidecar:  cfg.Sidecar,
		counters: counters,
		clock:    clock,
		log:      cfg.Logger,
		deadline: deadline,
	}, nil
}

// AttachSubscriber records sub as the Manager's invalidation subscriber so
// Shutdown can drain it too. The caller is still responsible for calling
// sub.Run in its own goroutine; the manager itself is passed as sub's
// LocalApplier at construction (SubscriberConfig.Applier: manager).
func (m *Manager) AttachSubscriber(sub *invalidation.Subscriber) {
	m.sub = sub
}

// Counters exposes the manager's counters so callers can wire a metrics
// adapter (tiercache/metrics) without the manager depending on it.
func (m *Manager) Counters() *tiercache.Counters { return m.counters }

// TierHits returns a name->hit-count snapshot across all tiers, satisfying
// metrics.StatsSource.
func (m *Manager) TierHits() map[string]int64 { return m.chain.HitCounts() }

// InFlight reports the number of keys currently being computed by a
// single-flight leader, satisfying metrics.StatsSource.
func (m *Manager) InFlight() int { return m.sf.Len() }

func (m *Manager) enter() error {
	if m.closed.Load() {
		return tiercache.ErrShuttingDown
	}
	m.wg.Add(1)
	if m.closed.Load() {
		m.wg.Done()
		return tiercache.ErrShuttingDown
	}
	return nil
}

func (m *Manager) leave() { m.wg.Done() }

// Shutdown stops accepting new operations and waits for in-flight ones to
// finish, up to ctx's deadline or the manager's configured
// ShutdownDeadline, whichever is shorter (§5: "reject new operations ...
// let in-flight operations complete or hit a deadline"). It then drains the
// subscriber, if one was attached.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closed.Store(true)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(m.deadline)
	defer timer.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		m.log.Warn().Msg("manager: shutdown deadline elapsed with operations still in flight")
	}

	if m.sub != nil {
		m.sub.Shutdown()
	}
	return nil
}

// Get reads key, walking tiers in ascending level order and promoting a hit
// at a deeper tier configured with Promote into every shallower tier (§4.3).
func (m *Manager) Get(ctx context.Context, key string) (tiercache.Value, bool, error) {
	if err := m.enter(); err != nil {
		return nil, false, err
	}
	defer m.leave()
	return m.get(ctx, key)
}

func (m *Manager) get(ctx context.Context, key string) (tiercache.Value, bool, error) {
	tiers := m.chain.Tiers()
	for idx, t := range tiers {
		raw, ttl, ok, err := t.Backend.GetWithRemainingTTL(ctx, key)
		if err != nil {
			m.log.Warn().Err(err).Str("tier", t.Backend.Name()).Str("key", key).Msg("manager: tier read failed, falling through")
			continue
		}
		if !ok {
			continue
		}
		if ttl != nil && *ttl <= 0 {
			// §4.3: a TTL of exactly zero must be treated as a miss, not a
			// live value — a tier reporting this at the nanosecond boundary
			// between "still live" and "expired" should fall through rather
			// than serve a value that expired as this read observed it.
			continue
		}
		val, decErr := tiercache.Decode(raw)
		if decErr != nil {
			// Corrupted entry: remove it from the tier that produced it and
			// keep looking deeper (§7: "the offending key is removed from
			// the offending tier").
			_ = t.Backend.Remove(ctx, key)
			m.log.Warn().Err(decErr).Str("tier", t.Backend.Name()).Str("key", key).Msg("manager: decode failed, evicted")
			continue
		}

		t.IncrHit()
		if idx == 0 {
			m.counters.AddL1Hit()
		} else {
			m.counters.AddDeeperHit()
		}

		if idx > 0 {
			m.promote(ctx, tiers, idx, key, raw, ttl)
		}
		return val, true, nil
	}
	m.counters.AddMiss()
	return nil, false, nil
}

// promote writes a value discovered at tiers[foundIdx] into every shallower
// tier, provided the tier it was found in is configured with Promote=true
// (§4.3).
func (m *Manager) promote(ctx context.Context, tiers []*tierchain.ConfiguredTier, foundIdx int, key string, raw []byte, ttl *time.Duration) {
	if !tiers[foundIdx].Promote {
		return
	}
	for _, t := range m.chainShallower(tiers, foundIdx) {
		// §4.3 step 2: the promoted-to tier's TTL is min(remaining TTL from
		// the source tier, this tier's own default TTL) — a short-lived
		// target must not be over-promoted to outlive its own default just
		// because the source tier still had plenty of time left.
		ceiling := t.DefaultTTL
		if ceiling <= 0 {
			ceiling = promotionFallbackTTL
		}
		target := ceiling
		if ttl != nil {
			if scaled := tierchain.ScaledTTL(t, *ttl); scaled < target {
				target = scaled
			}
		}
		if err := t.Backend.Set(ctx, key, raw, target); err != nil {
			m.log.Warn().Err(err).Str("tier", t.Backend.Name()).Str("key", key).Msg("manager: promotion write failed")
			continue
		}
		m.counters.AddPromotion()
	}
}

func (m *Manager) chainShallower(tiers []*tierchain.ConfiguredTier, idx int) []*tierchain.ConfiguredTier {
	return tiers[:idx]
}

// Set writes value through every tier in ascending level order, scaling TTL
// per tier (§4.4). It returns the first error from a Required tier; errors
// from non-required tiers are logged and otherwise ignored.
func (m *Manager) Set(ctx context.Context, key string, value tiercache.Value, strategy tiercache.Strategy) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	return m.set(ctx, key, value, strategy)
}

func (m *Manager) set(ctx context.Context, key string, value tiercache.Value, strategy tiercache.Strategy) error {
	raw, err := tiercache.Encode(value)
	if err != nil {
		return tiercache.ErrDecodeFailed
	}
	base := strategy.TTL()
	for _, t := range m.chain.Tiers() {
		ttl := tierchain.ScaledTTL(t, base)
		if err := t.Backend.Set(ctx, key, raw, ttl); err != nil {
			if t.Required {
				return err
			}
			m.log.Warn().Err(err).Str("tier", t.Backend.Name()).Str("key", key).Msg("manager: non-required tier write failed")
		}
	}
	return nil
}

// SetWithBroadcast writes value exactly like Set, then publishes an Update
// invalidation message so other processes refresh their local tiers (§4.6).
// The broadcast is only sent if the local write succeeded (§9: "do not
// broadcast unless the local write to the required tier succeeded").
func (m *Manager) SetWithBroadcast(ctx context.Context, key string, value tiercache.Value, strategy tiercache.Strategy) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if m.pub == nil {
		return tiercache.NewConfigurationError("manager: SetWithBroadcast requires an invalidation.Publisher")
	}
	if err := m.set(ctx, key, value, strategy); err != nil {
		return err
	}
	ttl := strategy.TTL()
	return m.pub.Publish(ctx, invalidation.NewUpdate(key, value, &ttl, "", m.clock.Now()))
}

// Remove deletes key from every tier and, if broadcast is true, publishes a
// Remove invalidation message.
func (m *Manager) Remove(ctx context.Context, key string, broadcast bool) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	for _, t := range m.chain.Tiers() {
		if err := t.Backend.Remove(ctx, key); err != nil {
			m.log.Warn().Err(err).Str("tier", t.Backend.Name()).Str("key", key).Msg("manager: remove failed")
		}
	}
	if !broadcast {
		return nil
	}
	if m.pub == nil {
		return tiercache.NewConfigurationError("manager: broadcast requires an invalidation.Publisher")
	}
	return m.pub.Publish(ctx, invalidation.NewRemove(key, "", m.clock.Now()))
}

// RemoveBulk point-deletes every key in keys from every tier and, if
// broadcast is true, publishes a single RemoveBulk invalidation message.
func (m *Manager) RemoveBulk(ctx context.Context, keys []string, broadcast bool) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	for _, t := range m.chain.Tiers() {
		if shared, ok := t.Backend.(tier.SharedTier); ok {
			if err := shared.RemoveBulk(ctx, keys); err != nil {
				m.log.Warn().Err(err).Str("tier", t.Backend.Name()).Msg("manager: bulk remove failed")
			}
			continue
		}
		for _, k := range keys {
			_ = t.Backend.Remove(ctx, k)
		}
	}
	if !broadcast {
		return nil
	}
	if m.pub == nil {
		return tiercache.NewConfigurationError("manager: broadcast requires an invalidation.Publisher")
	}
	return m.pub.Publish(ctx, invalidation.NewRemoveBulk(keys, "", m.clock.Now()))
}

// RemovePattern deletes every key matching pattern from every tier —
// glob-scanning local tiers in-process and SCAN-ing shared tiers — and, if
// broadcast is true, publishes a single RemovePattern invalidation message
// (§4.6).
func (m *Manager) RemovePattern(ctx context.Context, pattern string, broadcast bool) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if err := removePatternFromChain(ctx, m.chain, pattern, m.log); err != nil {
		return err
	}
	if !broadcast {
		return nil
	}
	if m.pub == nil {
		return tiercache.NewConfigurationError("manager: broadcast requires an invalidation.Publisher")
	}
	return m.pub.Publish(ctx, invalidation.NewRemovePattern(pattern, "", m.clock.Now()))
}

// Stats is a point-in-time view of the manager's counters plus a per-tier
// hit breakdown (§D.2's supplemented statistics shape).
type Stats struct {
	tiercache.Snapshot
	TierHits   map[string]int64
	InFlight   int
	TierHealth map[string]bool
}

// Stats returns the current statistics snapshot. Health probes are skipped
// unless probeHealth is true, since they cost a round trip per tier.
func (m *Manager) Stats(ctx context.Context, probeHealth bool) Stats {
	s := Stats{
		Snapshot: m.counters.Snapshot(),
		TierHits: m.chain.HitCounts(),
		InFlight: m.sf.Len(),
	}
	if probeHealth {
		s.TierHealth = m.chain.Health(ctx)
	}
	return s
}
