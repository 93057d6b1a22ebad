package manager

import (
	"context"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/IvanBrykalov/multitiercache/tiercache/internal/glob"
	"github.com/IvanBrykalov/multitiercache/tiercache/tier"
	"github.com/IvanBrykalov/multitiercache/tiercache/tierchain"
	"github.com/rs/zerolog"
)

// ApplyRemove deletes key from every tier that is not the shared tier —
// the shared tier already reflects the write that triggered this message,
// since it is the tier every process shares (§4.6).
func (m *Manager) ApplyRemove(ctx context.Context, key string) error {
	for _, t := range m.chain.Tiers() {
		if isShared(t) {
			continue
		}
		if err := t.Backend.Remove(ctx, key); err != nil {
			m.log.Warn().Err(err).Str("tier", t.Backend.Name()).Str("key", key).Msg("manager: applied remove failed")
		}
	}
	return nil
}

// ApplyUpdate writes (value, ttl) to every non-shared tier, scaling ttl per
// tier the same way Set does, using the tier-configured DefaultTTL (or the
// 5-minute promotionFallbackTTL when that is unset) when ttl is nil (the
// sender's strategy resolved to an unknown/zero TTL).
func (m *Manager) ApplyUpdate(ctx context.Context, key string, value tiercache.Value, ttl *time.Duration) error {
	raw, err := tiercache.Encode(value)
	if err != nil {
		return tiercache.ErrDecodeFailed
	}
	for _, t := range m.chain.Tiers() {
		if isShared(t) {
			continue
		}
		scaled := t.DefaultTTL
		if scaled <= 0 {
			scaled = promotionFallbackTTL
		}
		if ttl != nil {
			scaled = tierchain.ScaledTTL(t, *ttl)
		}
		if err := t.Backend.Set(ctx, key, raw, scaled); err != nil {
			m.log.Warn().Err(err).Str("tier", t.Backend.Name()).Str("key", key).Msg("manager: applied update failed")
		}
	}
	return nil
}

// ApplyRemovePattern glob-matches every non-shared, in-process-scannable
// tier and deletes matching keys; it never scans the shared tier, since
// that tier already reflects the remote write (§4.6: "must not scan the
// shared tier").
func (m *Manager) ApplyRemovePattern(ctx context.Context, pattern string) error {
	for _, t := range m.chain.Tiers() {
		if isShared(t) {
			continue
		}
		scanner, ok := t.Backend.(tier.LocalScanner)
		if !ok {
			continue
		}
		keys, err := scanner.ScanKeys(ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("tier", t.Backend.Name()).Msg("manager: applied remove_pattern scan failed")
			continue
		}
		for _, k := range keys {
			if glob.Match(pattern, k) {
				_ = t.Backend.Remove(ctx, k)
			}
		}
	}
	return nil
}

// ApplyRemoveBulk point-deletes keys from every non-shared tier.
func (m *Manager) ApplyRemoveBulk(ctx context.Context, keys []string) error {
	for _, t := range m.chain.Tiers() {
		if isShared(t) {
			continue
		}
		for _, k := range keys {
			_ = t.Backend.Remove(ctx, k)
		}
	}
	return nil
}

func isShared(t *tierchain.ConfiguredTier) bool {
	_, ok := t.Backend.(tier.SharedTier)
	return ok
}

// removePatternFromChain performs the full (local scan + shared SCAN)
// pattern removal Manager.RemovePattern needs, as opposed to
// Manager.ApplyRemovePattern's local-only variant used by the subscriber.
func removePatternFromChain(ctx context.Context, chain *tierchain.Chain, pattern string, log zerolog.Logger) error {
	for _, t := range chain.Tiers() {
		if shared, ok := t.Backend.(tier.SharedTier); ok {
			it, err := shared.Scan(ctx, pattern)
			if err != nil {
				log.Warn().Err(err).Str("tier", t.Backend.Name()).Msg("manager: pattern scan failed")
				continue
			}
			var keys []string
			for {
				key, ok := it.Next(ctx)
				if !ok {
					break
				}
				keys = append(keys, key)
			}
			if err := it.Err(); err != nil {
				log.Warn().Err(err).Str("tier", t.Backend.Name()).Msg("manager: pattern scan iteration failed")
			}
			if len(keys) > 0 {
				if err := shared.RemoveBulk(ctx, keys); err != nil {
					log.Warn().Err(err).Str("tier", t.Backend.Name()).Msg("manager: pattern bulk remove failed")
				}
			}
			continue
		}

		scanner, ok := t.Backend.(tier.LocalScanner)
		if !ok {
			continue
		}
		keys, err := scanner.ScanKeys(ctx)
		if err != nil {
			log.Warn().Err(err).Str("tier", t.Backend.Name()).Msg("manager: local pattern scan failed")
			continue
		}
		for _, k := range keys {
			if glob.Match(pattern, k) {
				_ = t.Backend.Remove(ctx, k)
			}
		}
	}
	return nil
}
