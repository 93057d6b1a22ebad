package manager

import (
	"context"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/IvanBrykalov/multitiercache/tiercache/tierchain"
)

// Producer computes the value for a cache miss. It is invoked at most once
// per key per concurrent miss window, no matter how many goroutines call
// GetOrCompute for that key at once (§4.5).
type Producer func(ctx context.Context) (tiercache.Value, error)

// GetOrCompute returns key's value, computing it via producer on a miss.
// Concurrent callers for the same key coalesce onto a single producer
// invocation (§4.5, §9): the first caller becomes the leader and runs
// producer; every other concurrent caller waits on the leader's result
// instead of calling producer itself.
func (m *Manager) GetOrCompute(ctx context.Context, key string, strategy tiercache.Strategy, producer Producer) (tiercache.Value, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.leave()

	if v, ok, err := m.get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}

	entry, isLeader := m.sf.Start(key)
	if !isLeader {
		m.counters.AddInFlightWait()
		select {
		case <-entry.C():
			// Re-read tiers per §4.3 rather than trusting the leader's
			// encoded result directly: the leader's write landed in the
			// tiers before Done was called, so this also accounts the
			// waiter's hit (L1/deeper) and any promotion it triggers
			// (§4.5 step 4).
			if v, ok, err := m.get(ctx, key); err == nil && ok {
				return v, nil
			}
			raw, err := entry.Result()
			if err != nil {
				return nil, err
			}
			return tiercache.Decode(raw)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	defer m.sf.Finish(key, entry)

	// Re-check every tier now that this goroutine holds the leader slot: a
	// previous leader may have populated the cache between this goroutine's
	// initial miss and winning leadership (§4.5 step 3).
	if v, ok, err := m.get(ctx, key); err == nil && ok {
		raw, encErr := tiercache.Encode(v)
		entry.Done(raw, encErr)
		return v, encErr
	}

	value, err := producer(ctx)
	if err != nil {
		wrapped := tiercache.NewProducerError(err)
		entry.Done(nil, wrapped)
		return nil, wrapped
	}

	raw, err := tiercache.Encode(value)
	if err != nil {
		wrapped := tiercache.ErrDecodeFailed
		entry.Done(nil, wrapped)
		return nil, wrapped
	}

	if err := m.set(ctx, key, value, strategy); err != nil {
		// The computed value is still valid even if caching it failed; the
		// caller gets its result, but waiters are told about the cache
		// failure isn't appropriate either — they also just want the value.
		m.log.Warn().Err(err).Str("key", key).Msg("manager: get-or-compute cache write failed")
	}

	entry.Done(raw, nil)
	return value, nil
}

// GetOrComputeTyped is the typed variant of Manager.GetOrCompute (§4.5): T
// is encoded/decoded with tiercache.EncodeTyped/DecodeTyped instead of
// round-tripping through the untyped tiercache.Value map, for callers with
// a concrete result type. It cannot be a method because Go does not allow
// additional type parameters on methods.
func GetOrComputeTyped[T any](ctx context.Context, m *Manager, key string, strategy tiercache.Strategy, producer func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := m.enter(); err != nil {
		return zero, err
	}
	defer m.leave()

	if raw, ok, err := m.getRawTyped(ctx, key); err != nil {
		return zero, err
	} else if ok {
		return tiercache.DecodeTyped[T](raw)
	}

	entry, isLeader := m.sf.Start(key)
	if !isLeader {
		m.counters.AddInFlightWait()
		select {
		case <-entry.C():
			// See the untyped GetOrCompute's waiter path: re-read tiers per
			// §4.3 so this waiter's hit and any promotion are accounted,
			// rather than trusting the leader's result verbatim (§4.5 step 4).
			if raw, ok, err := m.getRawTyped(ctx, key); err == nil && ok {
				return tiercache.DecodeTyped[T](raw)
			}
			raw, err := entry.Result()
			if err != nil {
				return zero, err
			}
			return tiercache.DecodeTyped[T](raw)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	defer m.sf.Finish(key, entry)

	if raw, ok, err := m.getRawTyped(ctx, key); err == nil && ok {
		entry.Done(raw, nil)
		return tiercache.DecodeTyped[T](raw)
	}

	value, err := producer(ctx)
	if err != nil {
		wrapped := tiercache.NewProducerError(err)
		entry.Done(nil, wrapped)
		return zero, wrapped
	}

	raw, err := tiercache.EncodeTyped(value)
	if err != nil {
		wrapped := tiercache.ErrDecodeFailed
		entry.Done(nil, wrapped)
		return zero, wrapped
	}

	asValue, err := tiercache.Decode(raw)
	if err != nil {
		// The typed result isn't a JSON object (e.g. a scalar or slice), so
		// it can't round-trip through the untyped tiercache.Value map; store
		// the raw encoding directly instead via a dedicated set path.
		if setErr := m.setRaw(ctx, key, raw, strategy); setErr != nil {
			m.log.Warn().Err(setErr).Str("key", key).Msg("manager: typed get-or-compute cache write failed")
		}
		entry.Done(raw, nil)
		return value, nil
	}
	if err := m.set(ctx, key, asValue, strategy); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("manager: typed get-or-compute cache write failed")
	}

	entry.Done(raw, nil)
	return value, nil
}

// getRawTyped mirrors get but returns the raw encoding instead of a decoded
// tiercache.Value, since GetOrComputeTyped's T may not be JSON-object
// shaped.
func (m *Manager) getRawTyped(ctx context.Context, key string) ([]byte, bool, error) {
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
		return raw, true, nil
	}
	m.counters.AddMiss()
	return nil, false, nil
}

func (m *Manager) setRaw(ctx context.Context, key string, raw []byte, strategy tiercache.Strategy) error {
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
