// Package metrics adapts a Manager's statistics onto Prometheus, extending
// the teacher's single-counter-set adapter (metrics/prom) to the full
// per-tier, per-invalidation-kind statistics model described in §3 and §D.2.
package metrics

import (
	"context"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is the minimal view of manager.Manager this adapter polls;
// kept as an interface so metrics does not import manager (which would be
// the only consumer-facing reason to, and would otherwise create a needless
// coupling for something that is really just "anything exposing counters,
// per-tier hits and an in-flight count").
type StatsSource interface {
	Counters() *tiercache.Counters
	TierHits() map[string]int64
	InFlight() int
}

// Adapter exports a manager's counters as Prometheus metrics, grounded on
// the teacher's metrics/prom.Adapter shape (one struct field per metric,
// registered once at construction) but widened to the full statistics set
// a multi-tier manager reports: hits split by tier depth and by tier name,
// misses, promotions, in-flight single-flight waits, invalidations sent and
// received split by kind, and subscriber errors.
type Adapter struct {
	l1Hits            prometheus.Counter
	deeperHits        prometheus.Counter
	misses            prometheus.Counter
	promotions        prometheus.Counter
	inFlightWaits     prometheus.Counter
	inFlightGauge     prometheus.Gauge
	invalidationsSent *prometheus.CounterVec
	invalidationsRecv *prometheus.CounterVec
	subscriberErrors  prometheus.Counter
	tierHits          *prometheus.GaugeVec

	// last* track the previous Snapshot values so Observe can Add the delta
	// into Prometheus counters, which only support monotonic increments.
	lastL1            float64
	lastDeeper        float64
	lastMisses        float64
	lastPromotions    float64
	lastInFlightWaits float64
	lastSubErrors     float64
	lastSentByKind    map[string]float64
	lastRecvByKind    map[string]float64
}

// New constructs a Prometheus metrics adapter and registers its metrics
// with reg (nil uses prometheus.DefaultRegisterer), mirroring the teacher's
// registration-at-construction pattern.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		l1Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "l1_hits_total",
			Help: "Reads satisfied by the shallowest (level-1) tier", ConstLabels: constLabels,
		}),
		deeperHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "deeper_hits_total",
			Help: "Reads satisfied by any tier below level 1", ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "misses_total",
			Help: "Reads satisfied by no tier", ConstLabels: constLabels,
		}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "promotions_total",
			Help: "Values written into a shallower tier after a deeper hit", ConstLabels: constLabels,
		}),
		inFlightWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "inflight_waits_total",
			Help: "GetOrCompute calls that waited on another goroutine's producer", ConstLabels: constLabels,
		}),
		inFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "inflight_keys",
			Help: "Keys currently being computed by a single-flight leader", ConstLabels: constLabels,
		}),
		invalidationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "invalidations_sent_total",
			Help: "Invalidation messages published, by kind", ConstLabels: constLabels,
		}, []string{"kind"}),
		invalidationsRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "invalidations_received_total",
			Help: "Invalidation messages received and applied, by kind", ConstLabels: constLabels,
		}, []string{"kind"}),
		subscriberErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "subscriber_errors_total",
			Help: "Decode or apply failures observed by the invalidation subscriber", ConstLabels: constLabels,
		}),
		tierHits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "tier_hits",
			Help: "Cumulative hits per configured tier", ConstLabels: constLabels,
		}, []string{"tier"}),
		lastSentByKind: make(map[string]float64, 4),
		lastRecvByKind: make(map[string]float64, 4),
	}
	reg.MustRegister(
		a.l1Hits, a.deeperHits, a.misses, a.promotions, a.inFlightWaits, a.inFlightGauge,
		a.invalidationsSent, a.invalidationsRecv, a.subscriberErrors, a.tierHits,
	)
	return a
}

// Observe samples src's current counters and updates every metric. Counters
// in tiercache.Counters are cumulative, so Observe sets Prometheus counters
// to the absolute value via Add(delta) against the last observed value,
// matching how a single process's lifetime counters are normally exported.
func (a *Adapter) Observe(src StatsSource) {
	snap := src.Counters().Snapshot()
	a.l1Hits.Add(float64(snap.L1Hits) - a.lastL1)
	a.lastL1 = float64(snap.L1Hits)
	a.deeperHits.Add(float64(snap.DeeperHits) - a.lastDeeper)
	a.lastDeeper = float64(snap.DeeperHits)
	a.misses.Add(float64(snap.Misses) - a.lastMisses)
	a.lastMisses = float64(snap.Misses)
	a.promotions.Add(float64(snap.Promotions) - a.lastPromotions)
	a.lastPromotions = float64(snap.Promotions)
	a.inFlightWaits.Add(float64(snap.InFlightWaits) - a.lastInFlightWaits)
	a.lastInFlightWaits = float64(snap.InFlightWaits)
	a.subscriberErrors.Add(float64(snap.SubscriberErrors) - a.lastSubErrors)
	a.lastSubErrors = float64(snap.SubscriberErrors)

	a.addByKind(a.invalidationsSent, a.lastSentByKind, "remove", float64(snap.SentByRemove))
	a.addByKind(a.invalidationsSent, a.lastSentByKind, "update", float64(snap.SentByUpdate))
	a.addByKind(a.invalidationsSent, a.lastSentByKind, "remove_pattern", float64(snap.SentByPattern))
	a.addByKind(a.invalidationsSent, a.lastSentByKind, "remove_bulk", float64(snap.SentByBulk))

	a.addByKind(a.invalidationsRecv, a.lastRecvByKind, "remove", float64(snap.RecvByRemove))
	a.addByKind(a.invalidationsRecv, a.lastRecvByKind, "update", float64(snap.RecvByUpdate))
	a.addByKind(a.invalidationsRecv, a.lastRecvByKind, "remove_pattern", float64(snap.RecvByPattern))
	a.addByKind(a.invalidationsRecv, a.lastRecvByKind, "remove_bulk", float64(snap.RecvByBulk))

	a.inFlightGauge.Set(float64(src.InFlight()))
	for name, hits := range src.TierHits() {
		a.tierHits.WithLabelValues(name).Set(float64(hits))
	}
}

func (a *Adapter) addByKind(vec *prometheus.CounterVec, last map[string]float64, kind string, value float64) {
	vec.WithLabelValues(kind).Add(value - last[kind])
	last[kind] = value
}

// PollEvery starts a goroutine that calls Observe(src) every interval until
// ctx is cancelled. It is a convenience wrapper; callers that already drive
// their own scrape loop can just call Observe directly.
func (a *Adapter) PollEvery(ctx context.Context, src StatsSource, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				a.Observe(src)
			}
		}
	}()
}
