package metrics

import (
	"testing"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeStatsSource struct {
	counters *tiercache.Counters
	tierHits map[string]int64
	inFlight int
}

func (f *fakeStatsSource) Counters() *tiercache.Counters { return f.counters }
func (f *fakeStatsSource) TierHits() map[string]int64    { return f.tierHits }
func (f *fakeStatsSource) InFlight() int                 { return f.inFlight }

func TestAdapter_ObserveAccumulatesDeltas(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := New(reg, "test", "cache", nil)

	counters := &tiercache.Counters{}
	src := &fakeStatsSource{counters: counters, tierHits: map[string]int64{"l1": 3}}

	counters.AddL1Hit()
	counters.AddL1Hit()
	counters.AddMiss()
	a.Observe(src)

	require.Equal(t, float64(2), testutil.ToFloat64(a.l1Hits))
	require.Equal(t, float64(1), testutil.ToFloat64(a.misses))
	require.Equal(t, float64(3), testutil.ToFloat64(a.tierHits.WithLabelValues("l1")))

	// A second Observe with two more L1 hits must add only the delta (2),
	// not double-count the first Observe's total.
	counters.AddL1Hit()
	counters.AddL1Hit()
	a.Observe(src)
	require.Equal(t, float64(4), testutil.ToFloat64(a.l1Hits))
}

func TestAdapter_ObserveTracksSentAndReceivedByKindIndependently(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := New(reg, "test", "cache", nil)

	counters := &tiercache.Counters{}
	src := &fakeStatsSource{counters: counters}

	counters.AddInvalidationSent(tiercache.KindRemove)
	counters.AddInvalidationSent(tiercache.KindRemove)
	counters.AddInvalidationReceived(tiercache.KindRemove)
	a.Observe(src)

	require.Equal(t, float64(2), testutil.ToFloat64(a.invalidationsSent.WithLabelValues("remove")))
	require.Equal(t, float64(1), testutil.ToFloat64(a.invalidationsRecv.WithLabelValues("remove")),
		"received-by-kind must track independently from sent-by-kind for the same kind")

	counters.AddInvalidationSent(tiercache.KindUpdate)
	a.Observe(src)
	require.Equal(t, float64(1), testutil.ToFloat64(a.invalidationsSent.WithLabelValues("update")))
	require.Equal(t, float64(2), testutil.ToFloat64(a.invalidationsSent.WithLabelValues("remove")),
		"unrelated kind's delta must not perturb an already-observed kind")
}

func TestAdapter_ObserveSetsPointInTimeGauges(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := New(reg, "test", "cache", nil)

	src := &fakeStatsSource{counters: &tiercache.Counters{}, tierHits: map[string]int64{"l1": 1}, inFlight: 5}
	a.Observe(src)
	require.Equal(t, float64(5), testutil.ToFloat64(a.inFlightGauge))

	src.inFlight = 2
	a.Observe(src)
	require.Equal(t, float64(2), testutil.ToFloat64(a.inFlightGauge), "gauges reflect the latest value, not a delta")
}
