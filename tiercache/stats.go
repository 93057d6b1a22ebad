package tiercache

import "sync/atomic"

// Counters holds the monotone per-component counters described in §3.
// Every field is updated with relaxed-ordering atomics; readers obtain a
// consistent snapshot per counter via Snapshot, not a live handle across
// counters (per the "Statistics cloning" design note).
type Counters struct {
	l1Hits            atomic.Int64
	deeperHits        atomic.Int64 // L2+ hits, aggregated; per-tier hits live on tierchain.ConfiguredTier
	misses            atomic.Int64
	promotions        atomic.Int64
	inFlightWaits     atomic.Int64
	invalidationsSent atomic.Int64
	invalidationsRecv atomic.Int64
	sentByRemove      atomic.Int64
	sentByUpdate      atomic.Int64
	sentByPattern     atomic.Int64
	sentByBulk        atomic.Int64
	recvByRemove      atomic.Int64
	recvByUpdate      atomic.Int64
	recvByPattern     atomic.Int64
	recvByBulk        atomic.Int64
	subscriberErrors  atomic.Int64
}

// Snapshot is a point-in-time, immutable view of Counters. It is what
// callers receive from Manager.Stats(); it is not a live handle to the
// underlying atomics.
type Snapshot struct {
	L1Hits            int64
	DeeperHits        int64
	Misses            int64
	Promotions        int64
	InFlightWaits     int64
	InvalidationsSent int64
	InvalidationsRecv int64
	SentByRemove      int64
	SentByUpdate      int64
	SentByPattern     int64
	SentByBulk        int64
	RecvByRemove      int64
	RecvByUpdate      int64
	RecvByPattern     int64
	RecvByBulk        int64
	SubscriberErrors  int64
}

// Snapshot copies the current counter values into an immutable Snapshot.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		L1Hits:            c.l1Hits.Load(),
		DeeperHits:        c.deeperHits.Load(),
		Misses:            c.misses.Load(),
		Promotions:        c.promotions.Load(),
		InFlightWaits:     c.inFlightWaits.Load(),
		InvalidationsSent: c.invalidationsSent.Load(),
		InvalidationsRecv: c.invalidationsRecv.Load(),
		SentByRemove:      c.sentByRemove.Load(),
		SentByUpdate:      c.sentByUpdate.Load(),
		SentByPattern:     c.sentByPattern.Load(),
		SentByBulk:        c.sentByBulk.Load(),
		RecvByRemove:      c.recvByRemove.Load(),
		RecvByUpdate:      c.recvByUpdate.Load(),
		RecvByPattern:     c.recvByPattern.Load(),
		RecvByBulk:        c.recvByBulk.Load(),
		SubscriberErrors:  c.subscriberErrors.Load(),
	}
}

func (c *Counters) AddL1Hit()        { c.l1Hits.Add(1) }
func (c *Counters) AddDeeperHit()    { c.deeperHits.Add(1) }
func (c *Counters) AddMiss()         { c.misses.Add(1) }
func (c *Counters) AddPromotion()    { c.promotions.Add(1) }
func (c *Counters) AddInFlightWait() { c.inFlightWaits.Add(1) }
func (c *Counters) AddInvalidationSent(kind InvalidationKind) {
	c.invalidationsSent.Add(1)
	switch kind {
	case KindRemove:
		c.sentByRemove.Add(1)
	case KindUpdate:
		c.sentByUpdate.Add(1)
	case KindRemovePattern:
		c.sentByPattern.Add(1)
	case KindRemoveBulk:
		c.sentByBulk.Add(1)
	}
}
func (c *Counters) AddInvalidationReceived(kind InvalidationKind) {
	c.invalidationsRecv.Add(1)
	switch kind {
	case KindRemove:
		c.recvByRemove.Add(1)
	case KindUpdate:
		c.recvByUpdate.Add(1)
	case KindRemovePattern:
		c.recvByPattern.Add(1)
	case KindRemoveBulk:
		c.recvByBulk.Add(1)
	}
}
func (c *Counters) AddSubscriberError() { c.subscriberErrors.Add(1) }

// InvalidationKind identifies the variant of an invalidation message without
// importing the invalidation package from tiercache (which would cycle);
// the invalidation package defines its Message type in terms of this kind.
type InvalidationKind uint8

const (
	KindRemove InvalidationKind = iota
	KindUpdate
	KindRemovePattern
	KindRemoveBulk
)

func (k InvalidationKind) String() string {
	switch k {
	case KindRemove:
		return "remove"
	case KindUpdate:
		return "update"
	case KindRemovePattern:
		return "remove_pattern"
	case KindRemoveBulk:
		return "remove_bulk"
	default:
		return "unknown"
	}
}
