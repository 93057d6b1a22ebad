package invalidation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Transport Transport
	Channel   string // defaults to DefaultChannel
	Origin    string // defaults to a fresh uuid at construction (see NewOrigin)
	Clock     tiercache.Clock
	Counters  *tiercache.Counters
}

// DefaultChannel is the broadcast channel name used when none is configured
// (§6: channel defaults to "cache:invalidate").
const DefaultChannel = "cache:invalidate"

// Publisher serializes invalidation messages and sends them on the
// configured broadcast channel, stamping each with a monotonically
// increasing timestamp and this process's origin identifier (§4.6).
type Publisher struct {
	transport Transport
	channel   string
	origin    string
	clock     tiercache.Clock
	counters  *tiercache.Counters

	lastTsMs atomic.Int64
}

// NewPublisher builds a Publisher. It panics if cfg.Transport is nil.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.Transport == nil {
		panic("invalidation: PublisherConfig.Transport must not be nil")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	origin := cfg.Origin
	if origin == "" {
		origin = NewOrigin()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = tiercache.RealClock
	}
	return &Publisher{
		transport: cfg.Transport,
		channel:   channel,
		origin:    origin,
		clock:     clock,
		counters:  cfg.Counters,
	}
}

// Origin returns this publisher's origin identifier, used by the subscriber
// for self-echo suppression.
func (p *Publisher) Origin() string { return p.origin }

// Publish serializes m and sends it, stamping Origin and a timestamp
// strictly greater than the previous publish's (monotonic within this
// process, per §4.6: "Messages carry a monotonically increasing
// timestamp").
func (p *Publisher) Publish(ctx context.Context, m Message) error {
	m.Origin = p.origin
	m.TsMs = p.nextTimestamp()

	payload, err := Encode(m)
	if err != nil {
		return tiercache.NewBackendError(p.channel, "encode", err)
	}
	if err := p.transport.Publish(ctx, p.channel, payload); err != nil {
		return tiercache.NewBackendError(p.channel, "publish", err)
	}
	if p.counters != nil {
		p.counters.AddInvalidationSent(m.Kind)
	}
	return nil
}

func (p *Publisher) nextTimestamp() int64 {
	now := p.clock.Now().UnixMilli()
	for {
		prev := p.lastTsMs.Load()
		next := now
		if next <= prev {
			next = prev + 1
		}
		if p.lastTsMs.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// NewOrigin generates a fresh random origin identifier, used as the default
// when none is configured (§6: "origin: ... default: a fresh random
// identifier at startup").
func NewOrigin() string {
	return generateOrigin()
}

// jitterBackoff computes exponential backoff with ±20% jitter (§4.6: "start
// 100 ms, cap 30 s, jitter ±20%"). The un-jittered delay base<<attempt is
// clamped to cap first, so the returned delay lies in [0.8*base, 1.2*cap].
func jitterBackoff(attempt int, base, cap time.Duration, rand func() float64) time.Duration {
	d := base << attempt
	if d <= 0 || d > cap {
		d = cap
	}
	jitter := 1 + (rand()*2-1)*0.2
	return time.Duration(float64(d) * jitter)
}
