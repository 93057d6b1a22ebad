package invalidation

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/rs/zerolog"
)

// State is one of the Subscriber's lifecycle states (§4.6).
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Draining
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

const (
	backoffBase = 100 * time.Millisecond
	backoffCap  = 30 * time.Second
)

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	Transport Transport
	Channel   string // defaults to DefaultChannel
	Origin    string // this process's origin; messages carrying it are ignored
	Applier   LocalApplier
	Audit     AuditConfig
	Counters  *tiercache.Counters
	Logger    zerolog.Logger
	// ShutdownDeadline bounds how long Draining waits for in-flight message
	// application before forcing the terminal state (§4.6, §5).
	ShutdownDeadline time.Duration
}

// Subscriber is the long-running task maintaining a persistent connection
// to the broadcast channel, reconnecting with exponential backoff on
// disconnect, applying received messages to the local tier chain with
// self-echo suppression, and optionally appending to an audit log (§4.6).
type Subscriber struct {
	transport Transport
	channel   string
	origin    string
	applier   LocalApplier
	audit     *audit
	counters  *tiercache.Counters
	log       zerolog.Logger
	deadline  time.Duration

	state   atomic.Int32
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped atomic.Bool

	pending sync.WaitGroup
}

// NewSubscriber builds a Subscriber. Run must be called to start it.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.Transport == nil {
		panic("invalidation: SubscriberConfig.Transport must not be nil")
	}
	if cfg.Applier == nil {
		panic("invalidation: SubscriberConfig.Applier must not be nil")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	deadline := cfg.ShutdownDeadline
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	s := &Subscriber{
		transport: cfg.Transport,
		channel:   channel,
		origin:    cfg.Origin,
		applier:   cfg.Applier,
		audit:     newAudit(cfg.Audit),
		counters:  cfg.Counters,
		log:       cfg.Logger,
		deadline:  deadline,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	s.state.Store(int32(Disconnected))
	return s
}

// State returns the subscriber's current lifecycle state.
func (s *Subscriber) State() State { return State(s.state.Load()) }

// Run drives the Disconnected -> Connecting -> Subscribed state machine
// until ctx is cancelled or Shutdown is called. It is meant to be run in its
// own goroutine; it returns once the subscriber reaches its terminal state.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)

	attempt := 0
	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case <-ctx.Done():
			s.drain()
			return
		default:
		}

		s.state.Store(int32(Connecting))
		sub, err := s.transport.Subscribe(ctx, s.channel)
		if err != nil {
			s.state.Store(int32(Disconnected))
			s.onSubscriberError()
			if !s.sleepBackoff(ctx, attempt) {
				s.drain()
				return
			}
			attempt++
			continue
		}

		s.state.Store(int32(Subscribed))
		attempt = 0
		disconnected := s.consume(ctx, sub)
		_ = sub.Close()
		if !disconnected {
			// stopCh or ctx fired inside consume; exit cleanly.
			s.drain()
			return
		}
		s.state.Store(int32(Disconnected))
	}
}

// consume reads messages from sub until it closes (disconnect, returns
// true) or shutdown is requested (returns false).
func (s *Subscriber) consume(ctx context.Context, sub Subscription) (disconnected bool) {
	ch := sub.Messages()
	for {
		select {
		case <-s.stopCh:
			return false
		case <-ctx.Done():
			return false
		case msg, ok := <-ch:
			if !ok {
				return true
			}
			s.pending.Add(1)
			s.handle(ctx, msg)
			s.pending.Done()
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, raw BroadcastMessage) {
	m, err := Decode(raw.Payload)
	if err != nil {
		s.onSubscriberError()
		s.log.Warn().Err(err).Str("channel", raw.Channel).Msg("invalidation: decode failed")
		return
	}

	if m.Origin == s.origin && s.origin != "" {
		// Self-echo suppression (§4.6, §8): this process's own broadcast,
		// already applied locally at publish time.
		return
	}

	if s.counters != nil {
		s.counters.AddInvalidationReceived(m.Kind)
	}

	if err := s.apply(ctx, m); err != nil {
		s.onSubscriberError()
		s.log.Warn().Err(err).Str("kind", m.Kind.String()).Msg("invalidation: apply failed")
		return
	}

	if err := s.audit.record(ctx, m); err != nil {
		s.onSubscriberError()
		s.log.Warn().Err(err).Msg("invalidation: audit append failed")
	}
}

func (s *Subscriber) apply(ctx context.Context, m Message) error {
	switch m.Kind {
	case tiercache.KindRemove:
		return s.applier.ApplyRemove(ctx, m.Key)
	case tiercache.KindUpdate:
		var ttl *time.Duration
		if m.TTLMs != nil {
			d := time.Duration(*m.TTLMs) * time.Millisecond
			ttl = &d
		}
		return s.applier.ApplyUpdate(ctx, m.Key, m.Value, ttl)
	case tiercache.KindRemovePattern:
		return s.applier.ApplyRemovePattern(ctx, m.Pattern)
	case tiercache.KindRemoveBulk:
		return s.applier.ApplyRemoveBulk(ctx, m.Keys)
	default:
		return tiercache.NewConfigurationError("invalidation: unknown message kind")
	}
}

func (s *Subscriber) onSubscriberError() {
	if s.counters != nil {
		s.counters.AddSubscriberError()
	}
}

// sleepBackoff waits the exponential-backoff-with-jitter interval for
// attempt, returning false if ctx or shutdown fired first.
func (s *Subscriber) sleepBackoff(ctx context.Context, attempt int) bool {
	d := jitterBackoff(attempt, backoffBase, backoffCap, rand.Float64)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	}
}

// Shutdown requests the subscriber transition to Draining and wait up to
// its configured deadline for pending message application to finish before
// forcing the terminal state (§4.6 state machine, §5 quiescence contract).
func (s *Subscriber) Shutdown() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.doneCh
}

func (s *Subscriber) drain() {
	s.state.Store(int32(Draining))

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.deadline):
		s.log.Warn().Msg("invalidation: shutdown deadline elapsed with messages still in flight")
	}
}
