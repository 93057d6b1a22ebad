package invalidation

import (
	"context"
	"errors"
	"sync"
)

// fakeTransport is an in-process Transport double used by publisher and
// subscriber tests: Publish fans a payload out to every live subscription on
// the same channel, and Subscribe can be made to fail N times before
// succeeding, to exercise the Subscriber's reconnect path.
type fakeTransport struct {
	mu            sync.Mutex
	subs          map[string][]*fakeSubscription
	failSubscribe int // remaining forced Subscribe failures
	published     []fakePublished
}

type fakePublished struct {
	Channel string
	Payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string][]*fakeSubscription)}
}

func (f *fakeTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakePublished{Channel: channel, Payload: payload})
	for _, s := range f.subs[channel] {
		select {
		case s.out <- BroadcastMessage{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubscribe > 0 {
		f.failSubscribe--
		return nil, errors.New("fake subscribe failure")
	}
	s := &fakeSubscription{out: make(chan BroadcastMessage, 16)}
	f.subs[channel] = append(f.subs[channel], s)
	return s, nil
}

// disconnectAll closes every live subscription, simulating a dropped
// connection the Subscriber must reconnect from.
func (f *fakeTransport) disconnectAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ss := range f.subs {
		for _, s := range ss {
			s.closeWithErr(errors.New("fake disconnect"))
		}
	}
	f.subs = make(map[string][]*fakeSubscription)
}

type fakeSubscription struct {
	mu     sync.Mutex
	out    chan BroadcastMessage
	err    error
	closed bool
}

func (s *fakeSubscription) Messages() <-chan BroadcastMessage { return s.out }

func (s *fakeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return nil
}

func (s *fakeSubscription) closeWithErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.err = err
		close(s.out)
	}
}
