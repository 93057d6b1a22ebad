package invalidation

import (
	"context"
)

// BroadcastMessage is one (channel, bytes) pair received from the broadcast
// channel contract (§6).
type BroadcastMessage struct {
	Channel string
	Payload []byte
}

// Transport is the external broadcast channel collaborator (§6): publish a
// byte string on a named channel, and subscribe to a named channel to
// receive a stream of (channel, bytes) pairs. A Subscription does not
// reconnect by itself: when its connection drops it closes, and the
// Subscriber opens a new one with backoff.
// RedisTransport is the reference implementation; the contract itself is
// backend-agnostic so a different pub/sub system could be substituted.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is a live subscription to a channel.
type Subscription interface {
	// Messages yields received messages until the subscription is closed
	// or the underlying connection drops (in which case the channel is
	// closed and Err reports why).
	Messages() <-chan BroadcastMessage
	// Err returns the error that caused Messages to close, if any.
	Err() error
	Close() error
}
