package invalidation

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPubSubClient is the subset of *redis.Client a RedisTransport needs.
type RedisPubSubClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisTransport implements Transport over Redis Pub/Sub, grounded on
// GrokNexus-QuantatomAI's TieredGridCache.StartInvalidationSubscriber
// (PSubscribe + Publish on a shared *redis.Client).
type RedisTransport struct {
	client RedisPubSubClient
}

// NewRedisTransport builds a Transport backed by client.
func NewRedisTransport(client RedisPubSubClient) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens one subscription attempt. It deliberately does not retry
// internally: the Subscriber state machine (subscriber.go) owns reconnect
// backoff (§4.6: "on disconnect, reconnects with exponential backoff"), so
// this method's job ends the moment a single connect attempt either
// succeeds or fails, and the returned Subscription's Messages channel closes
// the moment the underlying connection drops, surfacing the error via Err
// so the Subscriber can decide when and how to reconnect.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{ps: ps, out: make(chan BroadcastMessage, 64)}
	go sub.pump(ctx)
	return sub, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan BroadcastMessage
	err error
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.out)
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			s.err = err
			return
		}
		s.out <- BroadcastMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Messages() <-chan BroadcastMessage { return s.out }
func (s *redisSubscription) Err() error                        { return s.err }
func (s *redisSubscription) Close() error                      { return s.ps.Close() }
