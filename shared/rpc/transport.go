package rpc

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Envelope is a message received on a channel
type Envelope struct {
	Channel string
	Payload []byte
}

// Subscription delivers messages for the channels it is subscribed to
type Subscription interface {
	Messages() <-chan Envelope
	Add(ctx context.Context, channels ...string) error
	Close() error
}

// Transport publishes and subscribes to named channels
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// RedisTransport carries messages over Redis pub/sub
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport creates a transport over client
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

// Publish implements Transport
func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

// Subscribe implements Transport. It returns once Redis confirmed the subscription.
func (t *RedisTransport) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := t.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	sub := newRedisSubscription(ps)
	go sub.pump(ps.Channel())
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan Envelope
	done chan struct{}
	once sync.Once
}

func newRedisSubscription(ps *redis.PubSub) *redisSubscription {
	return &redisSubscription{ps: ps, out: make(chan Envelope, 64), done: make(chan struct{})}
}

// pump copies messages to out until in is drained or the subscription is closed
func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- Envelope{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan Envelope { return s.out }

func (s *redisSubscription) Add(ctx context.Context, channels ...string) error {
	return s.ps.Subscribe(ctx, channels...)
}

// Close stops the pump even when nobody reads Messages anymore
func (s *redisSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	if s.ps == nil {
		return nil
	}
	return s.ps.Close()
}
