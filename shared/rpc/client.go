package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// ErrTimeout is returned when no reply arrived in time
var ErrTimeout = utils.NewHTTPError(http.StatusGatewayTimeout, "Remote service did not reply in time")

// remoteError marks errors returned by a handler so they do not trip the breaker
type remoteError struct{ err error }

func (e *remoteError) Error() string { return e.err.Error() }
func (e *remoteError) Unwrap() error { return e.err }

// Client sends requests and waits for replies
type Client struct {
	transport Transport
	timeout   time.Duration
	serviceOf func(pattern string) string

	mu        sync.Mutex
	breakers  map[string]*utils.CircuitBreaker
	sub       Subscription
	listening map[string]bool
	pending   map[string]chan Response
}

// Option configures a Client
type Option func(*Client)

// WithServiceOf groups patterns by the service answering them. Each service
// gets its own breaker; without it every pattern has a breaker of its own.
func WithServiceOf(fn func(pattern string) string) Option {
	return func(c *Client) { c.serviceOf = fn }
}

// NewClient creates a client. Replies are awaited for at most timeout.
func NewClient(transport Transport, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		timeout:   timeout,
		serviceOf: func(pattern string) string { return pattern },
		breakers:  make(map[string]*utils.CircuitBreaker),
		listening: make(map[string]bool),
		pending:   make(map[string]chan Response),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// breakerFor returns the breaker guarding the service behind pattern.
// Handler errors are answers, not outages, and never trip it.
func (c *Client) breakerFor(pattern string) *utils.CircuitBreaker {
	service := c.serviceOf(pattern)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[service]; ok {
		return cb
	}
	cb := utils.NewCircuitBreaker("rpc:"+service, 5, 30*time.Second).CountOnly(func(err error) bool {
		var re *remoteError
		return !errors.As(err, &re)
	})
	c.breakers[service] = cb
	return cb
}

// Send calls pattern with payload and decodes the reply into out (which may be nil).
// The tenant on ctx, if any, is attached as the second argument.
func (c *Client) Send(ctx context.Context, pattern string, payload any, out any) error {
	var tenantID string
	if state, ok := tenancy.FromContext(ctx); ok {
		tenantID = state.TenantID()
	}
	return c.SendAs(ctx, pattern, payload, tenantID, out)
}

// SendAs is Send with an explicit tenant id
func (c *Client) SendAs(ctx context.Context, pattern string, payload any, tenantID string, out any) error {
	err := c.breakerFor(pattern).Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, pattern, payload, tenantID, out)
	})
	var re *remoteError
	if errors.As(err, &re) {
		return re.err
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, pattern string, payload any, tenantID string, out any) error {
	data, err := EncodeArgs(payload, tenantID)
	if err != nil {
		return utils.Internal("Failed to encode RPC payload", err)
	}
	req := Request{ID: uuid.NewString(), Pattern: pattern, Data: data}
	body, err := json.Marshal(req)
	if err != nil {
		return utils.Internal("Failed to encode RPC request", err)
	}

	replies := make(chan Response, 1)
	if err := c.register(ctx, pattern, req.ID, replies); err != nil {
		return err
	}
	defer c.unregister(req.ID)

	if err := c.transport.Publish(ctx, pattern, body); err != nil {
		return fmt.Errorf("publish %s: %w", pattern, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	case resp := <-replies:
		if resp.Err != nil {
			return &remoteError{err: resp.Err.Error()}
		}
		if out == nil || len(resp.Response) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Response, out); err != nil {
			return &remoteError{err: utils.Internal("Failed to decode RPC response", err)}
		}
		return nil
	}
}

// register subscribes to the reply channel of pattern on first use
func (c *Client) register(ctx context.Context, pattern, id string, replies chan Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := pattern + ReplySuffix
	if c.sub == nil {
		sub, err := c.transport.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		c.sub = sub
		c.listening[channel] = true
		go c.listen(sub)
	} else if !c.listening[channel] {
		if err := c.sub.Add(ctx, channel); err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		c.listening[channel] = true
	}

	c.pending[id] = replies
	return nil
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) listen(sub Subscription) {
	for env := range sub.Messages() {
		var resp Response
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			logrus.WithField("channel", env.Channel).WithError(err).Warn("Dropping malformed RPC reply")
			continue
		}

		c.mu.Lock()
		replies, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if ok {
			// buffered with room for exactly one reply
			select {
			case replies <- resp:
			default:
			}
		}
	}
}

// Close stops listening for replies
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.sub = nil
	c.listening = make(map[string]bool)
	return err
}
