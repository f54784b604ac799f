package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// Handler serves one pattern. For tenant scoped patterns ctx carries the
// resolved tenant.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// TenantResolver turns the tenant slot of a request into a verified tenant
type TenantResolver interface {
	Resolve(ctx context.Context, raw string) (*tenancy.State, error)
}

// Observer records handled calls and tenant outcomes
type Observer interface {
	ObserveRPC(pattern string, status int)
	ObserveTenant(transport, outcome string)
}

type route struct {
	handler      Handler
	tenantScoped bool
}

// HandleOption configures a route
type HandleOption func(*route)

// WithoutTenant marks a pattern that runs before any tenant exists, such as
// tenant bootstrap or ping
func WithoutTenant() HandleOption {
	return func(r *route) { r.tenantScoped = false }
}

// Server dispatches requests to registered handlers
type Server struct {
	transport Transport
	resolver  TenantResolver
	observer  Observer
	routes    map[string]route
}

// NewServer creates a server. observer may be nil.
func NewServer(transport Transport, resolver TenantResolver, observer Observer) *Server {
	return &Server{
		transport: transport,
		resolver:  resolver,
		observer:  observer,
		routes:    make(map[string]route),
	}
}

// Handle registers h for pattern. Patterns are tenant scoped unless WithoutTenant is given.
func (s *Server) Handle(pattern string, h Handler, opts ...HandleOption) {
	r := route{handler: h, tenantScoped: true}
	for _, opt := range opts {
		opt(&r)
	}
	s.routes[pattern] = r
}

// Patterns lists the registered patterns
func (s *Server) Patterns() []string {
	patterns := make([]string, 0, len(s.routes))
	for p := range s.routes {
		patterns = append(patterns, p)
	}
	return patterns
}

// Serve subscribes to every registered pattern and handles requests until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	patterns := s.Patterns()
	if len(patterns) == 0 {
		return fmt.Errorf("rpc server has no handlers")
	}

	sub, err := s.transport.Subscribe(ctx, patterns...)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", strings.Join(patterns, ","), err)
	}
	defer sub.Close()

	logrus.WithField("patterns", patterns).Info("RPC server listening")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(env Envelope) {
				defer wg.Done()
				s.handleEnvelope(ctx, env)
			}(env)
		}
	}
}

func (s *Server) handleEnvelope(ctx context.Context, env Envelope) {
	var req Request
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		logrus.WithField("channel", env.Channel).WithError(err).Warn("Dropping malformed RPC request")
		return
	}
	if req.Pattern == "" {
		req.Pattern = env.Channel
	}

	resp := s.Dispatch(ctx, req)

	payload, err := json.Marshal(resp)
	if err != nil {
		logrus.WithField("pattern", req.Pattern).WithError(err).Error("Failed to encode RPC response")
		return
	}
	if err := s.transport.Publish(ctx, req.Pattern+ReplySuffix, payload); err != nil {
		logrus.WithField("pattern", req.Pattern).WithError(err).Error("Failed to publish RPC response")
	}
}

// Dispatch runs one request. Tenant resolution happens before the handler and
// a failure there short-circuits it.
func (s *Server) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, IsDisposed: true}

	result, err := s.dispatch(ctx, req)
	status := http.StatusOK
	if err != nil {
		resp.Err = errorBody(err)
		status = resp.Err.Status
		if status >= http.StatusInternalServerError {
			logrus.WithField("pattern", req.Pattern).WithError(err).Error("RPC handler failed")
		}
	} else {
		raw, merr := json.Marshal(result)
		if merr != nil {
			resp.Err = errorBody(utils.Internal("Failed to encode response", merr))
			status = resp.Err.Status
		} else {
			resp.Response = raw
		}
	}

	if s.observer != nil {
		s.observer.ObserveRPC(req.Pattern, status)
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	r, ok := s.routes[req.Pattern]
	if !ok {
		return nil, utils.NotFound("There is no matching message handler defined in the remote service")
	}

	payload, tenantID, err := DecodeArgs(req.Data)
	if err != nil {
		return nil, err
	}

	if r.tenantScoped {
		state, err := s.resolver.Resolve(ctx, tenantID)
		if s.observer != nil {
			s.observer.ObserveTenant("rpc", tenancy.Outcome(err))
		}
		if err != nil {
			return nil, err
		}
		ctx = tenancy.NewContext(ctx, state)
	}

	return r.handler(ctx, payload)
}
