package tenancy

import (
	"context"
)

// State is the tenant resolved for one request. It is created only after the
// schema was verified and never changes afterwards.
type State struct {
	schema Schema
}

// Schema returns the verified schema
func (s *State) Schema() Schema { return s.schema }

// TenantID returns the normalized identifier, e.g. tenant_<uuid>
func (s *State) TenantID() string { return string(s.schema) }

type stateKey struct{}

// NewContext returns a copy of ctx carrying state
func NewContext(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, stateKey{}, state)
}

// FromContext returns the tenant resolved for this request, if any
func FromContext(ctx context.Context) (*State, bool) {
	state, ok := ctx.Value(stateKey{}).(*State)
	return state, ok && state != nil
}

// SchemaFromContext fails fast when no tenant was resolved
func SchemaFromContext(ctx context.Context) (Schema, error) {
	state, ok := FromContext(ctx)
	if !ok {
		return "", ErrTenantNotResolved
	}
	return state.schema, nil
}
