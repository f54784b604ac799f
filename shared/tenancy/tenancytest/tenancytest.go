// Package tenancytest provides in-memory tenant catalogs for tests.
package tenancytest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
)

// Catalog is an in-memory tenancy.Catalog
type Catalog struct {
	mu      sync.RWMutex
	schemas map[tenancy.Schema]bool
	Err     error
}

// NewCatalog creates a catalog containing schemas
func NewCatalog(schemas ...tenancy.Schema) *Catalog {
	c := &Catalog{schemas: make(map[tenancy.Schema]bool)}
	for _, s := range schemas {
		c.schemas[s] = true
	}
	return c
}

// Add registers a schema
func (c *Catalog) Add(schema tenancy.Schema) {
	c.mu.Lock()
	c.schemas[schema] = true
	c.mu.Unlock()
}

func (c *Catalog) SchemaExists(_ context.Context, schema tenancy.Schema) (bool, error) {
	if c.Err != nil {
		return false, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemas[schema], nil
}

// NewTenant returns a fresh tenant id and a resolver that knows it
func NewTenant() (uuid.UUID, *tenancy.Resolver) {
	id := uuid.New()
	return id, tenancy.NewResolver(NewCatalog(tenancy.SchemaFor(id)), nil)
}

// Context returns ctx carrying a resolved state for schema
func Context(ctx context.Context, schema tenancy.Schema) context.Context {
	state, err := tenancy.NewResolver(NewCatalog(schema), nil).Resolve(ctx, string(schema))
	if err != nil {
		panic(err)
	}
	return tenancy.NewContext(ctx, state)
}
