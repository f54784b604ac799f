package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ExistenceCache remembers schemas that were verified recently.
// Only positive answers are cached so a new tenant is visible immediately.
type ExistenceCache interface {
	Known(ctx context.Context, schema Schema) bool
	Remember(ctx context.Context, schema Schema)
}

// Resolver turns a raw tenant identifier into a verified State
type Resolver struct {
	catalog Catalog
	cache   ExistenceCache
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(catalog Catalog, cache ExistenceCache) *Resolver {
	return &Resolver{catalog: catalog, cache: cache}
}

// Resolve validates raw, normalizes it and checks that the schema exists.
// The returned state is only non-nil when err is nil.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*State, error) {
	if raw == "" {
		return nil, ErrNoTenantID
	}
	schema := Schema(Normalize(raw))

	if r.cache != nil && r.cache.Known(ctx, schema) {
		return &State{schema: schema}, nil
	}

	exists, err := r.catalog.SchemaExists(ctx, schema)
	if err != nil {
		logrus.WithField("schema", schema).WithError(err).Error("Tenant verification failed")
		return nil, fmt.Errorf("%w: %v", ErrTenantVerification, err)
	}
	if !exists {
		return nil, ErrTenantNotExists
	}

	if r.cache != nil {
		r.cache.Remember(ctx, schema)
	}
	return &State{schema: schema}, nil
}

// RedisExistenceCache stores verified schemas in Redis with a TTL
type RedisExistenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisExistenceCache returns nil when client is nil so callers can pass it straight to NewResolver
func NewRedisExistenceCache(client *redis.Client, ttl time.Duration) ExistenceCache {
	if client == nil {
		return nil
	}
	return &RedisExistenceCache{client: client, ttl: ttl}
}

func existenceKey(schema Schema) string {
	return "tenant:exists:" + string(schema)
}

// Known implements ExistenceCache. Cache errors count as a miss.
func (c *RedisExistenceCache) Known(ctx context.Context, schema Schema) bool {
	n, err := c.client.Exists(ctx, existenceKey(schema)).Result()
	return err == nil && n > 0
}

// Remember implements ExistenceCache
func (c *RedisExistenceCache) Remember(ctx context.Context, schema Schema) {
	if err := c.client.Set(ctx, existenceKey(schema), "1", c.ttl).Err(); err != nil {
		logrus.WithField("schema", schema).WithError(err).Warn("Failed to cache tenant")
	}
}
