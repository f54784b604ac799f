// Package repository reads and writes tenant entities. Every method takes the
// tenant schema explicitly and refuses to run without one.
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
)

// Repository wraps the shared pool or a transaction on it
type Repository struct {
	db *gorm.DB
}

// New creates a repository over db
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn on a repository bound to one database transaction
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// table scopes a query to schema.name
func (r *Repository) table(ctx context.Context, schema tenancy.Schema, name string) (*gorm.DB, error) {
	if schema.IsZero() {
		return nil, tenancy.ErrTenantNotResolved
	}
	return r.db.WithContext(ctx).Table(schema.Table(name)), nil
}

// aliased scopes a query to schema.name under alias, for hand written selects
func (r *Repository) aliased(ctx context.Context, schema tenancy.Schema, name, alias string) (*gorm.DB, error) {
	if schema.IsZero() {
		return nil, tenancy.ErrTenantNotResolved
	}
	return r.db.WithContext(ctx).Table(qualified(schema, name) + " AS " + alias), nil
}

func qualified(schema tenancy.Schema, name string) string {
	return tenancy.QuoteIdent(string(schema)) + "." + name
}

// affected turns an update or delete that matched nothing into ErrRecordNotFound
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
