package tenancy

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Catalog answers whether a tenant schema exists
type Catalog interface {
	SchemaExists(ctx context.Context, schema Schema) (bool, error)
}

const schemaExistsQuery = "SELECT TRUE FROM information_schema.schemata WHERE schema_name = ?"

// GormCatalog reads information_schema through the shared pool. It never writes.
type GormCatalog struct {
	db *gorm.DB
}

// NewGormCatalog creates a catalog over db
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

// SchemaExists implements Catalog
func (c *GormCatalog) SchemaExists(ctx context.Context, schema Schema) (bool, error) {
	rows, err := c.db.WithContext(ctx).Raw(schemaExistsQuery, string(schema)).Rows()
	if err != nil {
		return false, fmt.Errorf("query schemata: %w", err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("read schemata: %w", err)
	}
	return found, nil
}
