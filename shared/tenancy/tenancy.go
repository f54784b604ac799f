// Package tenancy resolves API keys into tenant schemas and carries the
// resolved tenant on the request context.
//
// A tenant is a PostgreSQL schema named tenant_<id>, where <id> is the API
// key handed out by the tenant bootstrap. Every schema-scoped query takes the
// Schema explicitly; nothing in this package relies on connection state.
package tenancy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// SchemaPrefix marks a normalized tenant identifier
	SchemaPrefix = "tenant_"
	// APIKeyHeader carries the tenant API key on HTTP requests and subscription params
	APIKeyHeader = "x-api-key"
)

// Normalize turns a raw API key into a schema name. Empty stays empty and
// identifiers that already contain the prefix are returned unchanged, so
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if raw == "" || strings.Contains(raw, SchemaPrefix) {
		return raw
	}
	return SchemaPrefix + raw
}

// Schema is a normalized tenant schema name
type Schema string

// SchemaFor returns the schema that belongs to tenant id
func SchemaFor(id uuid.UUID) Schema {
	return Schema(SchemaPrefix + id.String())
}

func (s Schema) String() string { return string(s) }

// IsZero reports whether no tenant is set
func (s Schema) IsZero() bool { return s == "" }

// Table returns the schema-qualified table name, e.g. tenant_x.users.
// gorm splits on the dot and quotes each part.
func (s Schema) Table(name string) string {
	return string(s) + "." + name
}

// TenantID extracts the id part of the schema name
func (s Schema) TenantID() (uuid.UUID, error) {
	raw := strings.TrimPrefix(string(s), SchemaPrefix)
	if raw == string(s) {
		return uuid.Nil, fmt.Errorf("schema %q has no tenant prefix", s)
	}
	return uuid.Parse(raw)
}

// QuoteIdent quotes an identifier for use in DDL. Tenant ids contain dashes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
