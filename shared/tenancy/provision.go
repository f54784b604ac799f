package tenancy

import (
	"context"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// Stage is how far tenant provisioning got
type Stage int

const (
	StageUnknown Stage = iota
	StageRowCreated
	StageSchemaCreated
	StageTablesSynced
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageRowCreated:
		return "ROW_CREATED"
	case StageSchemaCreated:
		return "SCHEMA_CREATED"
	case StageTablesSynced:
		return "TABLES_SYNCED"
	case StageReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// ProvisionError reports the last stage reached before provisioning failed
type ProvisionError struct {
	Schema Schema
	Stage  Stage
	Err    error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision %s: stopped after %s: %v", e.Schema, e.Stage, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// StatusCode maps provisioning failures to 500
func (e *ProvisionError) StatusCode() int { return http.StatusInternalServerError }

// PublicMessage names the stage without leaking database details
func (e *ProvisionError) PublicMessage() string {
	return "Tenant provisioning failed after stage " + e.Stage.String()
}

// Provisioner creates the schema and tables of a tenant. Both steps must be idempotent.
type Provisioner interface {
	CreateSchema(ctx context.Context, schema Schema) error
	SyncTables(ctx context.Context, schema Schema) error
}

// SQLProvisioner runs DDL on the shared pool. DDL is not wrapped in a
// transaction; every statement uses IF NOT EXISTS so a retry can resume.
type SQLProvisioner struct {
	db *gorm.DB
}

// NewSQLProvisioner creates a provisioner over db
func NewSQLProvisioner(db *gorm.DB) *SQLProvisioner {
	return &SQLProvisioner{db: db}
}

// CreateSchema implements Provisioner
func (p *SQLProvisioner) CreateSchema(ctx context.Context, schema Schema) error {
	if schema.IsZero() {
		return ErrTenantNotResolved
	}
	return p.db.WithContext(ctx).Exec("CREATE SCHEMA IF NOT EXISTS " + QuoteIdent(string(schema))).Error
}

// SyncTables implements Provisioner
func (p *SQLProvisioner) SyncTables(ctx context.Context, schema Schema) error {
	if schema.IsZero() {
		return ErrTenantNotResolved
	}
	db := p.db.WithContext(ctx)
	for _, stmt := range TableDDL(schema) {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
