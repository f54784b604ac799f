package models

import (
	"time"

	"github.com/google/uuid"
)

// Provisioning stages stored on the tenant row
const (
	TenantStageRowCreated = "ROW_CREATED"
	TenantStageReady      = "READY"
)

// Tenant is a row of the public tenant directory. Its id is the API key.
type Tenant struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"not null"`
	Stage     string    `json:"stage" gorm:"not null;default:ROW_CREATED"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "public.tenants"
}

// IsReady reports whether the schema and all tables were created
func (t *Tenant) IsReady() bool {
	return t.Stage == TenantStageReady
}
