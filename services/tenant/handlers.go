package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-multi-tenant-blog/shared/contracts"
	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/rpc"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// tenantLoader logs a tenant in or creates it
type tenantLoader interface {
	Load(ctx context.Context, name, password string) (uuid.UUID, error)
}

// tenantFinder reads the tenant directory
type tenantFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

type tenantHandlers struct {
	loader  tenantLoader
	finder  tenantFinder
	service string
}

func newTenantHandlers(loader tenantLoader, finder tenantFinder, service string) *tenantHandlers {
	return &tenantHandlers{loader: loader, finder: finder, service: service}
}

func (h *tenantHandlers) register(server *rpc.Server) {
	server.Handle(contracts.LoadTenant, h.loadTenant, rpc.WithoutTenant())
	server.Handle(contracts.VerifyTenant, h.verifyTenant)
	server.Handle(contracts.TenantPing, h.ping, rpc.WithoutTenant())
}

// loadTenant runs before the tenant exists, so it is exempt from resolution
func (h *tenantHandlers) loadTenant(ctx context.Context, payload json.RawMessage) (any, error) {
	var creds contracts.TenantCredentials
	if err := rpc.Bind(payload, &creds); err != nil {
		return nil, err
	}

	id, err := h.loader.Load(ctx, creds.Name, creds.Password)
	if err != nil {
		return nil, err
	}
	return contracts.APIKey{APIKey: id.String()}, nil
}

// verifyTenant returns the directory row of the resolved tenant
func (h *tenantHandlers) verifyTenant(ctx context.Context, _ json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := schema.TenantID()
	if err != nil {
		return nil, tenancy.ErrTenantNotExists
	}

	tenant, err := h.finder.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Tenant not found")
		}
		return nil, utils.Internal("Failed to load tenant", err)
	}
	return contracts.TenantInfo{ID: tenant.ID, Name: tenant.Name}, nil
}

func (h *tenantHandlers) ping(context.Context, json.RawMessage) (any, error) {
	return contracts.Pong{Service: h.service, Status: "ok"}, nil
}
