package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// TenantSchemaKey is the gin context key mirroring the resolved schema for logging
const TenantSchemaKey = "tenant_schema"

// TenantResolver turns a raw API key into a verified tenant
type TenantResolver interface {
	Resolve(ctx context.Context, raw string) (*tenancy.State, error)
}

// TenantObserver records resolution outcomes
type TenantObserver interface {
	ObserveTenant(transport, outcome string)
}

// RequireTenant resolves the x-api-key header before any handler runs. The
// verified state goes on the request context; failures abort the request.
func RequireTenant(resolver TenantResolver, observer TenantObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := resolver.Resolve(c.Request.Context(), c.GetHeader(tenancy.APIKeyHeader))
		if observer != nil {
			observer.ObserveTenant("http", tenancy.Outcome(err))
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"path":    c.FullPath(),
				"outcome": tenancy.Outcome(err),
			}).Debug("Tenant resolution rejected request")
			utils.RespondError(c, err)
			return
		}

		c.Request = c.Request.WithContext(tenancy.NewContext(c.Request.Context(), state))
		c.Set(TenantSchemaKey, state.TenantID())
		c.Next()
	}
}
