package tenancy

import (
	"errors"
	"net/http"

	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// Resolution failures. All of them surface before any domain logic runs.
var (
	ErrNoTenantID         = utils.NewHTTPError(http.StatusBadRequest, "no tenant id provided")
	ErrTenantNotExists    = utils.NewHTTPError(http.StatusBadRequest, "Tenant not exists. Please create new tenant, using api/auth/tenantLogin.")
	ErrTenantVerification = utils.NewHTTPError(http.StatusInternalServerError, "unable to verify tenant")
	// ErrTenantNotResolved means a schema-scoped operation ran without a resolved tenant
	ErrTenantNotResolved = utils.NewHTTPError(http.StatusInternalServerError, "tenant context not resolved")
	// ErrInvalidTenantCredentials is returned by bootstrap on a password mismatch
	ErrInvalidTenantCredentials = utils.NewHTTPError(http.StatusUnauthorized, "Invalid tenant credentials")
)

// Outcome labels a resolution result for metrics and logs
func Outcome(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, ErrNoTenantID):
		return "missing"
	case errors.Is(err, ErrTenantNotExists):
		return "not_found"
	default:
		return "error"
	}
}
