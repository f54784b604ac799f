// Package contracts defines the RPC patterns and payloads shared between services.
package contracts

import (
	"github.com/google/uuid"

	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
)

// Tenant service patterns
const (
	LoadTenant   = "load_tenant"
	VerifyTenant = "verify_tenant"
	TenantPing   = "tenant_ping"
)

// Users service patterns
const (
	CreateUser              = "create_user"
	GetUserByID             = "get_user_by_id"
	GetUserByEmail          = "get_user_by_email"
	GetUserByEmailUnchecked = "get_user_by_email_unchecked"
	GetUserByCredentials    = "get_user_by_credentials"
	UpdateUser              = "update_user"
	RemoveUser              = "remove_user"
	CreateBlacklistedToken  = "create_blacklisted_token"
	VerifyBlacklistedToken  = "verify_blacklisted_token"
	CreateUserImage         = "create_user_image"
	UsersPing               = "users_ping"
)

// Services that answer RPC patterns
const (
	TenantService = "tenant"
	UsersService  = "users"
)

var patternServices = map[string]string{
	LoadTenant:              TenantService,
	VerifyTenant:            TenantService,
	TenantPing:              TenantService,
	CreateUser:              UsersService,
	GetUserByID:             UsersService,
	GetUserByEmail:          UsersService,
	GetUserByEmailUnchecked: UsersService,
	GetUserByCredentials:    UsersService,
	UpdateUser:              UsersService,
	RemoveUser:              UsersService,
	CreateBlacklistedToken:  UsersService,
	VerifyBlacklistedToken:  UsersService,
	CreateUserImage:         UsersService,
	UsersPing:               UsersService,
}

// ServiceOf names the service answering pattern. Unknown patterns stand for themselves.
func ServiceOf(pattern string) string {
	if service, ok := patternServices[pattern]; ok {
		return service
	}
	return pattern
}

// TenantCredentials is the load_tenant payload
type TenantCredentials struct {
	Name     string `json:"name" binding:"required,min=5,max=255"`
	Password string `json:"password" binding:"required,min=5,max=255"`
}

// APIKey is returned by tenant bootstrap
type APIKey struct {
	APIKey string `json:"apiKey"`
}

// TenantInfo is returned by verify_tenant
type TenantInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// NewUser is the create_user payload. Password is plain text and hashed by the users service.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserRef identifies a user by id
type UserRef struct {
	ID uuid.UUID `json:"id"`
}

// EmailRef identifies a user by email
type EmailRef struct {
	Email string `json:"email"`
}

// UserUpdate is the update_user payload
type UserUpdate struct {
	ID   uuid.UUID `json:"id"`
	Name *string   `json:"name"`
}

// UserImageRef attaches an uploaded image url to a user
type UserImageRef struct {
	UserID uuid.UUID `json:"userId"`
	URL    string    `json:"url"`
}

// CredentialsQuery is the get_user_by_credentials payload
type CredentialsQuery struct {
	UserID  uuid.UUID `json:"userId"`
	Version int       `json:"version"`
}

// TokenRef identifies a refresh token
type TokenRef struct {
	UserID  uuid.UUID `json:"userId"`
	TokenID string    `json:"tokenId"`
}

// TokenStatus is the reply of verify_blacklisted_token
type TokenStatus struct {
	Blacklisted bool `json:"blacklisted"`
}

// UserRecord is the internal view of a user, including secrets. It never leaves the backend.
type UserRecord struct {
	User              models.UserView `json:"user"`
	PasswordHash      string          `json:"passwordHash"`
	LastPasswordHash  string          `json:"lastPasswordHash"`
	PasswordUpdatedAt int64           `json:"passwordUpdatedAt"`
	Version           int             `json:"version"`
}

// NewUserRecord flattens a user and its credentials
func NewUserRecord(u *models.User, c *models.Credentials) UserRecord {
	rec := UserRecord{User: u.View(), PasswordHash: u.Password}
	if c != nil {
		rec.LastPasswordHash = c.LastPassword
		rec.PasswordUpdatedAt = c.PasswordUpdatedAt
		rec.Version = c.Version
	}
	return rec
}

// Pong is the reply of the ping patterns
type Pong struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}
