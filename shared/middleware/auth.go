package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/go-multi-tenant-blog/shared/tokens"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// UserIDKey is the gin context key holding the authenticated user id
const UserIDKey = "user_id"

// AccessVerifier validates access tokens
type AccessVerifier interface {
	VerifyAccess(token string) (*tokens.AccessClaims, error)
}

// AuthMiddleware handles JWT token validation
type AuthMiddleware struct {
	verifier AccessVerifier
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier AccessVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth rejects requests without a valid access token
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ExtractBearer(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondError(c, utils.Unauthorized("Authorization token required"))
			return
		}

		claims, err := am.verifier.VerifyAccess(tokenString)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// OptionalAuth identifies the user when a valid token is present and lets anonymous requests through
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := ExtractBearer(c.GetHeader("Authorization")); tokenString != "" {
			if claims, err := am.verifier.VerifyAccess(tokenString); err == nil {
				c.Set(UserIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

// ExtractBearer strips an optional "Bearer " prefix
func ExtractBearer(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// GetUserID returns the authenticated user id, if any
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(UserIDKey))
	return id, err == nil
}
