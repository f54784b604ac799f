package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
	"github.com/pavitra93/go-multi-tenant-blog/shared/contracts"
	"github.com/pavitra93/go-multi-tenant-blog/shared/middleware"
	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tokens"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

var errInvalidCredentials = utils.Unauthorized("Invalid credentials")

// rpcCaller is the subset of rpc.Client used by the handlers
type rpcCaller interface {
	Send(ctx context.Context, pattern string, payload any, out any) error
	SendAs(ctx context.Context, pattern string, payload any, tenantID string, out any) error
}

// tokenBlacklist revokes refresh tokens until they expire
type tokenBlacklist interface {
	Blacklist(ctx context.Context, userID, tokenID string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, userID, tokenID string) (bool, error)
}

// redisBlacklist keeps revoked tokens in the shared Redis
type redisBlacklist struct{}

func (redisBlacklist) Blacklist(ctx context.Context, userID, tokenID string, expiresAt time.Time) error {
	return utils.BlacklistToken(ctx, userID, tokenID, expiresAt)
}

func (redisBlacklist) IsBlacklisted(ctx context.Context, userID, tokenID string) (bool, error) {
	return utils.IsTokenBlacklisted(ctx, userID, tokenID)
}

// authDeps is everything the auth handlers share
type authDeps struct {
	rpc       rpcCaller
	issuer    *tokens.Issuer
	blacklist tokenBlacklist
	jwt       config.JWTConfig
	secure    bool
	now       func() time.Time
}

// SignupRequest represents the signup request
type SignupRequest struct {
	Name            string `json:"name" binding:"required,min=1,max=100"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8,max=64"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// LoginRequest represents the login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the refresh token when cookies are not available
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ImageRequest attaches an uploaded image to the current user
type ImageRequest struct {
	URL string `json:"url" binding:"required"`
}

// AuthResponse is returned by signup and login
type AuthResponse struct {
	User        models.UserView `json:"user"`
	AccessToken string          `json:"accessToken"`
	// RefreshToken is also set as an http-only cookie
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

// handleSignup creates a user in the resolved tenant and logs them in
func handleSignup(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if req.Password != req.ConfirmPassword {
			utils.BadRequestResponse(c, "Passwords do not match")
			return
		}
		if !utils.IsStrongPassword(req.Password) {
			utils.BadRequestResponse(c, "Password must contain an upper case letter, a lower case letter and a number or special character")
			return
		}
		if !utils.IsValidName(req.Name) {
			utils.BadRequestResponse(c, "Name contains invalid characters")
			return
		}

		var user models.UserView
		newUser := contracts.NewUser{Name: req.Name, Email: req.Email, Password: req.Password}
		if err := d.rpc.Send(c.Request.Context(), contracts.CreateUser, newUser, &user); err != nil {
			utils.RespondError(c, err)
			return
		}

		resp, err := d.authenticate(c, user, 0)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "User created successfully", resp)
	}
}

// handleLogin checks the password, falling back to the previous one to tell
// the user when it was changed
func handleLogin(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		var rec contracts.UserRecord
		if err := d.rpc.Send(c.Request.Context(), contracts.GetUserByEmail, contracts.EmailRef{Email: req.Email}, &rec); err != nil {
			utils.RespondError(c, err)
			return
		}

		ok, err := utils.VerifyPassword(req.Password, rec.PasswordHash)
		if err != nil {
			utils.RespondError(c, utils.Internal("Failed to verify password", err))
			return
		}
		if !ok {
			utils.RespondError(c, d.checkLastPassword(req.Password, rec))
			return
		}

		resp, err := d.authenticate(c, rec.User, rec.Version)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Login successful", resp)
	}
}

// checkLastPassword builds the error for a failed login
func (d *authDeps) checkLastPassword(password string, rec contracts.UserRecord) error {
	if rec.LastPasswordHash == "" || rec.LastPasswordHash == rec.PasswordHash {
		return errInvalidCredentials
	}
	ok, err := utils.VerifyPassword(password, rec.LastPasswordHash)
	if err != nil || !ok {
		return errInvalidCredentials
	}
	return utils.Unauthorized(passwordChangedMessage(d.now(), time.Unix(rec.PasswordUpdatedAt, 0)))
}

// passwordChangedMessage reports the age of a password change in the largest whole unit
func passwordChangedMessage(now, changedAt time.Time) string {
	if months := monthsBetween(changedAt, now); months > 0 {
		return fmt.Sprintf("You changed your password %d %s ago", months, plural(months, "month"))
	}
	elapsed := now.Sub(changedAt)
	if days := int(elapsed / (24 * time.Hour)); days > 0 {
		return fmt.Sprintf("You changed your password %d %s ago", days, plural(days, "day"))
	}
	if hours := int(elapsed / time.Hour); hours > 0 {
		return fmt.Sprintf("You changed your password %d %s ago", hours, plural(hours, "hour"))
	}
	return "You changed your password recently"
}

func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if months > 0 && to.AddDate(0, -months, 0).Before(from) {
		months--
	}
	return months
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

// authenticate issues both tokens and sets the refresh cookie
func (d *authDeps) authenticate(c *gin.Context, user models.UserView, version int) (*AuthResponse, error) {
	access, err := d.issuer.AccessToken(user.ID)
	if err != nil {
		return nil, utils.Internal("Failed to sign access token", err)
	}
	refresh, _, err := d.issuer.RefreshToken(user.ID, version, "")
	if err != nil {
		return nil, utils.Internal("Failed to sign refresh token", err)
	}
	d.setRefreshCookie(c, refresh, int(d.jwt.RefreshTime.Seconds()))

	return &AuthResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(d.jwt.AccessTime.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (d *authDeps) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(d.jwt.RefreshCookie, value, maxAge, "/api/auth", "", d.secure, true)
}

// refreshClaims reads the refresh token from the cookie or the body and checks it was not revoked
func (d *authDeps) refreshClaims(c *gin.Context) (*tokens.RefreshClaims, error) {
	token, _ := c.Cookie(d.jwt.RefreshCookie)
	if token == "" {
		var req RefreshRequest
		_ = c.ShouldBindJSON(&req)
		token = req.RefreshToken
	}
	if token == "" {
		return nil, utils.Unauthorized("Refresh token required")
	}

	claims, err := d.issuer.VerifyRefresh(token)
	if err != nil {
		return nil, err
	}

	revoked, err := d.blacklist.IsBlacklisted(c.Request.Context(), claims.UserID, claims.TokenID)
	if err != nil {
		logrus.WithError(err).Warn("Blacklist cache unavailable, checking tenant store")
		var status contracts.TokenStatus
		ref, refErr := tokenRef(claims)
		if refErr != nil {
			return nil, refErr
		}
		if err := d.rpc.Send(c.Request.Context(), contracts.VerifyBlacklistedToken, ref, &status); err != nil {
			return nil, err
		}
		revoked = status.Blacklisted
	}
	if revoked {
		return nil, tokens.ErrInvalidToken
	}
	return claims, nil
}

func tokenRef(claims *tokens.RefreshClaims) (contracts.TokenRef, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return contracts.TokenRef{}, tokens.ErrInvalidToken
	}
	return contracts.TokenRef{UserID: userID, TokenID: claims.TokenID}, nil
}

// handleRefreshAccess issues a new access token for a valid refresh token
func handleRefreshAccess(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := d.refreshClaims(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ref, err := tokenRef(claims)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var rec contracts.UserRecord
		query := contracts.CredentialsQuery{UserID: ref.UserID, Version: claims.Version}
		if err := d.rpc.Send(c.Request.Context(), contracts.GetUserByCredentials, query, &rec); err != nil {
			utils.RespondError(c, err)
			return
		}

		access, err := d.issuer.AccessToken(rec.User.ID)
		if err != nil {
			utils.RespondError(c, utils.Internal("Failed to sign access token", err))
			return
		}
		utils.OKResponse(c, "Access token refreshed", gin.H{
			"accessToken": access,
			"expiresIn":   int64(d.jwt.AccessTime.Seconds()),
			"tokenType":   "Bearer",
		})
	}
}

// handleLogout revokes the refresh token in Redis and in the tenant schema
func handleLogout(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := d.refreshClaims(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ref, err := tokenRef(claims)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var expiresAt time.Time
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if err := d.blacklist.Blacklist(c.Request.Context(), claims.UserID, claims.TokenID, expiresAt); err != nil {
			logrus.WithError(err).Warn("Failed to cache revoked token")
		}
		if err := d.rpc.Send(c.Request.Context(), contracts.CreateBlacklistedToken, ref, nil); err != nil {
			utils.RespondError(c, err)
			return
		}

		d.setRefreshCookie(c, "", -1)
		utils.OKResponse(c, "Logged out successfully", nil)
	}
}

// handleMe returns the authenticated user
func handleMe(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			utils.RespondError(c, tokens.ErrInvalidToken)
			return
		}

		var user models.UserView
		if err := d.rpc.Send(c.Request.Context(), contracts.GetUserByID, contracts.UserRef{ID: userID}, &user); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "User retrieved successfully", user)
	}
}

// handleAttachImage records an avatar uploaded through the file manager
func handleAttachImage(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			utils.RespondError(c, tokens.ErrInvalidToken)
			return
		}
		var req ImageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Image url is required")
			return
		}

		var image models.UserImage
		ref := contracts.UserImageRef{UserID: userID, URL: req.URL}
		if err := d.rpc.Send(c.Request.Context(), contracts.CreateUserImage, ref, &image); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Image attached", image)
	}
}

// handleInitTenant confirms the x-api-key belongs to a tenant
func handleInitTenant(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var info contracts.TenantInfo
		if err := d.rpc.Send(c.Request.Context(), contracts.VerifyTenant, nil, &info); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Tenant verified", info)
	}
}

// handleTenantLogin logs a tenant in, creating its schema on first use
func handleTenantLogin(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contracts.TenantCredentials
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Tenant name and password must be between 5 and 255 characters")
			return
		}

		var key contracts.APIKey
		if err := d.rpc.SendAs(c.Request.Context(), contracts.LoadTenant, req, "", &key); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Tenant loaded", key)
	}
}

// handlePing reports the auth service and the RPC services behind it
func handlePing(d *authDeps, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		deps := gin.H{}
		for name, pattern := range map[string]string{"tenant": contracts.TenantPing, "users": contracts.UsersPing} {
			var pong contracts.Pong
			if err := d.rpc.SendAs(c.Request.Context(), pattern, nil, "", &pong); err != nil {
				deps[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = pong.Status
		}

		data := gin.H{"service": service, "dependencies": deps}
		if status != http.StatusOK {
			utils.ServiceUnavailableResponse(c, "Some dependencies are unavailable", data)
			return
		}
		utils.OKResponse(c, "pong", data)
	}
}

// handleJWKS publishes the access token verification key
func handleJWKS(d *authDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, d.issuer.JWKS())
	}
}
