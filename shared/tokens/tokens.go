// Package tokens issues and verifies the access and refresh tokens of the auth service.
//
// Access tokens are RS256 so resource services can verify them with the
// public key alone. Refresh tokens are HS256 with a secret only the auth
// service holds.
package tokens

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = utils.Unauthorized("Invalid token")

// AccessClaims identifies the user on resource requests
type AccessClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// RefreshClaims lets a user obtain a new access token. Version must match
// the user's credentials version; TokenID is what logout blacklists.
type RefreshClaims struct {
	UserID  string `json:"id"`
	Version int    `json:"version"`
	TokenID string `json:"tokenId"`
	jwt.RegisteredClaims
}

// Issuer signs tokens. Only the auth service holds one.
type Issuer struct {
	privateKey    *rsa.PrivateKey
	keyID         string
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

// NewIssuer builds an issuer from PEM encoded keys in cfg
func NewIssuer(cfg config.JWTConfig, audience string) (*Issuer, error) {
	if cfg.PrivateKey == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("JWT_PRIVATE_KEY and JWT_REFRESH_SECRET must be set")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewIssuerWithKey(key, cfg, audience), nil
}

// NewIssuerWithKey builds an issuer around an already parsed key
func NewIssuerWithKey(key *rsa.PrivateKey, cfg config.JWTConfig, audience string) *Issuer {
	return &Issuer{
		privateKey:    key,
		keyID:         cfg.KeyID,
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTime,
		refreshTTL:    cfg.RefreshTime,
		issuer:        cfg.Issuer,
		audience:      audience,
		now:           time.Now,
	}
}

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// AccessToken signs a short lived RS256 token for userID
func (i *Issuer) AccessToken(userID uuid.UUID) (string, error) {
	claims := AccessClaims{
		UserID:           userID.String(),
		RegisteredClaims: i.registered(userID.String(), i.accessTTL),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.keyID
	return token.SignedString(i.privateKey)
}

// RefreshToken signs an HS256 refresh token. An empty tokenID starts a new token family.
func (i *Issuer) RefreshToken(userID uuid.UUID, version int, tokenID string) (string, *RefreshClaims, error) {
	if tokenID == "" {
		tokenID = uuid.NewString()
	}
	claims := &RefreshClaims{
		UserID:           userID.String(),
		Version:          version,
		TokenID:          tokenID,
		RegisteredClaims: i.registered(userID.String(), i.refreshTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// VerifyRefresh parses and validates a refresh token
func (i *Issuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.refreshSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || claims.UserID == "" || claims.TokenID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// JWKS returns the key set resource services use to verify access tokens
func (i *Issuer) JWKS() JWKS {
	return NewJWKS(i.keyID, &i.privateKey.PublicKey)
}

// Verifier returns a verifier backed by this issuer's own public key
func (i *Issuer) Verifier() *Verifier {
	v := NewVerifier(StaticKey{Key: &i.privateKey.PublicKey}, i.issuer, i.audience)
	v.now = i.now
	return v
}

// Verifier checks access tokens
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
	now      func() time.Time
}

// NewVerifier creates a verifier over keys
func NewVerifier(keys KeySource, issuer, audience string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, audience: audience, now: time.Now}
}

// NewVerifierFromConfig prefers the auth service JWKS endpoint and falls back to a PEM public key
func NewVerifierFromConfig(cfg config.JWTConfig, audience string) (*Verifier, error) {
	if cfg.JWKSURL != "" {
		return NewVerifier(NewJWKSValidator(cfg.JWKSURL), cfg.Issuer, audience), nil
	}
	if cfg.PublicKey == "" {
		return nil, errors.New("either AUTH_JWKS_URL or JWT_PUBLIC_KEY must be set")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return NewVerifier(StaticKey{Key: key}, cfg.Issuer, audience), nil
}

// VerifyAccess parses and validates an access token
func (v *Verifier) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keys.PublicKey(kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
