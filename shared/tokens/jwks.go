package tokens

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewJWKS publishes a single RSA verification key
func NewJWKS(kid string, key *rsa.PublicKey) JWKS {
	return JWKS{Keys: []JWK{{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
}

// KeySource returns the public key that verifies tokens signed with kid
type KeySource interface {
	PublicKey(kid string) (*rsa.PublicKey, error)
}

// StaticKey is a KeySource with one configured key. It accepts any kid.
type StaticKey struct {
	Key *rsa.PublicKey
}

// PublicKey implements KeySource
func (s StaticKey) PublicKey(string) (*rsa.PublicKey, error) {
	return s.Key, nil
}

// JWKSValidator fetches and caches the auth service key set
type JWKSValidator struct {
	jwksURL    string
	httpClient *http.Client

	mutex       sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time
	refreshTTL  time.Duration
	// minRefresh rate limits refreshes triggered by unknown kids
	minRefresh time.Duration
}

// NewJWKSValidator creates a validator for the key set at jwksURL. Keys are
// fetched lazily on first use.
func NewJWKSValidator(jwksURL string) *JWKSValidator {
	return &JWKSValidator{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		keys:       make(map[string]*rsa.PublicKey),
		refreshTTL: 24 * time.Hour,
		minRefresh: 30 * time.Second,
	}
}

// refreshKeys fetches the key set unless it was fetched within interval
func (v *JWKSValidator) refreshKeys(interval time.Duration) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if !v.lastRefresh.IsZero() && time.Since(v.lastRefresh) < interval {
		return nil
	}

	resp, err := v.httpClient.Get(v.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to parse JWKS: %w", err)
	}

	newKeys := make(map[string]*rsa.PublicKey)
	for _, jwk := range jwks.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		pubKey, err := jwkToRSAPublicKey(jwk)
		if err != nil {
			continue
		}
		newKeys[jwk.Kid] = pubKey
	}

	v.keys = newKeys
	v.lastRefresh = time.Now()
	return nil
}

func jwkToRSAPublicKey(jwk JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode N: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode E: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// PublicKey implements KeySource. An unknown kid triggers a rate limited refresh.
func (v *JWKSValidator) PublicKey(kid string) (*rsa.PublicKey, error) {
	if err := v.refreshKeys(v.refreshTTL); err != nil {
		return nil, err
	}

	v.mutex.RLock()
	key, exists := v.keys[kid]
	v.mutex.RUnlock()
	if exists {
		return key, nil
	}

	if err := v.refreshKeys(v.minRefresh); err != nil {
		return nil, fmt.Errorf("failed to refresh keys: %w", err)
	}

	v.mutex.RLock()
	key, exists = v.keys[kid]
	v.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	return key, nil
}
