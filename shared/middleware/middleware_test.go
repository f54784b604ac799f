package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tokens"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type prefixCatalog struct{}

// every schema exists except tenant_missing
func (prefixCatalog) SchemaExists(_ context.Context, s tenancy.Schema) (bool, error) {
	return s != "tenant_missing", nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveTenant(_ string, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func newTenantRouter(observer TenantObserver, handlerHits *int) *gin.Engine {
	r := gin.New()
	r.Use(RequireTenant(tenancy.NewResolver(prefixCatalog{}, nil), observer))
	r.GET("/whoami", func(c *gin.Context) {
		if handlerHits != nil {
			*handlerHits++
		}
		schema, err := tenancy.SchemaFromContext(c.Request.Context())
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.String(http.StatusOK, schema.String())
	})
	return r
}

func TestRequireTenant(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		wantStatus int
		wantBody   string
		wantHits   int
	}{
		{"missing key never reaches the handler", "", http.StatusBadRequest, "no tenant id provided", 0},
		{"unknown tenant", "missing", http.StatusBadRequest, "Tenant not exists", 0},
		{"raw key is normalized", "abc", http.StatusOK, "tenant_abc", 1},
		{"normalized key passes through", "tenant_abc", http.StatusOK, "tenant_abc", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := 0
			observer := &countingObserver{outcomes: map[string]int{}}
			r := newTenantRouter(observer, &hits)

			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.apiKey != "" {
				req.Header.Set(tenancy.APIKeyHeader, tt.apiKey)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.Equal(t, tt.wantHits, hits)
			assert.Equal(t, 1, len(observer.outcomes))
		})
	}
}

func TestRequireTenant_ConcurrentRequests(t *testing.T) {
	r := newTenantRouter(nil, nil)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			req.Header.Set(tenancy.APIKeyHeader, fmt.Sprintf("t%d", i))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if want := fmt.Sprintf("tenant_t%d", i); w.Body.String() != want {
				errs <- fmt.Sprintf("request %d got %q want %q", i, w.Body.String(), want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func newIssuer(t *testing.T) *tokens.Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return tokens.NewIssuerWithKey(key, config.JWTConfig{
		Issuer: "AUTH", KeyID: "k1", AccessTime: time.Minute, RefreshTime: time.Hour, RefreshSecret: "s",
	}, "client")
}

func TestAuthMiddleware(t *testing.T) {
	issuer := newIssuer(t)
	am := NewAuthMiddleware(issuer.Verifier())

	r := gin.New()
	r.GET("/private", am.RequireAuth(), func(c *gin.Context) {
		id, ok := GetUserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.String())
	})
	r.GET("/public", am.OptionalAuth(), func(c *gin.Context) {
		_, ok := GetUserID(c)
		c.String(http.StatusOK, fmt.Sprint(ok))
	})

	userID := uuid.New()
	token, err := issuer.AccessToken(userID)
	require.NoError(t, err)

	do := func(path, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("/private", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())

	w = do("/private", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do("/private", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Invalid token", body.Error)

	assert.Equal(t, "true", do("/public", token).Body.String())
	assert.Equal(t, "false", do("/public", "Bearer nope").Body.String())
	assert.Equal(t, "false", do("/public", "").Body.String())
}

func TestRequestIDAndCORS(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), CORS([]string{"http://app.example"}), Logger("test"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "http://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "x-api-key"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("X-Request-ID", "given")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "given", w.Header().Get("X-Request-ID"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
