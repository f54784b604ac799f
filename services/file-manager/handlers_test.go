package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
	"github.com/pavitra93/go-multi-tenant-blog/shared/metrics"
	"github.com/pavitra93/go-multi-tenant-blog/shared/storage"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy/tenancytest"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tokens"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	dir    string
	tenant uuid.UUID
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cfg := &config.Config{
		Service: config.ServiceConfig{Name: "file-manager", ClientURI: "http://localhost:3000"},
		JWT:     config.JWTConfig{Issuer: "AUTH", KeyID: "k1", AccessTime: time.Hour},
	}
	issuer := tokens.NewIssuerWithKey(key, cfg.JWT, cfg.Service.ClientURI)
	token, err := issuer.AccessToken(uuid.New())
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir, "/api/files/images")
	require.NoError(t, err)

	tenant, resolver := tenancytest.NewTenant()
	deps := &fileDeps{
		store:   store,
		maxSize: 1 << 20,
		now:     func() time.Time { return time.UnixMilli(1700000000000) },
	}
	return &fixture{
		router: setupRouter(cfg, deps, issuer.Verifier(), resolver, metrics.NewHTTPMetrics("file-manager-test")),
		dir:    dir,
		tenant: tenant,
		token:  token,
	}
}

func (f *fixture) upload(t *testing.T, filename string, content []byte, withTenant, withToken bool) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if withTenant {
		req.Header.Set("x-api-key", f.tenant.String())
	}
	if withToken {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestUpload_StoresUnderTenantPrefix(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "Cover.PNG", pngHeader, true, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out UploadResponse
	resp := utils.APIResponse{Data: &out}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	prefix := "/api/files/images/tenant_" + f.tenant.String() + "/image-1700000000000-"
	assert.True(t, strings.HasPrefix(out.URL, prefix), out.URL)
	assert.True(t, strings.HasSuffix(out.URL, ".png"), out.URL)

	rel := strings.TrimPrefix(out.URL, "/api/files/images/")
	data, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	get := httptest.NewRecorder()
	f.router.ServeHTTP(get, httptest.NewRequest(http.MethodGet, out.URL, nil))
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, pngHeader, get.Body.Bytes())
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		filename   string
		content    []byte
		withTenant bool
		withToken  bool
		status     int
	}{
		{name: "no tenant", filename: "a.png", content: pngHeader, withToken: true, status: http.StatusBadRequest},
		{name: "no token", filename: "a.png", content: pngHeader, withTenant: true, status: http.StatusUnauthorized},
		{name: "no file", withTenant: true, withToken: true, status: http.StatusBadRequest},
		{name: "wrong extension", filename: "a.txt", content: pngHeader, withTenant: true, withToken: true, status: http.StatusBadRequest},
		{name: "not an image", filename: "a.gif", content: []byte("plain text pretending"), withTenant: true, withToken: true, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.upload(t, tt.filename, tt.content, tt.withTenant, tt.withToken)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
