package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
)

func TestLocalStorage_Save(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "/api/files/images/")
	require.NoError(t, err)

	url, err := s.Save(context.Background(), "tenant_a/image-1.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/api/files/images/tenant_a/image-1.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "tenant_a", "image-1.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestLocalStorage_KeyCannotEscapeDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(dir, "uploads"), "/img")
	require.NoError(t, err)

	url, err := s.Save(context.Background(), "../../etc/evil.png", strings.NewReader("x"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/img/etc/evil.png", url)
	assert.FileExists(t, filepath.Join(dir, "uploads", "etc", "evil.png"))
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)

	_, err = New(config.StorageConfig{Driver: "s3"})
	assert.Error(t, err, "bucket is required")

	s, err := New(config.StorageConfig{Driver: "local", LocalDir: t.TempDir(), PublicBaseURL: "/x"})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)
}
