package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

// exerciseKeyValueStore runs the behaviour every backend must share.
func exerciseKeyValueStore(t *testing.T, kv schemas.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.GetValue(ctx, schemas.KeyCookies)
	require.NoError(t, err)
	assert.False(t, ok, "a fresh store has no cookies")

	require.NoError(t, kv.SetValue(ctx, schemas.KeyCookies, []byte(`[]`), schemas.ContentTypeJSON))
	require.NoError(t, kv.SetValue(ctx, schemas.KeyCookies, []byte(`[{"name":"a"}]`), schemas.ContentTypeJSON))

	value, ok, err := kv.GetValue(ctx, schemas.KeyCookies)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"name":"a"}]`, string(value), "the last write wins")

	png := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	require.NoError(t, kv.SetValue(ctx, schemas.KeyLoginShot, png, schemas.ContentTypePNG))
	value, ok, err = kv.GetValue(ctx, schemas.KeyLoginShot)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, png, value, "binary payloads round trip unchanged")

	assert.Error(t, kv.SetValue(ctx, "nested/key", []byte("x"), "text/plain"))
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir, "acct-1", zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	exerciseKeyValueStore(t, s)

	ct, err := s.ContentType(schemas.KeyLoginShot)
	require.NoError(t, err)
	assert.Equal(t, schemas.ContentTypePNG, ct)

	_, err = os.Stat(filepath.Join(dir, "acct-1", schemas.KeyCookies))
	assert.NoError(t, err, "records are plain files under the namespace dir")

	// A second store on the same directory sees the same data.
	reopened, err := NewFile(dir, "acct-1", zap.NewNop())
	require.NoError(t, err)
	value, ok, err := reopened.GetValue(context.Background(), schemas.KeyCookies)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"name":"a"}]`, string(value))

	// Namespaces are isolated.
	other, err := NewFile(dir, "acct-2", zap.NewNop())
	require.NoError(t, err)
	_, ok, err = other.GetValue(context.Background(), schemas.KeyCookies)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreRejectsManifestKey(t *testing.T) {
	s, err := NewFile(t.TempDir(), "acct-1", zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, s.SetValue(context.Background(), manifestName, []byte("{}"), schemas.ContentTypeJSON))
}

func TestFileStoreCancelledContext(t *testing.T) {
	s, err := NewFile(t.TempDir(), "acct-1", zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SetValue(ctx, schemas.KeyRunSummary, []byte("{}"), schemas.ContentTypeJSON), context.Canceled)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relist.db")
	s, err := NewSQLite(context.Background(), path, "acct-1", zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	exerciseKeyValueStore(t, s)

	ct, err := s.ContentType(context.Background(), schemas.KeyCookies)
	require.NoError(t, err)
	assert.Equal(t, schemas.ContentTypeJSON, ct)
}

func TestSQLiteStoreNamespaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relist.db")
	ctx := context.Background()

	a, err := NewSQLite(ctx, path, "acct-a", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.SetValue(ctx, schemas.KeyRunSummary, []byte(`{"status":"ok"}`), schemas.ContentTypeJSON))
	require.NoError(t, a.Close())

	b, err := NewSQLite(ctx, path, "acct-b", zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	_, ok, err := b.GetValue(ctx, schemas.KeyRunSummary)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		kv, err := Open(ctx, config.StoreConfig{Backend: config.StoreBackendFile, Dir: t.TempDir(), Namespace: "n"}, zap.NewNop())
		require.NoError(t, err)
		defer kv.Close()
		assert.IsType(t, &FileStore{}, kv)
	})

	t.Run("sqlite", func(t *testing.T) {
		kv, err := Open(ctx, config.StoreConfig{Backend: config.StoreBackendSQLite, Path: ":memory:", Namespace: "n"}, zap.NewNop())
		require.NoError(t, err)
		defer kv.Close()
		assert.IsType(t, &SQLiteStore{}, kv)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(ctx, config.StoreConfig{Backend: "redis"}, zap.NewNop())
		assert.Error(t, err)
	})
}
