package file

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("test_key", "test_value"))

	val, ok := store.Get("test_key")
	assert.True(t, ok)
	assert.Equal(t, "test_value", val)
}

func TestConfigStore_GetString(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("string_key", "hello"))

	assert.Equal(t, "hello", store.GetString("string_key", "fallback"))
	assert.Equal(t, "fallback", store.GetString("missing", "fallback"))

	require.NoError(t, store.Set("int_key", 42))
	assert.Equal(t, "fallback", store.GetString("int_key", "fallback"), "type mismatch falls back")
}

func TestConfigStore_GetInt(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("int_key", 42))

	assert.Equal(t, 42, store.GetInt("int_key", 7))
	assert.Equal(t, 7, store.GetInt("missing", 7))
}

func TestConfigStore_GetFloat(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("float_key", 0.75))
	require.NoError(t, store.Set("int_key", 3))

	assert.Equal(t, 0.75, store.GetFloat("float_key", 1.0))
	assert.Equal(t, 3.0, store.GetFloat("int_key", 1.0), "integers widen to float")
	assert.Equal(t, 1.0, store.GetFloat("missing", 1.0))
}

func TestConfigStore_PersistsAcrossReload(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("retrieval_top_k", 6))
	require.NoError(t, store.Set("embedding_model", "text-embedding-3-small"))

	reopened, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	// TOML round-trips integers as int64; GetInt absorbs that.
	assert.Equal(t, 6, reopened.GetInt("retrieval_top_k", 0))
	assert.Equal(t, "text-embedding-3-small", reopened.GetString("embedding_model", ""))
}
