package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJoinPath(t *testing.T) {
	assert.Equal(t, "/ws", NormalizeJoinPath(""))
	assert.Equal(t, "/socket", NormalizeJoinPath("socket"))
	assert.Equal(t, "/ws", NormalizeJoinPath("/ws"))
}

func TestParseSize(t *testing.T) {
	size, err := ParseSize("16GiB")
	require.NoError(t, err)
	assert.Equal(t, int64(16<<30), size)

	size, err = ParseSize("512 MB")
	require.NoError(t, err)
	assert.Equal(t, int64(512_000_000), size)

	size, err = ParseSize("1024")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), size)

	_, err = ParseSize("lots")
	assert.Error(t, err)
	_, err = ParseSize("0")
	assert.Error(t, err)
}

func TestParseStore(t *testing.T) {
	store, err := ParseStore("")
	require.NoError(t, err)
	assert.Equal(t, StoreJSON, store)

	store, err = ParseStore(" SQLite ")
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, store)

	_, err = ParseStore("redis")
	assert.Error(t, err)
}

func TestDefaultDBPath(t *testing.T) {
	t.Setenv("DROPFLOW_DB_PATH", "")
	assert.Equal(t, filepath.Join("state", "dropflow.db"), DefaultDBPath("state"))
	assert.Equal(t, filepath.Join(DefaultDataDir, "dropflow.db"), DefaultDBPath(""))

	t.Setenv("DROPFLOW_DB_PATH", "/tmp/custom.db")
	assert.Equal(t, "/tmp/custom.db", DefaultDBPath("state"))
}

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DROPFLOW_TEST_FROM_FILE=file\nDROPFLOW_TEST_PRESET=file\n"), 0o600))
	t.Setenv("DROPFLOW_TEST_PRESET", "env")
	t.Setenv("DROPFLOW_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("DROPFLOW_TEST_FROM_FILE"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "file", os.Getenv("DROPFLOW_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("DROPFLOW_TEST_PRESET"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("DROPFLOW_TEST_VALUE", "  ")
	assert.Equal(t, "fallback", EnvOrDefault("DROPFLOW_TEST_VALUE", "fallback"))
	t.Setenv("DROPFLOW_TEST_VALUE", "set")
	assert.Equal(t, "set", EnvOrDefault("DROPFLOW_TEST_VALUE", "fallback"))
}

func TestPublicURLFor(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:5000", PublicURLFor("127.0.0.1:5000"))
	assert.Equal(t, "http://"+LocalIP()+":5000", PublicURLFor("0.0.0.0:5000"))
	assert.Equal(t, "http://"+LocalIP()+":5000", PublicURLFor(":5000"))
}
