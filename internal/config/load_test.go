package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadOrDefaultReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().HTTP, cfg.HTTP)
}

func TestLoadParsesOverridesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[http]
host = "127.0.0.1"
port = 9443
path = "/api/v3"

[storage]
type = "filesystem"

[storage.filesystem]
blob_dir = "/data/blobs"
db_path = "/data/index.db"

[auth]
type = "static"
static_keys_path = "/data/keys.json"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 9443, cfg.HTTP.Port)
	assert.Equal(t, "/data/blobs", cfg.Storage.Filesystem.BlobDir)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[http]
bogus_field = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[http]
port = 0
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestResolveConfigPathPriority(t *testing.T) {
	logger := discardLogger()

	assert.Equal(t, DefaultConfigPath(), ResolveConfigPath(EnvOverrides{}, "", logger))
	assert.Equal(t, "/env/path.toml", ResolveConfigPath(EnvOverrides{ConfigPath: "/env/path.toml"}, "", logger))
	assert.Equal(t, "/cli/path.toml", ResolveConfigPath(EnvOverrides{ConfigPath: "/env/path.toml"}, "/cli/path.toml", logger))
}
