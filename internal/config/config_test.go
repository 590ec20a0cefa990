package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./CustomSongs", cfg.SongsDir)
	assert.Equal(t, ".cache", cfg.CacheDirName)
	assert.Equal(t, []string{".zip", ".beat"}, cfg.ArchiveExtensions)
	assert.Equal(t, "data/songs.db", cfg.IndexPath)
	assert.Equal(t, 3001, cfg.HTTP.Port)
	assert.True(t, cfg.Identity.IncludeAuthor)
	assert.Equal(t, 16*time.Millisecond, cfg.Loader.DrainInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Loader.ProgressDebounce)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "0.0.0.0:3001", cfg.Addr())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
songs_dir: /games/CustomSongs
archive_extensions: [zip]
log:
  level: debug
  pretty: false
http:
  port: 8080
identity:
  include_author: false
loader:
  drain_interval: 50ms
  drain_batch: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/games/CustomSongs", cfg.SongsDir)
	assert.Equal(t, []string{".zip"}, cfg.ArchiveExtensions)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.Identity.IncludeAuthor)
	assert.Equal(t, 50*time.Millisecond, cfg.Loader.DrainInterval)
	assert.Equal(t, 10, cfg.Loader.DrainBatch)
	// Keys not in the file keep their defaults.
	assert.Equal(t, ".cache", cfg.CacheDirName)
	assert.Equal(t, 100*time.Millisecond, cfg.Loader.ProgressDebounce)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "songs_dir: /from/file\nhttp:\n  port: 8080\n")

	t.Setenv("SONGLOADER_SONGS_DIR", "/from/env")
	t.Setenv("SONGLOADER_PORT", "9000")
	t.Setenv("SONGLOADER_ARCHIVE_EXTENSIONS", ".zip, .bsl")
	t.Setenv("SONGLOADER_ID_INCLUDE_AUTHOR", "no")
	t.Setenv("SONGLOADER_DRAIN_INTERVAL", "5ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.SongsDir)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, []string{".zip", ".bsl"}, cfg.ArchiveExtensions)
	assert.False(t, cfg.Identity.IncludeAuthor)
	assert.Equal(t, 5*time.Millisecond, cfg.Loader.DrainInterval)
}

func TestLoadInvalidEnvKeepsDefault(t *testing.T) {
	t.Setenv("SONGLOADER_HTTP_PORT", "not-a-port")
	t.Setenv("SONGLOADER_METRICS_ENABLED", "maybe")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.HTTP.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "songs_dir: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"empty songs dir", func(c *Config) { c.SongsDir = " " }, "songs_dir"},
		{"cache dir with separator", func(c *Config) { c.CacheDirName = "a/b" }, "cache_dir_name"},
		{"no extensions", func(c *Config) { c.ArchiveExtensions = nil }, "archive_extensions"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"zero drain interval", func(c *Config) { c.Loader.DrainInterval = 0 }, "drain_interval"},
		{"negative batch", func(c *Config) { c.Loader.DrainBatch = -1 }, "drain_batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, Default().Validate())
}
