package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "addr: \":9000\"\nlog_level: debug\nclient_buffer: 16\nshutdown_timeout: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("STUDYROOM_LOG_LEVEL", "warn")
	t.Setenv("STUDYROOM_ALLOWED_ORIGINS", "http://localhost:3000,https://study.example")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 16, cfg.ClientBuffer)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://study.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 14*24*time.Hour, cfg.TokenCookieTTL)
}

func TestUpdateFromKeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":7000", DatabasePath: "/tmp/x.db"})

	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "/tmp/x.db", cfg.DatabasePath)
	assert.Equal(t, Default().LogLevel, cfg.LogLevel)
	assert.Equal(t, Default().AllowedOrigins, cfg.AllowedOrigins)
}
