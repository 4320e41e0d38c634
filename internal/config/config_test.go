package config_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/leadwatch/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LEADWATCH_API_URL", "LEADWATCH_WS_URL", "LEADWATCH_CLIENT_TIMEOUT",
		"LEADWATCH_RECONNECT_DELAY", "LEADWATCH_MAX_RECONNECTS", "LEADWATCH_SETTLE_DELAY",
		"LEADWATCH_PAGE_SIZE", "LEADWATCH_LOG_CAPACITY", "LEADWATCH_TOKEN_STORE", "LEADWATCH_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()
	assert.Equal(t, "http://localhost:3001", cfg.APIURL)
	assert.Equal(t, "ws://localhost:3001", cfg.WSURL)
	assert.Equal(t, 15*time.Second, cfg.ClientTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Zero(t, cfg.MaxReconnects)
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 500, cfg.LogCapacity)
	assert.Equal(t, config.TokenStoreFile, cfg.TokenStore)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, strings.HasSuffix(cfg.StateFile, filepath.Join("leadwatch", "state.yaml")))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEADWATCH_API_URL", "https://leads.example.nl/")
	t.Setenv("LEADWATCH_WS_URL", "")
	t.Setenv("LEADWATCH_RECONNECT_DELAY", "750ms")
	t.Setenv("LEADWATCH_MAX_RECONNECTS", "5")
	t.Setenv("LEADWATCH_PAGE_SIZE", "nonsense")
	t.Setenv("LEADWATCH_TOKEN_STORE", "KEYRING")
	t.Setenv("LEADWATCH_LOG_LEVEL", "warning")

	cfg := config.Load()
	assert.Equal(t, "https://leads.example.nl", cfg.APIURL)
	assert.Equal(t, "wss://leads.example.nl", cfg.WSURL)
	assert.Equal(t, 750*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, 5, cfg.MaxReconnects)
	assert.Equal(t, 50, cfg.PageSize, "invalid values fall back to the default")
	assert.Equal(t, config.TokenStoreKeyring, cfg.TokenStore)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := config.SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("stream connected", "url", "ws://x")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "stream connected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry))
	assert.Equal(t, "stream connected", entry["msg"])
	assert.Equal(t, "ws://x", entry["url"])
}

func TestSetupFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadwatch.log")
	logger, cleanup := config.SetupFileLogger(path, slog.LevelDebug)
	logger.Warn("lead query failed", "page", 2)
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"lead query failed"`)
}
