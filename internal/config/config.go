// Package config reads leadwatch settings from the environment and sets up
// logging.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Token stores.
const (
	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

// Config holds all configuration values.
type Config struct {
	// Backend endpoints
	APIURL        string
	WSURL         string
	ClientTimeout time.Duration

	// Event stream
	ReconnectDelay time.Duration
	MaxReconnects  int // 0 = unlimited

	// Job dashboard
	SettleDelay     time.Duration
	PageSize        int
	LogCapacity     int
	SessionsRefresh time.Duration

	// Persisted client state
	StateFile  string
	TokenStore string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// Defaults match the web dashboard's behavior.
func Load() Config {
	apiURL := strings.TrimRight(getEnv("LEADWATCH_API_URL", "http://localhost:3001"), "/")

	return Config{
		APIURL:        apiURL,
		WSURL:         getEnv("LEADWATCH_WS_URL", wsURLFor(apiURL)),
		ClientTimeout: getDuration("LEADWATCH_CLIENT_TIMEOUT", 15*time.Second),

		ReconnectDelay: getDuration("LEADWATCH_RECONNECT_DELAY", 3*time.Second),
		MaxReconnects:  getInt("LEADWATCH_MAX_RECONNECTS", 0),

		SettleDelay:     getDuration("LEADWATCH_SETTLE_DELAY", 500*time.Millisecond),
		PageSize:        getInt("LEADWATCH_PAGE_SIZE", 50),
		LogCapacity:     getInt("LEADWATCH_LOG_CAPACITY", 500),
		SessionsRefresh: getDuration("LEADWATCH_SESSIONS_REFRESH", 2*time.Second),

		StateFile:  getEnv("LEADWATCH_STATE_FILE", defaultStateFile()),
		TokenStore: strings.ToLower(getEnv("LEADWATCH_TOKEN_STORE", TokenStoreFile)),

		LogFile:  getEnv("LEADWATCH_LOG_FILE", filepath.Join(os.TempDir(), "leadwatch.log")),
		LogLevel: parseLogLevel(getEnv("LEADWATCH_LOG_LEVEL", "INFO")),
	}
}

// wsURLFor derives the websocket endpoint served next to the REST API.
func wsURLFor(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		return apiURL
	}
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "leadwatch", "state.yaml")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
