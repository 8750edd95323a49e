package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Publish backends.
const (
	PublishREST    = "rest"
	PublishBrowser = "browser"
)

// Config holds process configuration loaded from environment variables.
// Every field has a sensible default. Targets and forwarding policy live in
// the runtime file (see Runtime) so they can change without a restart.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string

	// Durable store
	StoreBackend  string
	StatePath     string
	SQLitePath    string
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	MigrationsDir string

	// Feed source
	FeedBaseURL       string
	FeedAPIKey        string
	FeedTimeout       time.Duration
	FeedRatePerMinute int

	// Publish executor
	PublishBackend       string
	PublishBaseURL       string
	PublishToken         string
	PublishUserID        string
	PublishTimeout       time.Duration
	PublishRatePerMinute int
	BrowserBaseURL       string
	BrowserAuthToken     string
	BrowserRemoteURL     string
	BrowserBin           string

	// Pipeline
	PollInterval     time.Duration
	DrainInterval    time.Duration
	MaxAttempts      int
	DisabledDeferral time.Duration
	LogBuffer        int
	AutoStart        bool

	// RuntimeFile is the YAML file with targets and forwarding policy.
	RuntimeFile string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", StoreFile)),
		StatePath:     getEnv("STATE_PATH", "data/state.yaml"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/feedrelay.db"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBMaxConns:    int32(getInt("DB_MAX_CONNS", 4)),
		DBMinConns:    int32(getInt("DB_MIN_CONNS", 1)),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		FeedBaseURL:       getEnv("FEED_BASE_URL", "https://api.twitterapi.io"),
		FeedAPIKey:        os.Getenv("FEED_API_KEY"),
		FeedTimeout:       getDuration("FEED_TIMEOUT", 30*time.Second),
		FeedRatePerMinute: getInt("FEED_RATE_PER_MINUTE", 60),

		PublishBackend:       strings.ToLower(getEnv("PUBLISH_BACKEND", PublishREST)),
		PublishBaseURL:       getEnv("PUBLISH_BASE_URL", "https://api.x.com"),
		PublishToken:         os.Getenv("PUBLISH_TOKEN"),
		PublishUserID:        os.Getenv("PUBLISH_USER_ID"),
		PublishTimeout:       getDuration("PUBLISH_TIMEOUT", 30*time.Second),
		PublishRatePerMinute: getInt("PUBLISH_RATE_PER_MINUTE", 30),
		BrowserBaseURL:       getEnv("BROWSER_BASE_URL", "https://x.com"),
		BrowserAuthToken:     os.Getenv("BROWSER_AUTH_TOKEN"),
		BrowserRemoteURL:     os.Getenv("BROWSER_REMOTE_URL"),
		BrowserBin:           os.Getenv("BROWSER_BIN"),

		PollInterval:     getDuration("POLL_INTERVAL", 5*time.Minute),
		DrainInterval:    getDuration("DRAIN_INTERVAL", 3*time.Second),
		MaxAttempts:      getInt("MAX_ATTEMPTS", 5),
		DisabledDeferral: getDuration("DISABLED_DEFERRAL", 15*time.Second),
		LogBuffer:        getInt("LOG_BUFFER", 500),
		AutoStart:        getBool("AUTO_START", true),

		RuntimeFile: getEnv("RUNTIME_FILE", "config/feedrelay.yaml"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and the settings they require.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreFile, StoreSQLite, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.PublishBackend {
	case PublishREST, PublishBrowser:
	default:
		return fmt.Errorf("unknown PUBLISH_BACKEND %q", c.PublishBackend)
	}

	if c.PollInterval <= 0 || c.DrainInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL and DRAIN_INTERVAL must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
