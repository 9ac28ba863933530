package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process configuration read from the environment at startup.
type Config struct {
	// Addr is the listen address. It defaults to loopback on Port since
	// every request acts as the signed-in user.
	Addr     string
	Port     string
	DBPath   string
	LogLevel string

	// Backend is the hosted backend-as-a-service: identity under /auth/v1
	// and data under /rest/v1, both authorized by the anon key.
	BackendURL     string
	BackendAnonKey string

	// StatePassphrase seals the persisted session blob. Empty stores it unsealed.
	StatePassphrase string

	AuthTimeout time.Duration
	UserTimeout time.Duration
	DataTimeout time.Duration

	AuthRatePerMinute int
	PageSize          int
}

// Load reads Config from RECIPEBOX_* environment variables. It returns an
// error naming every required variable that is unset.
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.BackendURL = strings.TrimRight(os.Getenv("RECIPEBOX_BACKEND_URL"), "/")
	if cfg.BackendURL == "" {
		missing = append(missing, "RECIPEBOX_BACKEND_URL")
	}

	cfg.BackendAnonKey = os.Getenv("RECIPEBOX_BACKEND_ANON_KEY")
	if cfg.BackendAnonKey == "" {
		missing = append(missing, "RECIPEBOX_BACKEND_ANON_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if u, err := url.Parse(cfg.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("RECIPEBOX_BACKEND_URL is not an absolute URL: %q", cfg.BackendURL)
	}

	cfg.Port = getEnvString("RECIPEBOX_PORT", "8080")
	cfg.Addr = getEnvString("RECIPEBOX_ADDR", net.JoinHostPort("127.0.0.1", cfg.Port))
	cfg.DBPath = getEnvString("RECIPEBOX_DB_PATH", "recipebox.db")
	cfg.LogLevel = getEnvString("RECIPEBOX_LOG_LEVEL", "info")
	cfg.StatePassphrase = os.Getenv("RECIPEBOX_STATE_PASSPHRASE")
	cfg.AuthTimeout = getEnvDuration("RECIPEBOX_AUTH_TIMEOUT", 10*time.Second)
	cfg.UserTimeout = getEnvDuration("RECIPEBOX_USER_TIMEOUT", 5*time.Second)
	cfg.DataTimeout = getEnvDuration("RECIPEBOX_DATA_TIMEOUT", 10*time.Second)
	cfg.AuthRatePerMinute = getEnvInt("RECIPEBOX_AUTH_RATE_PER_MIN", 10)
	cfg.PageSize = getEnvInt("RECIPEBOX_PAGE_SIZE", 12)

	return cfg, nil
}

// Loopback reports whether Addr only accepts connections from this machine.
func (c *Config) Loopback() bool {
	host, _, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
