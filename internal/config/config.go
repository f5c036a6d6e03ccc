// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. The server, migrate, and seed
	// binaries refuse to start without it.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port for the shared cache (e.g. localhost:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis logical database index.
	RedisDB int `mapstructure:"REDIS_DB"`
	// AuthPepper is the server-side secret mixed into every password hash.
	// Required when APP_ENV=production. Rotating it invalidates all hashes.
	AuthPepper string `mapstructure:"AUTH_PEPPER"`
	// IPHashSecret keys the client IP fingerprint. Required when APP_ENV=production.
	IPHashSecret string `mapstructure:"IP_HASH_SECRET"`
	// SessionTTL is the session lifetime (e.g. "24h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionCookieName is the session cookie's name (default auth_session).
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	// CSRFCookieName is the CSRF token cookie's name (default csrf_token).
	CSRFCookieName string `mapstructure:"CSRF_COOKIE_NAME"`
	// CookieDomain scopes both cookies; empty means host-only.
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	// CookieSecure marks both cookies Secure. Forced on when APP_ENV=production.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	// Argon2MemoryKiB is the argon2id memory cost in KiB (default 65536 = 64 MiB).
	Argon2MemoryKiB int `mapstructure:"ARGON2_MEMORY_KIB"`
	// Argon2Iterations is the argon2id time cost (default 3).
	Argon2Iterations int `mapstructure:"ARGON2_ITERATIONS"`
	// Argon2Parallelism is the argon2id lane count (default 2).
	Argon2Parallelism int `mapstructure:"ARGON2_PARALLELISM"`

	// LoginIPLimit caps login attempts per client IP inside LoginIPWindow.
	LoginIPLimit int `mapstructure:"LOGIN_IP_LIMIT"`
	// LoginIPWindow is the sliding window for LoginIPLimit (e.g. "60s").
	LoginIPWindow string `mapstructure:"LOGIN_IP_WINDOW"`
	// LoginAccountLimit caps login attempts per target account inside LoginAccountWindow.
	LoginAccountLimit int `mapstructure:"LOGIN_ACCOUNT_LIMIT"`
	// LoginAccountWindow is the sliding window for LoginAccountLimit (e.g. "5m").
	LoginAccountWindow string `mapstructure:"LOGIN_ACCOUNT_WINDOW"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AUTH_PEPPER", "")
	v.SetDefault("IP_HASH_SECRET", "")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_COOKIE_NAME", "auth_session")
	v.SetDefault("CSRF_COOKIE_NAME", "csrf_token")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("ARGON2_MEMORY_KIB", 64*1024)
	v.SetDefault("ARGON2_ITERATIONS", 3)
	v.SetDefault("ARGON2_PARALLELISM", 2)
	v.SetDefault("LOGIN_IP_LIMIT", 10)
	v.SetDefault("LOGIN_IP_WINDOW", "60s")
	v.SetDefault("LOGIN_ACCOUNT_LIMIT", 5)
	v.SetDefault("LOGIN_ACCOUNT_WINDOW", "5m")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.Env == "production" {
		if cfg.AuthPepper == "" {
			return nil, errors.New("config: AUTH_PEPPER must be set when APP_ENV=production")
		}
		if cfg.IPHashSecret == "" {
			return nil, errors.New("config: IP_HASH_SECRET must be set when APP_ENV=production")
		}
		cfg.CookieSecure = true
	}
	if cfg.Argon2MemoryKiB < 8*1024 {
		return nil, errors.New("config: ARGON2_MEMORY_KIB must be at least 8192")
	}
	if cfg.Argon2Iterations < 1 || cfg.Argon2Parallelism < 1 {
		return nil, errors.New("config: ARGON2_ITERATIONS and ARGON2_PARALLELISM must be positive")
	}
	if cfg.LoginIPLimit < 1 || cfg.LoginAccountLimit < 1 {
		return nil, errors.New("config: login rate limits must be positive")
	}

	return &cfg, nil
}

// SessionLifetime parses SessionTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// LoginIPWindowDuration parses LoginIPWindow. Returns 60s if unset or invalid.
func (c *Config) LoginIPWindowDuration() time.Duration {
	d, err := time.ParseDuration(c.LoginIPWindow)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// LoginAccountWindowDuration parses LoginAccountWindow. Returns 5m if unset or invalid.
func (c *Config) LoginAccountWindowDuration() time.Duration {
	d, err := time.ParseDuration(c.LoginAccountWindow)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
