package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Backend   BackendConfig
	State     StateConfig
	DB        DBConfig
	Redis     RedisConfig
	Console   ConsoleConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
}

// ClientConfig is the subset used by the command line client, which has no
// listener and keeps its state in a local database.
type ClientConfig struct {
	Backend BackendConfig
	State   StateConfig
	DB      DBConfig
	Log     LogConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := c.Backend.validate(); err != nil {
		return err
	}
	switch c.State.NormalizedBackend() {
	case StateBackendSQL:
		if err := c.DB.validate(); err != nil {
			return err
		}
	case StateBackendRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("%s or %s is required when %s=%s", EnvRedisURL, EnvRedisAddr, EnvStateBackend, StateBackendRedis)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvStateBackend, c.State.Backend)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"MINIERP_APP_ENV" required:"true"`
	Port         string `envconfig:"MINIERP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MINIERP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MINIERP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type LogConfig struct {
	Level     string `envconfig:"MINIERP_LOG_LEVEL" default:"warn"`
	WarnStack bool   `envconfig:"MINIERP_LOG_WARN_STACK" default:"false"`
}

// BackendConfig points at the remote Mini ERP REST service.
type BackendConfig struct {
	BaseURL string        `envconfig:"MINIERP_BACKEND_BASE_URL" default:"http://127.0.0.1:8000"`
	Timeout time.Duration `envconfig:"MINIERP_BACKEND_TIMEOUT" default:"10s"`
}

func (b BackendConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(b.BaseURL))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvBackendBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url, got %q", EnvBackendBaseURL, b.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s is missing a host", EnvBackendBaseURL)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvBackendTimeout)
	}
	return nil
}

// StateConfig controls where sessions and carts are persisted.
type StateConfig struct {
	Backend string        `envconfig:"MINIERP_STATE_BACKEND" default:"sql"`
	TTL     time.Duration `envconfig:"MINIERP_STATE_TTL" default:"720h"`
	SealKey string        `envconfig:"MINIERP_STATE_SEAL_KEY"`
}

func (s StateConfig) NormalizedBackend() string {
	return strings.ToLower(strings.TrimSpace(s.Backend))
}

type DBConfig struct {
	DSN         string `envconfig:"MINIERP_DB_DSN" default:"file:minierp_console.db?_busy_timeout=5000"`
	Driver      string `envconfig:"MINIERP_DB_DRIVER" default:"sqlite"`
	AutoMigrate bool   `envconfig:"MINIERP_DB_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"MINIERP_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"MINIERP_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"MINIERP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MINIERP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) NormalizedDriver() string {
	return strings.ToLower(strings.TrimSpace(db.Driver))
}

func (db DBConfig) validate() error {
	if strings.TrimSpace(db.DSN) == "" {
		return fmt.Errorf("%s is required", EnvDBDSN)
	}
	switch db.NormalizedDriver() {
	case DBDriverPostgres, DBDriverSQLite:
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, db.Driver)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"MINIERP_REDIS_URL"`
	Address      string        `envconfig:"MINIERP_REDIS_ADDR"`
	Password     string        `envconfig:"MINIERP_REDIS_PASSWORD"`
	DB           int           `envconfig:"MINIERP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MINIERP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MINIERP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MINIERP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MINIERP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MINIERP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured at all.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type ConsoleConfig struct {
	CookieName   string   `envconfig:"MINIERP_CONSOLE_COOKIE_NAME" default:"minierp_profile"`
	CookieSecure bool     `envconfig:"MINIERP_CONSOLE_COOKIE_SECURE" default:"false"`
	CORSOrigins  []string `envconfig:"MINIERP_CONSOLE_CORS_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`
}

type RateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"MINIERP_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginUsernameLimit int           `envconfig:"MINIERP_RATE_LIMIT_LOGIN_USERNAME_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"MINIERP_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"MINIERP_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterIPLimit    int           `envconfig:"MINIERP_RATE_LIMIT_REGISTER_IP_LIMIT" default:"10"`
}

// JobsConfig schedules the background maintenance of the api server.
type JobsConfig struct {
	PurgeInterval time.Duration `envconfig:"MINIERP_JOBS_PURGE_INTERVAL" default:"1h"`
	EvictInterval time.Duration `envconfig:"MINIERP_JOBS_EVICT_INTERVAL" default:"5m"`
	ConsoleIdle   time.Duration `envconfig:"MINIERP_JOBS_CONSOLE_IDLE" default:"30m"`
}
