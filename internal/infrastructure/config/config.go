package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL, default=24h"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`
	Timezone  string        `env:"TIMEZONE,  default=Local"`

	StoreDriver string `env:"STORE_DRIVER, default=mongo"`

	Admin     AdminConfig
	Session   SessionConfig
	Engine    EngineConfig
	Report    ReportConfig
	RateLimit RateLimitConfig
	Capture   CaptureConfig
	Mongo     MongoConfig
	Redis     RedisConfig
}

type AdminConfig struct {
	Username     string `env:"ADMIN_USERNAME,      default=admin"`
	PasswordHash string `env:"ADMIN_PASSWORD_HASH"`
}

type SessionConfig struct {
	IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT, default=10m"`
	RevokedTTL  time.Duration `env:"SESSION_REVOKED_TTL,  default=24h"`
	Workers     int           `env:"SESSION_WORKERS,      default=8"`
	Store       string        `env:"SESSION_STORE,        default=memory"`
}

type EngineConfig struct {
	ResetUnlinkedDeviceStatus bool `env:"RESET_UNLINKED_DEVICE_STATUS, default=true"`
}

type ReportConfig struct {
	CacheTTL  time.Duration `env:"REPORT_CACHE_TTL,  default=30s"`
	UserLimit int           `env:"REPORT_USER_LIMIT, default=100"`
}

type RateLimitConfig struct {
	PerSecond float64 `env:"RATE_LIMIT_PER_SEC, default=10"`
	Burst     int     `env:"RATE_LIMIT_BURST,   default=20"`
}

type CaptureConfig struct {
	APIKey string `env:"CAPTURE_API_KEY"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=paywatch"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(ctx context.Context, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom processes configuration from an arbitrary lookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings needed to serve the API.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StoreDriver {
	case DriverMongo, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q: want mongo or memory", c.StoreDriver))
	}
	switch c.Session.Store {
	case DriverMemory, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE %q: want memory or redis", c.Session.Store))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT must be positive"))
	}
	if c.Report.CacheTTL <= 0 {
		errs = append(errs, errors.New("REPORT_CACHE_TTL must be positive"))
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_SEC and RATE_LIMIT_BURST must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves TIMEZONE. "Local" is the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsDevelopment enables pretty console logs.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
