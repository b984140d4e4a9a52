// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/zeebo/errs"
)

// Error is the class of configuration errors.
var Error = errs.Class("config")

// Prefix is prepended to every variable name except the DB_* ones.
const Prefix = "PROMO_"

// Store backings.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreContent  = "content"
	StoreRedis    = "redis"
)

// Config holds everything needed to run the service.
type Config struct {
	Listen string `env:"LISTEN" envDefault:":8080"`
	Store  string `env:"STORE" envDefault:"memory"`

	Pepper         string `env:"PEPPER"`
	DeviceStrategy string `env:"DEVICE_STRATEGY" envDefault:"device"`

	ReservationTTL time.Duration `env:"RESERVATION_TTL" envDefault:"15m"`
	Retention      time.Duration `env:"RETENTION" envDefault:"24h"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	SaveRetries    int           `env:"SAVE_RETRIES" envDefault:"5"`
	Timezone       string        `env:"TIMEZONE" envDefault:"Asia/Jakarta"`

	AdminSecret   string `env:"ADMIN_SECRET"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	ContentBaseURL string `env:"CONTENT_BASE_URL"`
	ContentToken   string `env:"CONTENT_TOKEN"`
	ContentPath    string `env:"CONTENT_PATH" envDefault:"promo.json"`
	ContentBranch  string `env:"CONTENT_BRANCH"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	ProviderURL string `env:"PROVIDER_URL"`
	ProviderKey string `env:"PROVIDER_KEY"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	ApplyRatePerMin float64 `env:"APPLY_RATE_PER_MIN" envDefault:"60"`
	ApplyBurst      int     `env:"APPLY_BURST" envDefault:"10"`
}

// Load reads the given .env files (default ".env"; missing files are
// ignored) and parses the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, Error.New("load %s: %v", file, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, Error.Wrap(err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	switch strings.ToLower(c.Store) {
	case StoreMemory, StorePostgres, StoreRedis:
	case StoreContent:
		if strings.TrimSpace(c.ContentBaseURL) == "" {
			return Error.New("%sCONTENT_BASE_URL required for the content store", Prefix)
		}
	default:
		return Error.New("unknown store %q", c.Store)
	}
	switch strings.ToLower(c.DeviceStrategy) {
	case "", "device", "fingerprint":
	default:
		return Error.New("unknown device strategy %q", c.DeviceStrategy)
	}
	if c.ReservationTTL <= 0 {
		return Error.New("reservation ttl must be positive")
	}
	if c.SaveRetries <= 0 {
		return Error.New("save retries must be positive")
	}
	if c.Retention < 0 {
		return Error.New("retention must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, Error.New("timezone %q: %v", c.Timezone, err)
	}
	return loc, nil
}
