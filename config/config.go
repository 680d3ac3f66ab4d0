// Package config handles gymdesk configuration loading and validation.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// JSON file, a .env file in the working directory, and the process
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Business  BusinessConfig  `json:"business"`
	Logging   LoggingConfig   `json:"logging"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Admin     AdminConfig     `json:"admin,omitempty"`
}

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	Addr            string          `json:"addr"`                      // e.g. ":8080"
	AllowedOrigins  []string        `json:"allowed_origins,omitempty"` // CORS origins
	MaxBodyBytes    int64           `json:"max_body_bytes,omitempty"`  // default 1MB
	ShutdownTimeout Duration        `json:"shutdown_timeout,omitempty"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
}

// RateLimitConfig is a per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"` // default 20
	Burst             int     `json:"burst,omitempty"`               // default 40
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Driver string `json:"driver"` // "sqlite3" (default) or "pgx"
	DSN    string `json:"dsn"`    // e.g. "gymdesk.db", ":memory:" or a postgres URL
}

// BusinessConfig holds the gym's own parameters.
type BusinessConfig struct {
	TimeZone         string          `json:"time_zone,omitempty"`
	CostRatio        decimal.Decimal `json:"cost_ratio"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	ExpiringSoonDays int             `json:"expiring_soon_days,omitempty"`
	HistoryMonths    int             `json:"history_months,omitempty"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"` // "json" or "text"
}

// TelemetryConfig enables trace export when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
}

// AdminConfig guards removals and ledger corrections. An empty hash disables
// the admin routes.
type AdminConfig struct {
	KeyHash string `json:"key_hash,omitempty"` // bcrypt hash of the X-Admin-Key value
}

// Duration is a JSON-friendly time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads the optional JSON file at path, applies .env and environment
// overrides, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used with no file and no environment.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set("GYMDESK_ADDR", &c.Server.Addr)
	set("DATABASE_DRIVER", &c.Storage.Driver)
	set("DATABASE_URL", &c.Storage.DSN)
	set("GYMDESK_TIMEZONE", &c.Business.TimeZone)
	set("LOG_LEVEL", &c.Logging.Level)
	set("LOG_FORMAT", &c.Logging.Format)
	set("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	set("GYMDESK_ADMIN_KEY_HASH", &c.Admin.KeyHash)

	if v := getenv("GYMDESK_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
			}
		}
	}
	if v := getenv("GYMDESK_EXPIRING_SOON_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GYMDESK_EXPIRING_SOON_DAYS: %w", err)
		}
		c.Business.ExpiringSoonDays = n
	}
	if v := getenv("GYMDESK_COST_RATIO"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("GYMDESK_COST_RATIO: %w", err)
		}
		c.Business.CostRatio = d
	}
	if v := getenv("GYMDESK_TAX_RATE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("GYMDESK_TAX_RATE: %w", err)
		}
		c.Business.TaxRate = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1024 * 1024 // 1MB
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout.Duration = 30 * time.Second
	}
	if c.Server.RateLimit.RequestsPerSecond == 0 {
		c.Server.RateLimit.RequestsPerSecond = 20
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 40
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite3"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "gymdesk.db"
	}
	if c.Business.TimeZone == "" {
		c.Business.TimeZone = "America/Bogota"
	}
	if c.Business.CostRatio.IsZero() {
		c.Business.CostRatio = decimal.RequireFromString("0.60")
	}
	if c.Business.TaxRate.IsZero() {
		c.Business.TaxRate = decimal.RequireFromString("0.19")
	}
	if c.Business.ExpiringSoonDays == 0 {
		c.Business.ExpiringSoonDays = 3
	}
	if c.Business.HistoryMonths == 0 {
		c.Business.HistoryMonths = 6
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite", "sqlite3", "pgx", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if _, err := time.LoadLocation(c.Business.TimeZone); err != nil {
		return fmt.Errorf("business.time_zone: %w", err)
	}
	if c.Business.CostRatio.IsNegative() || c.Business.CostRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("business.cost_ratio must be between 0 and 1")
	}
	if c.Business.TaxRate.IsNegative() {
		return fmt.Errorf("business.tax_rate must not be negative")
	}
	if c.Business.ExpiringSoonDays < 0 {
		return fmt.Errorf("business.expiring_soon_days must not be negative")
	}
	if c.Business.HistoryMonths < 0 || c.Business.HistoryMonths > 36 {
		return fmt.Errorf("business.history_months must be between 1 and 36")
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	if c.Admin.KeyHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Admin.KeyHash)); err != nil {
			return fmt.Errorf("admin.key_hash is not a bcrypt hash: %w", err)
		}
	}
	return nil
}

// HashAdminKey returns the bcrypt hash to store in admin.key_hash.
func HashAdminKey(key string) (string, error) {
	if len(key) < 16 {
		return "", fmt.Errorf("admin key must be at least 16 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin key: %w", err)
	}
	return string(h), nil
}
