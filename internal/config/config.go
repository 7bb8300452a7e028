// Package config loads application settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Environment string
	Port        string
	LogLevel    string
	CatalogPath string

	Storage StorageConfig
	Backend BackendConfig
	Media   MediaConfig
	Photo   PhotoConfig
	Twilio  TwilioConfig
	Janitor JanitorConfig
}

// StorageConfig selects where sessions live.
type StorageConfig struct {
	Driver                 string
	User                   string
	Password               string
	Name                   string
	Host                   string
	Port                   string
	InstanceConnectionName string
	SQLitePath             string
}

// BackendConfig points at the web service that owns agents and stores.
type BackendConfig struct {
	BaseURL      string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// MediaConfig controls the scratch directory for downloaded photos.
type MediaConfig struct {
	Dir      string
	MaxBytes int64
}

// PhotoConfig controls provenance verification.
type PhotoConfig struct {
	Timezone       string
	MaxAge         time.Duration
	ExifToolBinary string
	ConvertBinary  string
}

// TwilioConfig holds WhatsApp credentials.
type TwilioConfig struct {
	AccountSID      string
	AuthToken       string
	WhatsAppFrom    string
	PublicURL       string
	ValidateWebhook bool
}

// JanitorConfig controls the sweep of orphaned scratch files.
type JanitorConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// LoadDotEnv reads .env files for local development. Missing files are not an error.
func LoadDotEnv() bool {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return false
	}
	if err := godotenv.Load(".env"); err == nil {
		return true
	}
	return godotenv.Load("environments/.env.development") == nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var env envReader
	environment := getEnv("ENVIRONMENT", "production")

	driver := strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres))
	if env.boolean("USE_MEMORY_STORE", false) {
		driver = DriverMemory
	}

	photo, photoErr := PhotoFromEnv()

	cfg := &Config{
		Environment: environment,
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CatalogPath: getEnv("CATALOG_PATH", ""),
		Storage: StorageConfig{
			Driver:                 driver,
			User:                   getEnv("DB_USER", "postgres"),
			Password:               getEnv("DB_PASS", ""),
			Name:                   getEnv("DB_NAME", "orimi"),
			Host:                   getEnv("DB_HOST", "localhost"),
			Port:                   getEnv("DB_PORT", "5432"),
			InstanceConnectionName: getEnv("INSTANCE_CONNECTION_NAME", ""),
			SQLitePath:             getEnv("SQLITE_PATH", "./data/sessions.db"),
		},
		Backend: BackendConfig{
			BaseURL:      strings.TrimRight(getEnv("WEB_SERVICE_URL", ""), "/"),
			Timeout:      env.duration("BACKEND_TIMEOUT", 10*time.Second),
			Retries:      env.integer("BACKEND_RETRIES", 2),
			RetryBackoff: env.duration("BACKEND_RETRY_BACKOFF", 300*time.Millisecond),
		},
		Media: MediaConfig{
			Dir:      getEnv("MEDIA_DIR", "media/shelf"),
			MaxBytes: int64(env.integer("MEDIA_MAX_BYTES", 25<<20)),
		},
		Photo: photo,
		Twilio: TwilioConfig{
			AccountSID:      getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:       getEnv("TWILIO_AUTH_TOKEN", ""),
			WhatsAppFrom:    getEnv("TWILIO_WHATSAPP_FROM", ""),
			PublicURL:       strings.TrimRight(getEnv("PUBLIC_URL", ""), "/"),
			ValidateWebhook: !env.boolean("DISABLE_WEBHOOK_VALIDATION", environment == "development"),
		},
		Janitor: JanitorConfig{
			Interval: env.duration("JANITOR_INTERVAL", 10*time.Minute),
			MaxAge:   env.duration("JANITOR_MAX_AGE", time.Hour),
		},
	}

	if err := errors.Join(env.err(), photoErr); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// PhotoFromEnv reads the provenance settings alone, for tools that do not talk to the backend.
func PhotoFromEnv() (PhotoConfig, error) {
	var env envReader
	photo := PhotoConfig{
		Timezone:       getEnv("PHOTO_TIMEZONE", "Asia/Bishkek"),
		MaxAge:         env.duration("PHOTO_MAX_AGE", 5*time.Minute),
		ExifToolBinary: getEnv("EXIFTOOL_BINARY", "exiftool"),
		ConvertBinary:  getEnv("CONVERT_BINARY", "convert"),
	}
	return photo, env.err()
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("WEB_SERVICE_URL cannot be empty")
	}
	if c.Backend.Retries < 0 {
		return fmt.Errorf("BACKEND_RETRIES must be >= 0")
	}
	if c.Media.Dir == "" {
		return fmt.Errorf("MEDIA_DIR cannot be empty")
	}
	if c.Media.MaxBytes <= 0 {
		return fmt.Errorf("MEDIA_MAX_BYTES must be > 0")
	}
	if c.Photo.MaxAge <= 0 {
		return fmt.Errorf("PHOTO_MAX_AGE must be > 0")
	}
	if _, err := time.LoadLocation(c.Photo.Timezone); err != nil {
		return fmt.Errorf("PHOTO_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the deployment timezone used for photo timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Photo.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// TwilioConfigured reports whether outbound WhatsApp messages can be sent.
func (c *Config) TwilioConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.WhatsAppFrom != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// envReader parses typed variables and remembers every malformed one.
type envReader struct {
	errs []error
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}

func (r *envReader) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	return strings.TrimSpace(value), ok
}

func (r *envReader) boolean(key string, fallback bool) bool {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, value))
	return fallback
}

func (r *envReader) integer(key string, fallback int) int {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return fallback
	}
	return n
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration such as 5m or 90s", key, value))
		return fallback
	}
	return d
}
