package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageJSON     = "json"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	LogLevel        slog.Level
	Storage         string
	AccountsFile    string
	CustomersFile   string
	DatabaseURL     string
	Bootstrap       bool
	AdminUsername   string
	AdminPassword   string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads an optional .env file, then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Debug("No .env file loaded, relying on environment variables")
	}

	var errs []error

	level, err := parseLevel(getEnv("LEDGER_LOG_LEVEL", "info"))
	errs = append(errs, err)
	bootstrap, err := getBool("LEDGER_BOOTSTRAP", false)
	errs = append(errs, err)
	requestTimeout, err := getDuration("LEDGER_REQUEST_TIMEOUT", 30*time.Second)
	errs = append(errs, err)
	shutdownTimeout, err := getDuration("LEDGER_SHUTDOWN_TIMEOUT", 30*time.Second)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        getEnv("LEDGER_HTTP_ADDR", ":8080"),
		MetricsAddr:     getEnv("LEDGER_METRICS_ADDR", ":9090"),
		LogLevel:        level,
		Storage:         strings.ToLower(getEnv("LEDGER_STORAGE", StorageJSON)),
		AccountsFile:    getEnv("LEDGER_ACCOUNTS_FILE", "accounts.json"),
		CustomersFile:   getEnv("LEDGER_CUSTOMERS_FILE", "customer_records.json"),
		DatabaseURL:     getEnv("LEDGER_DATABASE_URL", ""),
		Bootstrap:       bootstrap,
		AdminUsername:   getEnv("LEDGER_ADMIN_USERNAME", "admin"),
		AdminPassword:   getEnv("LEDGER_ADMIN_PASSWORD", "access"),
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageJSON:
		if c.AccountsFile == "" || c.CustomersFile == "" {
			return errors.New("json storage needs LEDGER_ACCOUNTS_FILE and LEDGER_CUSTOMERS_FILE")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres storage needs LEDGER_DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return errors.New("admin username and password must be set")
	}
	if c.RequestTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LEDGER_LOG_LEVEL: %w", err)
	}
	return level, nil
}
