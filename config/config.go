// Package config loads and validates the application configuration from a
// yaml file, with secrets overridable from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the entire application configuration.
type Config struct {
	// DatabaseDSN is the MySQL DSN of the mirror database, e.g.
	// "user:pass@tcp(127.0.0.1:3306)/economic_data?parseTime=true".
	DatabaseDSN string `yaml:"database_dsn"`

	// AppSecretToken is the process-wide application secret sent with
	// every source API request.
	AppSecretToken string `yaml:"app_secret_token"`

	APIBaseURL       string    `yaml:"api_base_url"`
	DocumentsBaseURL string    `yaml:"documents_base_url"`
	Web              WebConfig `yaml:"web"`

	// EnrichPDF enables voucher PDF-availability enrichment during the
	// accounting walk.
	EnrichPDF bool `yaml:"enrich_pdf"`

	// LedgerQuietPeriodStr is the debounce window for automatic ledger
	// flushes, e.g. "30s".
	LedgerQuietPeriodStr string `yaml:"ledger_quiet_period"`
	LedgerQuietPeriod    time.Duration
}

// WebConfig holds settings specific to the trigger web server.
type WebConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// Environment variable names overriding the corresponding yaml fields, so
// secrets can stay out of the config file. A .env file, when present, is
// loaded by the entrypoint before Load is called.
const (
	EnvAppSecretToken = "APP_SECRET_TOKEN"
	EnvDatabaseDSN    = "DATABASE_DSN"
)

// Load loads and validates the configuration from the given file path.
func Load(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", filePath)
	}

	configFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(configFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse YAML config file: %w", err)
	}

	if err := validateAndPrepare(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateAndPrepare checks for required fields and sets up derived values,
// applying environment overrides first.
func validateAndPrepare(c *Config) error {
	if v := os.Getenv(EnvAppSecretToken); v != "" {
		c.AppSecretToken = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.DatabaseDSN = v
	}

	if c.DatabaseDSN == "" {
		return errors.New("database_dsn is missing")
	}
	if c.AppSecretToken == "" {
		return errors.New("app_secret_token is missing")
	}
	if c.Web.ListenAddress == "" {
		return errors.New("web.listen_address is missing")
	}

	if c.LedgerQuietPeriodStr != "" {
		d, err := time.ParseDuration(c.LedgerQuietPeriodStr)
		if err != nil {
			return fmt.Errorf("invalid ledger_quiet_period: %w", err)
		}
		c.LedgerQuietPeriod = d
	}
	return nil
}
