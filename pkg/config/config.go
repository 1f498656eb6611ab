package config

import (
	"fmt"
	"net/url"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for intake-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                     // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath is the directory holding *.up.sql/*.down.sql files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Router holds the assignment router defaults. Runtime values live in the
	// router_settings table and override these; the config values apply when
	// a setting row is missing or unreadable.
	Router RouterConfig `yaml:"router"`

	// Enrichment holds the optional LLM enrichment endpoint. When Endpoint is
	// empty, enrichment is disabled and ingestion runs with a no-op enricher.
	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// StreamSecretsKey encrypts stream secrets that must stay reversible for
	// HMAC signature verification. 32-byte key, base64 encoded
	// (openssl rand -base64 32) or any passphrase.
	StreamSecretsKey string `yaml:"-" env:"STREAM_SECRETS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"intake"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"intake_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RouterConfig holds assignment router defaults.
type RouterConfig struct {
	// AutoAssignEnabled controls whether the router applies assignments at all.
	AutoAssignEnabled bool `yaml:"auto_assign_enabled" env:"ROUTER_AUTO_ASSIGN_ENABLED" env-default:"true"`
	// AutoAssignThreshold is the minimum score (0-100) required to auto-apply.
	AutoAssignThreshold int `yaml:"auto_assign_threshold" env:"ROUTER_AUTO_ASSIGN_THRESHOLD" env-default:"60"`
}

// EnrichmentConfig holds the OpenAI-compatible enrichment endpoint settings.
type EnrichmentConfig struct {
	Endpoint       string `yaml:"endpoint" env:"ENRICHMENT_ENDPOINT" env-default:""`
	Model          string `yaml:"model" env:"ENRICHMENT_MODEL" env-default:""`
	APIKey         string `yaml:"-" env:"ENRICHMENT_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"ENRICHMENT_TIMEOUT_SECONDS" env-default:"10"`
}

// IsAvailable returns true if the enrichment endpoint is configured.
func (c *EnrichmentConfig) IsAvailable() bool {
	return c.Endpoint != "" && c.Model != ""
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD,
// STREAM_SECRETS_KEY, ENRICHMENT_API_KEY) must come from environment
// variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Router.AutoAssignThreshold < 0 || c.Router.AutoAssignThreshold > 100 {
		return fmt.Errorf("router.auto_assign_threshold must be between 0 and 100, got %d", c.Router.AutoAssignThreshold)
	}
	if c.Enrichment.TimeoutSeconds <= 0 {
		return fmt.Errorf("enrichment.timeout_seconds must be positive, got %d", c.Enrichment.TimeoutSeconds)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
