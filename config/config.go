package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL   string        `env:"DATABASE_URL" yaml:"database_url"`
	ServerPort    string        `env:"SERVER_PORT" yaml:"server_port"`
	BaseURL       string        `env:"BASE_URL" yaml:"base_url"`
	JWTSecret     string        `env:"JWT_SECRET" yaml:"jwt_secret"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" yaml:"jwt_expiration"`
	UploadDir     string        `env:"UPLOAD_DIR" yaml:"upload_dir"`
	LogLevel      string        `env:"LOG_LEVEL" yaml:"log_level"`

	Policy Policy `yaml:"policy"`
}

// defaults are applied in code, not in envDefault tags: a tag default
// would overwrite file-provided values whenever the variable is unset,
// breaking the default < file < environment precedence.
func defaultConfig() *Config {
	return &Config{
		DatabaseURL:   "postgresql://postgres@localhost:5432/contracthub",
		ServerPort:    "8080",
		BaseURL:       "http://localhost:8080",
		JWTSecret:     "your-super-secret-key-change-in-production",
		JWTExpiration: 24 * time.Hour,
		UploadDir:     "uploads",
		LogLevel:      "info",
	}
}

// Policy holds the behavior switches for the points where observed
// revisions of this system disagreed. Defaults match the source's
// strictest reading.
type Policy struct {
	// ApproveWhenUnsupervised controls a submission whose submitter has
	// zero assigned supervisors: false keeps it perpetually pending,
	// true lets the empty set resolve to approved.
	ApproveWhenUnsupervised bool `env:"APPROVE_WHEN_UNSUPERVISED" yaml:"approve_when_unsupervised"`
	// InviteEmailCaseInsensitive relaxes the accept-time email check
	// from byte-exact equality to a case fold.
	InviteEmailCaseInsensitive bool `env:"INVITE_EMAIL_CASE_INSENSITIVE" yaml:"invite_email_case_insensitive"`
	// ConsumeSiblingInvites also consumes every other pending invite for
	// the same email and contract when one of them is accepted.
	ConsumeSiblingInvites bool `env:"CONSUME_SIBLING_INVITES" yaml:"consume_sibling_invites"`
}

// Load builds the configuration from an optional YAML file (CONFIG_FILE)
// overlaid with environment variables; the environment wins.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}
