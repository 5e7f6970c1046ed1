package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment names
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds all configuration for the application
type Config struct {
	// Environment selects between the production and development API URL
	Environment string `yaml:"environment" validate:"oneof=production development"`

	// API Configuration
	API APIConfig `yaml:"api"`

	// Session Configuration
	Session SessionConfig `yaml:"session"`

	// Local admin console configuration
	Dash DashConfig `yaml:"dash"`

	// Logging Configuration
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds REST API connection settings
type APIConfig struct {
	BaseURL         string        `yaml:"base_url" validate:"required,url"`
	ProdBaseURL     string        `yaml:"prod_base_url" validate:"omitempty,url"`
	Timeout         time.Duration `yaml:"timeout" validate:"gte=1s,lte=60s"`
	WithCredentials bool          `yaml:"with_credentials"`
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	// RefreshSchedule is a cron descriptor such as "@every 4m"
	RefreshSchedule string `yaml:"refresh_schedule" validate:"required"`
	LoginPath       string `yaml:"login_path" validate:"required,startswith=/"`
	HomePath        string `yaml:"home_path" validate:"required,startswith=/"`
}

// DashConfig holds admin console server settings
type DashConfig struct {
	Addr         string   `yaml:"addr" validate:"required,hostname_port"`
	AllowOrigins []string `yaml:"allow_origins" validate:"dive,url"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"` // json, console
}

// BaseURL returns the API base URL for the configured environment
func (c *Config) BaseURL() string {
	if c.Environment == EnvProduction && c.API.ProdBaseURL != "" {
		return c.API.ProdBaseURL
	}
	return c.API.BaseURL
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		API: APIConfig{
			BaseURL:         "http://localhost:8000/api",
			Timeout:         5 * time.Second,
			WithCredentials: true,
		},
		Session: SessionConfig{
			RefreshSchedule: "@every 4m",
			LoginPath:       "/login",
			HomePath:        "/",
		},
		Dash: DashConfig{
			Addr: "127.0.0.1:5173",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from .env files, an optional YAML file named by
// STOCKPILE_CONFIG and environment variables, in increasing precedence.
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg := Default()

	if path := os.Getenv("STOCKPILE_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile overlays YAML settings onto cfg
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("STOCKPILE_ENV"); v != "" {
		cfg.Environment = strings.ToLower(v)
	}
	if v := os.Getenv("STOCKPILE_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("STOCKPILE_PROD_API_URL"); v != "" {
		cfg.API.ProdBaseURL = v
	}

	// Timeout is given in milliseconds
	if v := os.Getenv("STOCKPILE_API_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STOCKPILE_API_TIMEOUT_MS %q: %w", v, err)
		}
		cfg.API.Timeout = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("STOCKPILE_WITH_CREDENTIALS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid STOCKPILE_WITH_CREDENTIALS %q: %w", v, err)
		}
		cfg.API.WithCredentials = b
	}

	if v := os.Getenv("STOCKPILE_REFRESH_SCHEDULE"); v != "" {
		cfg.Session.RefreshSchedule = v
	}
	if v := os.Getenv("STOCKPILE_LOGIN_PATH"); v != "" {
		cfg.Session.LoginPath = v
	}
	if v := os.Getenv("STOCKPILE_HOME_PATH"); v != "" {
		cfg.Session.HomePath = v
	}

	if v := os.Getenv("STOCKPILE_DASH_ADDR"); v != "" {
		cfg.Dash.Addr = v
	}
	if v := os.Getenv("STOCKPILE_DASH_ORIGINS"); v != "" {
		cfg.Dash.AllowOrigins = splitList(v)
	}

	// Logging configuration
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}

	return nil
}

// Validate checks cfg against its struct tags
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
