package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Environment selects which remote licensing host and which storage
// namespace is used.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvStaging    Environment = "staging"
)

// Base URLs of the remote licensing service, fixed per environment.
const (
	productionBaseURL = "https://api.pluglic.com/v1"
	stagingBaseURL    = "https://staging-api.pluglic.com/v1"
)

// ResolveEnvironment normalizes an environment name. Anything other than
// "staging" falls back to production without error, matching the behavior
// callers have come to depend on.
func ResolveEnvironment(name string) Environment {
	if Environment(name) == EnvStaging {
		return EnvStaging
	}
	return EnvProduction
}

// BaseURL returns the licensing service endpoint for the environment.
func (e Environment) BaseURL() string {
	if e == EnvStaging {
		return stagingBaseURL
	}
	return productionBaseURL
}

// Config represents the complete application configuration
type Config struct {
	Licensing LicensingConfig `yaml:"licensing" envconfig:"LICENSING"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
}

// LicensingConfig holds the settings the license manager is constructed
// from. It is passed by value so a manager instance never observes a
// config change made after its construction.
type LicensingConfig struct {
	Environment   string        `yaml:"environment" envconfig:"ENVIRONMENT"`
	CacheTTL      time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	RemoteTimeout time.Duration `yaml:"remote_timeout" envconfig:"REMOTE_TIMEOUT"`
	NetworkScope  bool          `yaml:"network_scope" envconfig:"NETWORK_SCOPE"`
	SiteOrigin    string        `yaml:"site_origin" envconfig:"SITE_ORIGIN"`
	AdminEmail    string        `yaml:"admin_email" envconfig:"ADMIN_EMAIL"`
	CacheMaxSize  int           `yaml:"cache_max_size" envconfig:"CACHE_MAX_SIZE"`
}

// ResolvedEnvironment returns the normalized environment.
func (l LicensingConfig) ResolvedEnvironment() Environment {
	return ResolveEnvironment(l.Environment)
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for the
// activation endpoints.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// StorageConfig selects the license store backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"`
	Path   string `yaml:"path" envconfig:"PATH"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() Config {
	return Config{
		Licensing: LicensingConfig{
			Environment:   string(EnvProduction),
			CacheTTL:      12 * time.Hour,
			RemoteTimeout: 5 * time.Second,
			SiteOrigin:    "http://localhost",
			AdminEmail:    "admin@localhost",
			CacheMaxSize:  256,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "data/pluglic.db",
		},
	}
}

// Load loads configuration from environment variables and, when present,
// a YAML config file. Precedence: environment > file > defaults.
func Load() (*Config, error) {
	return LoadFrom(configFilePath())
}

// LoadFrom loads configuration with an explicit config file path.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process("PLUGLIC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func configFilePath() string {
	if p := os.Getenv("PLUGLIC_CONFIG"); p != "" {
		return p
	}
	return "pluglic.yml"
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Licensing.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive: %s", c.Licensing.CacheTTL)
	}
	if c.Licensing.RemoteTimeout <= 0 {
		return fmt.Errorf("remote timeout must be positive: %s", c.Licensing.RemoteTimeout)
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}
	return nil
}
