package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the flatquery configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Query    QueryConfig    `mapstructure:"query"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Host      string `mapstructure:"host"`
	APIPrefix string `mapstructure:"api_prefix"`

	// RateLimit is the number of requests per minute each client may make,
	// zero for no limit
	RateLimit int `mapstructure:"rate_limit"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// QueryConfig holds engine defaults
type QueryConfig struct {
	DefaultMaxDepth int  `mapstructure:"default_max_depth"`
	Diagnostics     bool `mapstructure:"diagnostics"`
}

// CatalogConfig points at an optional YAML entity catalogue
type CatalogConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvPrefix is the prefix of environment overrides (FLATQUERY_SERVER_PORT)
const EnvPrefix = "FLATQUERY"

var knownDrivers = []string{"sqlite3", "postgres", "pgx", "duckdb"}

// Load loads the configuration from path, or from flatquery.yml/flatquery.yaml
// in the working directory when path is empty. A missing default file is not
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", ":memory:")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.api_prefix", "")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("query.default_max_depth", 3)
	v.SetDefault("query.diagnostics", true)
	v.SetDefault("catalog.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flatquery")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DatabaseURL returns DATABASE_URL when set, otherwise the configured URL
func (c *Config) DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return c.Database.URL
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	// Validate API prefix format
	if cfg.Server.APIPrefix != "" {
		if !strings.HasPrefix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must start with '/', got: %s", cfg.Server.APIPrefix)
		}
		if strings.HasSuffix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must not end with '/', got: %s", cfg.Server.APIPrefix)
		}
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", cfg.Server.Port)
	}

	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got: %d", cfg.Server.RateLimit)
	}

	known := false
	for _, d := range knownDrivers {
		if cfg.Database.Driver == d {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("database.driver must be one of %s, got: %s", strings.Join(knownDrivers, ", "), cfg.Database.Driver)
	}

	if cfg.Query.DefaultMaxDepth < 1 || cfg.Query.DefaultMaxDepth > 5 {
		return fmt.Errorf("query.default_max_depth must be between 1 and 5, got: %d", cfg.Query.DefaultMaxDepth)
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got: %s", cfg.Log.Format)
	}
	return nil
}
