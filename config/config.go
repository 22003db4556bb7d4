package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// APIConfig configures the client side of the users collection
type APIConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	Timeout    time.Duration `yaml:"timeout"`
	SuccessTTL time.Duration `yaml:"successTTL"`
}

// ServerConfig configures the reference collection service
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// ShardConfig represents configuration for a single shard
type ShardConfig struct {
	ShardID  int              `yaml:"shardID"`
	Primary  DatabaseConfig   `yaml:"primary"`
	Replicas []DatabaseConfig `yaml:"replicas"`
}

// DatabaseConfig represents a single database connection configuration
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // pgx, postgres or sqlite3
	DSN      string `yaml:"dsn"`    // overrides the generated connection string
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// Config holds the complete application configuration
type Config struct {
	API    APIConfig     `yaml:"api"`
	Server ServerConfig  `yaml:"server"`
	Shards []ShardConfig `yaml:"shards"`
}

// DriverName returns the database/sql driver to open the connection with
func (dc *DatabaseConfig) DriverName() string {
	if dc.Driver == "" {
		return "pgx"
	}
	return dc.Driver
}

// ConnectionString returns the connection string for the configured driver
func (dc *DatabaseConfig) ConnectionString() string {
	if dc.DSN != "" {
		return dc.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dc.Host, dc.Port, dc.User, dc.Password, dc.DBName,
	)
}

// DefaultConfig returns the default configuration: a local API on port 5000
// backed by a single Postgres shard without replicas
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:5000",
			Timeout:    10 * time.Second,
			SuccessTTL: 3 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":5000",
			ShutdownTimeout: 5 * time.Second,
		},
		Shards: []ShardConfig{
			{
				ShardID: 0,
				Primary: DatabaseConfig{
					Driver:   "pgx",
					Host:     "localhost",
					Port:     5432,
					User:     "postgres",
					Password: "postgres",
					DBName:   "users",
				},
			},
		},
	}
}

// Load reads a YAML file on top of the default configuration.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api base URL %q: %w", c.API.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api base URL %q: scheme must be http or https", c.API.BaseURL)
	}
	if c.API.SuccessTTL <= 0 {
		return errors.New("api successTTL must be positive")
	}
	if len(c.Shards) == 0 {
		return errors.New("at least one shard is required")
	}
	for i, shard := range c.Shards {
		if shard.ShardID != i {
			return fmt.Errorf("shard at position %d has shardID %d", i, shard.ShardID)
		}
	}
	return nil
}
