package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// devSecret is only used when APP_ENV=development and JWT_SECRET is unset.
const devSecret = "dev-secret-change-me"

// Config holds all application configuration.
type Config struct {
	Env      string         `yaml:"env"` // APP_ENV
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Items    ItemsConfig    `yaml:"items"`
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file path
}

// HTTPConfig contains REST API settings.
type HTTPConfig struct {
	Address         string        `yaml:"address"` // e.g. ":8080"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GRPCConfig contains gRPC server settings. An empty address disables the gRPC server.
type GRPCConfig struct {
	Address string `yaml:"address"`
}

// MetricsConfig contains the Prometheus listener settings. An empty address disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // logrus level name
}

// ItemsConfig controls item authorization.
type ItemsConfig struct {
	// OwnerScopedMutations restricts update and delete to the item's owner.
	OwnerScopedMutations bool `yaml:"owner_scoped_mutations"`
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "todo.db"},
		HTTP:     HTTPConfig{Address: ":8080", ShutdownTimeout: 5 * time.Second},
		GRPC:     GRPCConfig{Address: ":50051"},
		Metrics:  MetricsConfig{Address: ":9090"},
		Auth:     AuthConfig{TokenTTL: 3 * time.Hour},
		Log:      LogConfig{Level: "info"},
	}
}

// EnvDevelopment is the APP_ENV value that permits running without JWT_SECRET.
const EnvDevelopment = "development"

// Load builds the configuration from, in increasing precedence: built-in
// defaults, the YAML file named by CONFIG_FILE, a local .env file and the
// process environment. JWT_SECRET is required unless APP_ENV is
// "development", in which case a fixed development secret is used.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		if cfg.Env != EnvDevelopment {
			return nil, errors.New("JWT_SECRET environment variable is not set; required outside APP_ENV=development")
		}
		cfg.Auth.JWTSecret = devSecret
	}
	return cfg, nil
}

func load() (*Config, error) {
	// .env is optional; variables already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnv("APP_ENV", c.Env)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.HTTP.Address = getEnv("HTTP_ADDRESS", c.HTTP.Address)
	c.GRPC.Address = getEnv("GRPC_ADDRESS", c.GRPC.Address)
	c.Metrics.Address = getEnv("METRICS_ADDRESS", c.Metrics.Address)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	var err error
	if c.Auth.TokenTTL, err = getEnvDuration("TOKEN_TTL", c.Auth.TokenTTL); err != nil {
		return err
	}
	if c.HTTP.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout); err != nil {
		return err
	}
	if c.Items.OwnerScopedMutations, err = getEnvBool("OWNER_SCOPED_MUTATIONS", c.Items.OwnerScopedMutations); err != nil {
		return err
	}
	return nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		return b, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{env: %s, DB: %s, HTTP: %s, gRPC: %s, metrics: %s, tokenTTL: %s, ownerScoped: %t, Auth: *** (masked) ***}",
		c.Env, c.Database.Path, c.HTTP.Address, c.GRPC.Address, c.Metrics.Address, c.Auth.TokenTTL, c.Items.OwnerScopedMutations)
}
