package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AVS_STORE_DRIVER.
const EnvPrefix = "AVS"

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverWeaviate = "weaviate"
	DriverMemory   = "memory"
)

// Config holds all configuration for the address verification service
type Config struct {
	// API configuration
	API struct {
		Host                string `mapstructure:"host"`
		Port                int    `mapstructure:"port"`
		ReadTimeoutSecs     int    `mapstructure:"read_timeout_secs"`
		WriteTimeoutSecs    int    `mapstructure:"write_timeout_secs"`
		IdleTimeoutSecs     int    `mapstructure:"idle_timeout_secs"`
		ShutdownTimeoutSecs int    `mapstructure:"shutdown_timeout_secs"`
	} `mapstructure:"api"`

	// Record store configuration
	Store struct {
		Driver           string `mapstructure:"driver"`
		QueryTimeoutSecs int    `mapstructure:"query_timeout_secs"`
		// SeedFile preloads the memory store from a CSV or JSON file
		SeedFile string `mapstructure:"seed_file"`

		Mongo struct {
			URI               string `mapstructure:"uri"`
			Database          string `mapstructure:"database"`
			AddressCollection string `mapstructure:"address_collection"`
			KeyCollection     string `mapstructure:"key_collection"`
		} `mapstructure:"mongo"`

		Postgres struct {
			DSN            string `mapstructure:"dsn"`
			MigrateOnStart bool   `mapstructure:"migrate_on_start"`
		} `mapstructure:"postgres"`

		Weaviate struct {
			Host         string `mapstructure:"host"`
			Scheme       string `mapstructure:"scheme"`
			APIKey       string `mapstructure:"api_key"`
			AddressClass string `mapstructure:"address_class"`
			KeyClass     string `mapstructure:"key_class"`
		} `mapstructure:"weaviate"`
	} `mapstructure:"store"`

	// Matching configuration
	Matching struct {
		SimilarityFloor     int    `mapstructure:"similarity_floor"`
		FuzzyCandidateLimit int    `mapstructure:"fuzzy_candidate_limit"`
		Scorer              string `mapstructure:"scorer"`
	} `mapstructure:"matching"`

	// Basic auth credentials for the reference data endpoints
	Auth struct {
		AdminUser     string `mapstructure:"admin_user"`
		AdminPassword string `mapstructure:"admin_password"`
	} `mapstructure:"auth"`

	// Requests per hour and client IP, per route
	RateLimits struct {
		Enabled bool `mapstructure:"enabled"`
		Verify  int  `mapstructure:"verify"`
		List    int  `mapstructure:"list"`
		Auth    int  `mapstructure:"auth"`
		Create  int  `mapstructure:"create"`
		Update  int  `mapstructure:"update"`
		Delete  int  `mapstructure:"delete"`
	} `mapstructure:"rate_limits"`

	// Change event publishing
	Events struct {
		NATSURL       string `mapstructure:"nats_url"`
		SubjectPrefix string `mapstructure:"subject_prefix"`
	} `mapstructure:"events"`

	// Logging configuration
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Load loads the configuration from file and environment variables. A .env
// file in the working directory is loaded first; variables already set in
// the environment win.
func Load(configPath string) (*Config, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	v := viper.New()

	// Set default values
	setDefaults(v)

	// If config file is provided, read it
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in the current directory
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Read environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Only an explicitly named file has to exist
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Unmarshal the config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMongo, DriverPostgres, DriverWeaviate, DriverMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverPostgres && c.Store.Postgres.DSN == "" {
		return fmt.Errorf("config: store.postgres.dsn is required for the postgres driver")
	}
	if c.Matching.SimilarityFloor < 0 || c.Matching.SimilarityFloor > 100 {
		return fmt.Errorf("config: matching.similarity_floor must be within 0..100, got %d", c.Matching.SimilarityFloor)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("config: invalid api.port %d", c.API.Port)
	}
	return nil
}

// Addr returns the listen address of the API server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// QueryTimeout returns the per-request store deadline.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Store.QueryTimeoutSecs) * time.Second
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.API.ShutdownTimeoutSecs) * time.Second
}

// setDefaults sets default values for the configuration
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout_secs", 30)
	v.SetDefault("api.write_timeout_secs", 30)
	v.SetDefault("api.idle_timeout_secs", 60)
	v.SetDefault("api.shutdown_timeout_secs", 10)

	// Store defaults
	v.SetDefault("store.driver", DriverMongo)
	v.SetDefault("store.query_timeout_secs", 5)
	v.SetDefault("store.seed_file", "")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "avs")
	v.SetDefault("store.mongo.address_collection", "addresses")
	v.SetDefault("store.mongo.key_collection", "api_keys")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.migrate_on_start", false)
	v.SetDefault("store.weaviate.host", "localhost:8080")
	v.SetDefault("store.weaviate.scheme", "http")
	v.SetDefault("store.weaviate.api_key", "")
	v.SetDefault("store.weaviate.address_class", "Address")
	v.SetDefault("store.weaviate.key_class", "APIKey")

	// Matching defaults
	v.SetDefault("matching.similarity_floor", 30)
	v.SetDefault("matching.fuzzy_candidate_limit", 200)
	v.SetDefault("matching.scorer", "partial_ratio")

	// Auth defaults
	v.SetDefault("auth.admin_user", "")
	v.SetDefault("auth.admin_password", "")

	// Rate limit defaults, requests per hour
	v.SetDefault("rate_limits.enabled", true)
	v.SetDefault("rate_limits.verify", 30)
	v.SetDefault("rate_limits.list", 15)
	v.SetDefault("rate_limits.auth", 15)
	v.SetDefault("rate_limits.create", 10)
	v.SetDefault("rate_limits.update", 5)
	v.SetDefault("rate_limits.delete", 5)

	// Event defaults
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "avs.address")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// SaveDefault saves the default configuration to a file
func SaveDefault(configPath string) error {
	v := viper.New()
	setDefaults(v)

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return v.WriteConfigAs(configPath)
}
