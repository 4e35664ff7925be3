// Package config provides environment-based configuration management for the fleet
// control plane. It supports multiple environments (development, staging, production)
// with secure handling of sensitive data like service tokens and directory credentials.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fleetward/fleetward/pkg/logger"
)

// Config holds all configuration settings for the application.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Master     MasterConfig     `mapstructure:"master"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Logger     logger.Config    `mapstructure:"logger"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains basic application settings.
type AppConfig struct {
	Name        string        `mapstructure:"name"`
	Version     string        `mapstructure:"version"`
	Environment string        `mapstructure:"environment"`
	Port        int           `mapstructure:"port"`
	Host        string        `mapstructure:"host"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CORS        CORSConfig    `mapstructure:"cors"`
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// DatabaseConfig contains MongoDB connection settings.
type DatabaseConfig struct {
	URI                 string        `mapstructure:"uri"`
	Database            string        `mapstructure:"database"`
	MaxPoolSize         int           `mapstructure:"max_pool_size"`
	MinPoolSize         int           `mapstructure:"min_pool_size"`
	MaxConnIdleTime     time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout"`
	ServerSelectTimeout time.Duration `mapstructure:"server_select_timeout"`
}

// CacheConfig contains Redis connection and caching settings.
type CacheConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// AuthConfig contains session and password-hashing settings.
type AuthConfig struct {
	SessionLifespan    time.Duration `mapstructure:"session_lifespan"`
	BCryptCost         int           `mapstructure:"bcrypt_cost"`
	ForwardAuthEnabled bool          `mapstructure:"forward_auth_enabled"`
}

// MasterConfig contains connection settings for the configuration-management master this
// service fronts.
type MasterConfig struct {
	URL                string        `mapstructure:"url"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ServiceToken       string        `mapstructure:"service_token"`
}

// DirectoryConfig contains LDAP/Active Directory connection settings.
type DirectoryConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	URL                string `mapstructure:"url"`
	StartTLS           bool   `mapstructure:"start_tls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	BindDN             string `mapstructure:"bind_dn"`
	BindPassword       string `mapstructure:"bind_password"`
	BaseDN             string `mapstructure:"base_dn"`
	UserAttribute      string `mapstructure:"user_attribute"`
	UserFilter         string `mapstructure:"user_filter"`
}

// MonitoringConfig contains settings for application monitoring and metrics.
type MonitoringConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	MetricsPath     string `mapstructure:"metrics_path"`
	HealthCheckPath string `mapstructure:"health_check_path"`
}

// Load reads configuration from environment variables, config files, and defaults.
//
// Configuration precedence (highest to lowest):
// 1. Environment variables
// 2. Configuration file (config.yaml, config.json)
// 3. Default values
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/fleetward")

	viper.SetEnvPrefix("FLEETWARD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvironmentVariables()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// bindEnvironmentVariables explicitly binds environment variables to viper keys.
func bindEnvironmentVariables() {
	viper.BindEnv("app.name", "FLEETWARD_APP_NAME")
	viper.BindEnv("app.version", "FLEETWARD_APP_VERSION")
	viper.BindEnv("app.environment", "FLEETWARD_APP_ENVIRONMENT")
	viper.BindEnv("app.port", "FLEETWARD_APP_PORT")
	viper.BindEnv("app.host", "FLEETWARD_APP_HOST")
	viper.BindEnv("app.timeout", "FLEETWARD_APP_TIMEOUT")

	viper.BindEnv("app.cors.allowed_origins", "FLEETWARD_APP_CORS_ALLOWED_ORIGINS")
	viper.BindEnv("app.cors.allowed_methods", "FLEETWARD_APP_CORS_ALLOWED_METHODS")
	viper.BindEnv("app.cors.allowed_headers", "FLEETWARD_APP_CORS_ALLOWED_HEADERS")

	viper.BindEnv("database.uri", "FLEETWARD_DATABASE_URI")
	viper.BindEnv("database.database", "FLEETWARD_DATABASE_DATABASE")
	viper.BindEnv("database.max_pool_size", "FLEETWARD_DATABASE_MAX_POOL_SIZE")
	viper.BindEnv("database.min_pool_size", "FLEETWARD_DATABASE_MIN_POOL_SIZE")
	viper.BindEnv("database.max_conn_idle_time", "FLEETWARD_DATABASE_MAX_CONN_IDLE_TIME")
	viper.BindEnv("database.connect_timeout", "FLEETWARD_DATABASE_CONNECT_TIMEOUT")
	viper.BindEnv("database.server_select_timeout", "FLEETWARD_DATABASE_SERVER_SELECT_TIMEOUT")

	viper.BindEnv("cache.host", "FLEETWARD_CACHE_HOST")
	viper.BindEnv("cache.port", "FLEETWARD_CACHE_PORT")
	viper.BindEnv("cache.password", "FLEETWARD_CACHE_PASSWORD")
	viper.BindEnv("cache.database", "FLEETWARD_CACHE_DATABASE")
	viper.BindEnv("cache.max_retries", "FLEETWARD_CACHE_MAX_RETRIES")
	viper.BindEnv("cache.pool_size", "FLEETWARD_CACHE_POOL_SIZE")
	viper.BindEnv("cache.dial_timeout", "FLEETWARD_CACHE_DIAL_TIMEOUT")
	viper.BindEnv("cache.read_timeout", "FLEETWARD_CACHE_READ_TIMEOUT")
	viper.BindEnv("cache.write_timeout", "FLEETWARD_CACHE_WRITE_TIMEOUT")
	viper.BindEnv("cache.idle_timeout", "FLEETWARD_CACHE_IDLE_TIMEOUT")

	viper.BindEnv("auth.session_lifespan", "FLEETWARD_AUTH_SESSION_LIFESPAN")
	viper.BindEnv("auth.bcrypt_cost", "FLEETWARD_AUTH_BCRYPT_COST")
	viper.BindEnv("auth.forward_auth_enabled", "FLEETWARD_AUTH_FORWARD_AUTH_ENABLED")

	viper.BindEnv("master.url", "FLEETWARD_MASTER_URL")
	viper.BindEnv("master.insecure_skip_verify", "FLEETWARD_MASTER_INSECURE_SKIP_VERIFY")
	viper.BindEnv("master.timeout", "FLEETWARD_MASTER_TIMEOUT")
	viper.BindEnv("master.service_token", "FLEETWARD_MASTER_SERVICE_TOKEN")

	viper.BindEnv("directory.enabled", "FLEETWARD_DIRECTORY_ENABLED")
	viper.BindEnv("directory.url", "FLEETWARD_DIRECTORY_URL")
	viper.BindEnv("directory.start_tls", "FLEETWARD_DIRECTORY_START_TLS")
	viper.BindEnv("directory.insecure_skip_verify", "FLEETWARD_DIRECTORY_INSECURE_SKIP_VERIFY")
	viper.BindEnv("directory.bind_dn", "FLEETWARD_DIRECTORY_BIND_DN")
	viper.BindEnv("directory.bind_password", "FLEETWARD_DIRECTORY_BIND_PASSWORD")
	viper.BindEnv("directory.base_dn", "FLEETWARD_DIRECTORY_BASE_DN")
	viper.BindEnv("directory.user_attribute", "FLEETWARD_DIRECTORY_USER_ATTRIBUTE")
	viper.BindEnv("directory.user_filter", "FLEETWARD_DIRECTORY_USER_FILTER")

	viper.BindEnv("monitoring.enabled", "FLEETWARD_MONITORING_ENABLED")
	viper.BindEnv("monitoring.metrics_path", "FLEETWARD_MONITORING_METRICS_PATH")
	viper.BindEnv("monitoring.health_check_path", "FLEETWARD_MONITORING_HEALTH_CHECK_PATH")

	viper.BindEnv("logger.level", "FLEETWARD_LOGGER_LEVEL")
	viper.BindEnv("logger.environment", "FLEETWARD_LOGGER_ENVIRONMENT")
	viper.BindEnv("logger.output_path", "FLEETWARD_LOGGER_OUTPUT_PATH")
}

// setDefaults configures default values for all configuration options.
func setDefaults() {
	viper.SetDefault("app.name", "fleetward")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.port", 8080)
	viper.SetDefault("app.host", "0.0.0.0")
	viper.SetDefault("app.timeout", "30s")

	viper.SetDefault("app.cors.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("app.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("app.cors.allowed_headers", []string{"Authorization", "Content-Type"})

	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.database", "fleetward")
	viper.SetDefault("database.max_pool_size", 100)
	viper.SetDefault("database.min_pool_size", 10)
	viper.SetDefault("database.max_conn_idle_time", "5m")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("database.server_select_timeout", "10s")

	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", 6379)
	viper.SetDefault("cache.password", "")
	viper.SetDefault("cache.database", 0)
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.dial_timeout", "5s")
	viper.SetDefault("cache.read_timeout", "3s")
	viper.SetDefault("cache.write_timeout", "3s")
	viper.SetDefault("cache.idle_timeout", "5m")

	viper.SetDefault("auth.session_lifespan", "168h")
	viper.SetDefault("auth.bcrypt_cost", 12)
	viper.SetDefault("auth.forward_auth_enabled", false)

	viper.SetDefault("master.url", "https://localhost:8000")
	viper.SetDefault("master.insecure_skip_verify", false)
	viper.SetDefault("master.timeout", "30s")

	viper.SetDefault("directory.enabled", false)
	viper.SetDefault("directory.start_tls", false)
	viper.SetDefault("directory.user_attribute", "sAMAccountName")
	viper.SetDefault("directory.user_filter", "(sAMAccountName=%s)")

	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/api/metrics")
	viper.SetDefault("monitoring.health_check_path", "/health")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.environment", "development")
	viper.SetDefault("logger.output_path", "stdout")
}

// validate performs configuration validation to ensure required fields are set and values
// are within acceptable ranges for production deployment.
func validate(config *Config) error {
	if config.App.Environment == "production" {
		if config.Master.ServiceToken == "" {
			return fmt.Errorf("master service token must be configured for production")
		}
		if config.Database.URI == "mongodb://localhost:27017" {
			return fmt.Errorf("database URI must be configured for production")
		}
	}

	if config.App.Port < 1024 || config.App.Port > 65535 {
		return fmt.Errorf("app port must be between 1024 and 65535, got %d", config.App.Port)
	}

	if config.Database.MaxPoolSize < config.Database.MinPoolSize {
		return fmt.Errorf("database max_pool_size must be >= min_pool_size")
	}

	if config.Auth.BCryptCost < 10 || config.Auth.BCryptCost > 15 {
		return fmt.Errorf("bcrypt cost must be between 10 and 15, got %d", config.Auth.BCryptCost)
	}

	if config.Directory.Enabled && !strings.Contains(config.Directory.UserFilter, "%s") {
		return fmt.Errorf("directory user_filter must contain a %%s placeholder")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseURI returns the complete database connection URI.
func (c *Config) GetDatabaseURI() string {
	return c.Database.URI
}

// GetRedisAddr returns the Redis server address in host:port format.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Cache.Host, c.Cache.Port)
}

// GetServerAddr returns the server address in host:port format.
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}
