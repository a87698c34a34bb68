package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server ServerConfig
	App    AppConfig
	Cache  CacheConfig
	Remote RemoteConfig
	Sync   SyncConfig
}

// ServerConfig holds HTTP control-plane settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"SERVER_PORT" default:"8090"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"greencart-sync"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// CacheConfig holds local goal cache settings.
type CacheConfig struct {
	Backend string `envconfig:"CACHE_BACKEND" default:"sqlite"` // sqlite, redis, mysql, or memory
	Path    string `envconfig:"CACHE_SQLITE_PATH" default:"./data/goalcache.db"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	MySQLHost     string `envconfig:"MYSQL_HOST" default:"localhost"`
	MySQLPort     int    `envconfig:"MYSQL_PORT" default:"3306"`
	MySQLName     string `envconfig:"MYSQL_NAME" default:"greencart"`
	MySQLUser     string `envconfig:"MYSQL_USER" default:"root"`
	MySQLPassword string `envconfig:"MYSQL_PASS" default:""`
}

// RemoteConfig holds remote goal API settings.
type RemoteConfig struct {
	// BaseURL is scheme and host only; the client owns the /api/... paths.
	BaseURL     string        `envconfig:"REMOTE_BASE_URL" default:"http://localhost:8080"`
	AccessToken string        `envconfig:"REMOTE_ACCESS_TOKEN" default:""`
	UserID      string        `envconfig:"REMOTE_USER_ID" default:""`
	Timeout     time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`
}

// SyncConfig holds sync engine settings.
type SyncConfig struct {
	AutoSyncInterval  time.Duration `envconfig:"SYNC_AUTO_INTERVAL" default:"5m"`
	MaxRetries        int           `envconfig:"SYNC_MAX_RETRIES" default:"3"`
	SyncThreshold     time.Duration `envconfig:"SYNC_THRESHOLD" default:"5m"`
	StabilityDelay    time.Duration `envconfig:"SYNC_STABILITY_DELAY" default:"2s"`
	ConnectivityProbe time.Duration `envconfig:"SYNC_CONNECTIVITY_PROBE" default:"30s"`
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// MySQLDSN returns the MySQL data source name.
func (c *CacheConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.MySQLUser, c.MySQLPassword, c.MySQLHost, c.MySQLPort, c.MySQLName)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
