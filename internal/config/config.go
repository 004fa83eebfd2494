package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the LoRA Studio API server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	MigrationsDir      string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
}

type RedisConfig struct {
	URL string
}

// StorageConfig points at the MinIO bucket that receives training images.
type StorageConfig struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	Region          string
	Bucket          string
	UploadURLExpiry time.Duration
}

type JobsConfig struct {
	// ActiveRetention is how long a finished job is still reported as the
	// caller's active job, so pollers can observe the terminal status.
	ActiveRetention time.Duration
	StaleAfter      time.Duration
	ReaperInterval  time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("LORA_PORT", 8080),
			Env:                envString("LORA_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 300),
			MigrationsDir:      envString("MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectAttempts: envInt("DATABASE_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Endpoint:        os.Getenv("MINIO_ENDPOINT"),
			AccessKey:       os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey:       os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:          envBool("MINIO_USE_SSL", false),
			Region:          envString("MINIO_REGION", "us-east-1"),
			Bucket:          envString("MINIO_BUCKET", "training-images"),
			UploadURLExpiry: envDuration("UPLOAD_URL_EXPIRY", 15*time.Minute),
		},
		Jobs: JobsConfig{
			ActiveRetention: envDuration("ACTIVE_JOB_RETENTION", 10*time.Minute),
			StaleAfter:      envDuration("STALE_JOB_AFTER", 3*time.Hour),
			ReaperInterval:  envDuration("REAPER_INTERVAL", time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("MINIO_ENDPOINT is required")
	}
	if strings.Contains(c.Storage.Endpoint, "://") {
		return fmt.Errorf("MINIO_ENDPOINT must be host[:port] without a scheme, got %q", c.Storage.Endpoint)
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}
	if c.Storage.UploadURLExpiry < time.Minute || c.Storage.UploadURLExpiry > 7*24*time.Hour {
		return fmt.Errorf("UPLOAD_URL_EXPIRY must be between 1m and 168h, got %s", c.Storage.UploadURLExpiry)
	}

	if c.Jobs.ReaperInterval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL must be positive, got %s", c.Jobs.ReaperInterval)
	}
	if c.Jobs.StaleAfter <= 0 {
		return fmt.Errorf("STALE_JOB_AFTER must be positive, got %s", c.Jobs.StaleAfter)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
