package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClientConfig holds configuration for the lora command-line client.
type ClientConfig struct {
	APIURL            string
	APIKey            string
	Timeout           time.Duration
	PollInterval      time.Duration
	PollMaxAttempts   int
	ImageCacheDir     string
	ImageCacheSize    int
	UploadConcurrency int
	LogFile           string
}

// LoadClient reads the client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIURL:            strings.TrimRight(os.Getenv("LORA_API_URL"), "/"),
		APIKey:            os.Getenv("LORA_API_KEY"),
		Timeout:           envDuration("LORA_API_TIMEOUT", 30*time.Second),
		PollInterval:      envDuration("LORA_POLL_INTERVAL", time.Second),
		PollMaxAttempts:   envInt("LORA_POLL_MAX_ATTEMPTS", 7200),
		ImageCacheDir:     envString("LORA_IMAGE_CACHE_DIR", defaultCacheDir()),
		ImageCacheSize:    envInt("LORA_IMAGE_CACHE_SIZE", 100),
		UploadConcurrency: envInt("LORA_UPLOAD_CONCURRENCY", 4),
		LogFile:           envString("LORA_LOG_FILE", "lora.log"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("LORA_API_URL is required")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("LORA_API_URL must start with http:// or https://, got %q", c.APIURL)
	}
	if c.APIKey == "" {
		return fmt.Errorf("LORA_API_KEY is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("LORA_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("LORA_POLL_MAX_ATTEMPTS must be positive, got %d", c.PollMaxAttempts)
	}
	if c.ImageCacheSize <= 0 {
		return fmt.Errorf("LORA_IMAGE_CACHE_SIZE must be positive, got %d", c.ImageCacheSize)
	}
	if c.UploadConcurrency <= 0 {
		return fmt.Errorf("LORA_UPLOAD_CONCURRENCY must be positive, got %d", c.UploadConcurrency)
	}
	return nil
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "lora", "previews")
	}
	return filepath.Join(dir, "lora", "previews")
}
