package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	DataDir                 string   `yaml:"dataDir"`
	StorageRoot             string   `yaml:"storageRoot"`
	AdminPassword           string   `yaml:"adminPassword"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	SessionTTL              string   `yaml:"sessionTTL"`
	MaxUploadBytes          int64    `yaml:"maxUploadBytes"`
	MaxBatchFiles           int      `yaml:"maxBatchFiles"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	TrustedProxies          []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("IMAGESTORE_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("IMAGESTORE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("IMAGESTORE_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
	if v := os.Getenv("IMAGESTORE_ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("IMAGESTORE_SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("IMAGESTORE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("IMAGESTORE_MAX_BATCH_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxBatchFiles = n
		}
	}
	if v := os.Getenv("IMAGESTORE_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.StorageRoot == "" {
		cfg.StorageRoot = "uploads"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 * 1024 * 1024
	}
	if cfg.MaxBatchFiles <= 0 {
		cfg.MaxBatchFiles = 50
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "24h"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.AdminPassword == "" {
		return errors.New("config: adminPassword is required (set in config.yaml or IMAGESTORE_ADMIN_PASSWORD)")
	}
	return nil
}

// ParseSessionTTL converts the configured TTL string into a duration.
func ParseSessionTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse session TTL %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("session TTL must be positive, got %q", raw)
	}
	return d, nil
}

// RegistryPath returns the location of the gallery registry document.
func (c FileConfig) RegistryPath() string {
	return filepath.Join(c.DataDir, "galleries.json")
}
