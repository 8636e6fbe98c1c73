package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is used when neither --config nor CATALOG_CONFIG is set.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                  string `yaml:"port"`
	DatabaseURL           string `yaml:"databaseURL"`
	LogLevel              string `yaml:"logLevel"`
	IndexPath             string `yaml:"indexPath"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`

	MaxOpenConns           int `yaml:"maxOpenConns"`
	MaxIdleConns           int `yaml:"maxIdleConns"`
	ConnMaxLifetimeSeconds int `yaml:"connMaxLifetimeSeconds"`

	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	ListCacheTTLSeconds     int      `yaml:"listCacheTTLSeconds"`
	WriteRateLimitPerMinute int      `yaml:"writeRateLimitPerMinute"`
	TrustedProxies          []string `yaml:"trustedProxies"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// ResolvePath applies the CATALOG_CONFIG override and the default path.
func ResolvePath(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("CATALOG_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path, applies environment overrides and defaults,
// and validates the result. A missing file is tolerated so the service can be
// configured from the environment alone.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.IndexPath, "CATALOG_INDEX_PATH")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	if v := strings.TrimSpace(os.Getenv("MINIO_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL: %w", err)
		}
		cfg.MinioUseSSL = b
	}
	if v := strings.TrimSpace(os.Getenv("CATALOG_TRUSTED_PROXIES")); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	ints := []struct {
		env string
		dst *int
	}{
		{"CATALOG_REQUEST_TIMEOUT_SECONDS", &cfg.RequestTimeoutSeconds},
		{"DB_MAX_OPEN_CONNS", &cfg.MaxOpenConns},
		{"DB_MAX_IDLE_CONNS", &cfg.MaxIdleConns},
		{"DB_CONN_MAX_LIFETIME_SECONDS", &cfg.ConnMaxLifetimeSeconds},
		{"CATALOG_LIST_CACHE_TTL_SECONDS", &cfg.ListCacheTTLSeconds},
		{"CATALOG_WRITE_RATE_LIMIT_PER_MINUTE", &cfg.WriteRateLimitPerMinute},
	}
	for _, item := range ints {
		v := strings.TrimSpace(os.Getenv(item.env))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", item.env, err)
		}
		*item.dst = n
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = "index.html"
	}
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = 10
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = min(5, cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetimeSeconds == 0 {
		cfg.ConnMaxLifetimeSeconds = 1800
	}
	if cfg.ListCacheTTLSeconds == 0 {
		cfg.ListCacheTTLSeconds = 30
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		return fmt.Errorf("config: port %q is not a valid port number", cfg.Port)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RequestTimeoutSeconds < 0 {
		return errors.New("config: requestTimeoutSeconds must not be negative")
	}
	if cfg.MaxOpenConns < 0 || cfg.MaxIdleConns < 0 || cfg.ConnMaxLifetimeSeconds < 0 {
		return errors.New("config: connection pool settings must not be negative")
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		return errors.New("config: maxIdleConns must not exceed maxOpenConns")
	}
	if cfg.WriteRateLimitPerMinute < 0 {
		return errors.New("config: writeRateLimitPerMinute must not be negative")
	}
	if cfg.ListCacheTTLSeconds < 0 {
		return errors.New("config: listCacheTTLSeconds must not be negative")
	}
	if cfg.MinioEnabled() {
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required when snapshots are configured")
		}
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required when snapshots are configured")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required when snapshots are configured")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required when snapshots are configured")
		}
	}
	return nil
}

// MinioEnabled reports whether any snapshot storage setting is present.
func (c FileConfig) MinioEnabled() bool {
	return c.MinioEndpoint != "" || c.MinioAccessKey != "" || c.MinioSecretKey != "" || c.MinioBucket != ""
}

// RequestTimeout returns the per-request deadline; zero disables it.
func (c FileConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ConnMaxLifetime returns the pool connection lifetime.
func (c FileConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// ListCacheTTL returns how long a cached list stays valid.
func (c FileConfig) ListCacheTTL() time.Duration {
	return time.Duration(c.ListCacheTTLSeconds) * time.Second
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
