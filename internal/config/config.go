// Package config loads server configuration from an optional YAML file and
// the environment. Environment variables take precedence over file values.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend kinds.
const (
	StorageS3         = "s3"
	StorageHTTP       = "http"
	StorageFilesystem = "filesystem"
	StorageSynthetic  = "synthetic"
)

// S3Config holds object-store connection settings. All fields are required
// for the s3 backend to come up.
type S3Config struct {
	Endpoint  *string `yaml:"endpoint"`
	Region    *string `yaml:"region"`
	AccessKey *string `yaml:"access_key"`
	SecretKey *string `yaml:"secret_key"`
	Bucket    *string `yaml:"bucket"`
	// PresignTTL bounds how long issued file URLs stay valid.
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// CrawlerConfig holds table discovery settings.
type CrawlerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	DryRun            bool          `yaml:"dry_run"`
	AutoCreateSchemas bool          `yaml:"auto_create_schemas"`
	// DiscoveryPattern uses {share}/{schema}/{table} placeholders to map
	// storage paths onto catalog coordinates.
	DiscoveryPattern string `yaml:"discovery_pattern"`
	MaxDepth         int    `yaml:"max_depth"`
	DefaultShare     string `yaml:"default_share"`
	DefaultSchema    string `yaml:"default_schema"`
}

// Config is the full server configuration.
type Config struct {
	Port         int    `yaml:"port"`
	Host         string `yaml:"host"`
	LogLevel     string `yaml:"log_level"`
	DatabasePath string `yaml:"database_path"`

	StorageType string `yaml:"storage_type"`

	S3 S3Config `yaml:"s3"`

	// HTTPBasePath is the local directory backing the http and filesystem
	// backends; HTTPBaseURL is the public prefix stamped onto file URLs by
	// the http backend.
	HTTPBasePath string `yaml:"http_base_path"`
	HTTPBaseURL  string `yaml:"http_base_url"`

	// SyntheticDir is where the synthetic backend materializes Parquet
	// files. Empty means a per-process temp directory.
	SyntheticDir     string `yaml:"synthetic_dir"`
	SyntheticBaseURL string `yaml:"synthetic_base_url"`

	SchemaCacheTTL     time.Duration `yaml:"schema_cache_ttl"`
	SchemaCacheEntries int           `yaml:"schema_cache_entries"`

	Crawler CrawlerConfig `yaml:"crawler"`

	CORSOrigins []string `yaml:"cors_origins"`
	RateLimit   float64  `yaml:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst"`

	// Warnings collects non-fatal issues found while loading.
	Warnings []string `yaml:"-"`
}

// Load builds the configuration. An optional YAML file (path from the
// CONFIG_FILE variable or the argument) is applied first, then environment
// variables override individual values.
func Load(configFile string) (*Config, error) {
	cfg := defaults()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configFile, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:         8080,
		Host:         "0.0.0.0",
		LogLevel:     "info",
		DatabasePath: "deltashare.db",
		StorageType:  StorageSynthetic,
		S3: S3Config{
			PresignTTL: time.Hour,
		},
		HTTPBasePath:       "./tables",
		HTTPBaseURL:        "http://localhost:8080/files",
		SchemaCacheTTL:     10 * time.Minute,
		SchemaCacheEntries: 256,
		Crawler: CrawlerConfig{
			Enabled:           false,
			Interval:          time.Hour,
			InitialDelay:      30 * time.Second,
			AutoCreateSchemas: true,
			MaxDepth:          4,
			DefaultShare:      "default",
			DefaultSchema:     "default",
		},
		RateLimit: 50,
		RateBurst: 100,
	}
}

func (c *Config) applyEnv() {
	setString(&c.Host, "HOST")
	setInt(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DatabasePath, "DATABASE_PATH")
	setString(&c.StorageType, "STORAGE_TYPE")

	setStringPtr(&c.S3.Endpoint, "S3_ENDPOINT")
	setStringPtr(&c.S3.Region, "S3_REGION")
	setStringPtr(&c.S3.AccessKey, "S3_ACCESS_KEY")
	setStringPtr(&c.S3.SecretKey, "S3_SECRET_KEY")
	setStringPtr(&c.S3.Bucket, "S3_BUCKET")
	setDuration(&c.S3.PresignTTL, "S3_PRESIGN_TTL")

	setString(&c.HTTPBasePath, "HTTP_BASE_PATH")
	setString(&c.HTTPBaseURL, "HTTP_BASE_URL")
	setString(&c.SyntheticDir, "SYNTHETIC_DIR")
	setString(&c.SyntheticBaseURL, "SYNTHETIC_BASE_URL")

	setDuration(&c.SchemaCacheTTL, "SCHEMA_CACHE_TTL")
	setInt(&c.SchemaCacheEntries, "SCHEMA_CACHE_ENTRIES")

	setBool(&c.Crawler.Enabled, "CRAWLER_ENABLED")
	setDuration(&c.Crawler.Interval, "CRAWLER_INTERVAL")
	setDuration(&c.Crawler.InitialDelay, "CRAWLER_INITIAL_DELAY")
	setBool(&c.Crawler.DryRun, "CRAWLER_DRY_RUN")
	setBool(&c.Crawler.AutoCreateSchemas, "CRAWLER_AUTO_CREATE_SCHEMAS")
	setString(&c.Crawler.DiscoveryPattern, "CRAWLER_DISCOVERY_PATTERN")
	setInt(&c.Crawler.MaxDepth, "CRAWLER_MAX_DEPTH")
	setString(&c.Crawler.DefaultShare, "CRAWLER_DEFAULT_SHARE")
	setString(&c.Crawler.DefaultSchema, "CRAWLER_DEFAULT_SCHEMA")

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}
	setFloat(&c.RateLimit, "RATE_LIMIT")
	setInt(&c.RateBurst, "RATE_BURST")
}

func (c *Config) validate() error {
	switch c.StorageType {
	case StorageS3, StorageHTTP, StorageFilesystem, StorageSynthetic:
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}
	if c.StorageType == StorageS3 && !c.HasS3Config() {
		c.Warnings = append(c.Warnings,
			"storage type is s3 but S3 settings are incomplete, backend will report unavailable")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// HasS3Config reports whether all required S3 settings are present.
func (c *Config) HasS3Config() bool {
	return c.S3.Endpoint != nil && c.S3.Region != nil &&
		c.S3.AccessKey != nil && c.S3.SecretKey != nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadDotEnv reads a .env file into the process environment without
// overriding variables that are already set. Missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStringPtr(dst **string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = &v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
