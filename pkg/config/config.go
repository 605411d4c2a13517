// Package config loads and validates the SkyVault server configuration
// from file, environment variables, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/skyvault-io/skyvault/internal/bytesize"
	"github.com/skyvault-io/skyvault/internal/store"
)

// Config is the full SkyVault server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SKYVAULT_* plus the bare legacy names below)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains the HTTP API server settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the metadata store (PostgreSQL or SQLite)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Redis configures the listing cache and the audit queue backend
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`

	// Storage configures the blob store driver and limits
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Encryption configures at-rest encryption for local-driver blobs
	Encryption EncryptionConfig `mapstructure:"encryption" yaml:"encryption"`

	// Audit configures the asynchronous audit trail worker
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Jobs configures the background sweepers
	Jobs JobsConfig `mapstructure:"jobs" yaml:"jobs"`

	// Drive configures the custom-drive watcher
	Drive DriveConfig `mapstructure:"drive" yaml:"drive"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	// Listen is the address the API server binds, e.g. ":8080"
	Listen string `mapstructure:"listen" validate:"required" yaml:"listen"`

	// RequestTimeout bounds a single request; SSE streams are exempt
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0" yaml:"request_timeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// RedisConfig addresses the redis instance shared by cache and audit queue.
type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required" yaml:"host"`
	Port     int    `mapstructure:"port" validate:"gt=0,lte=65535" yaml:"port"`
	DB       int    `mapstructure:"db" validate:"gte=0" yaml:"db"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Addr returns the host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageDriver selects the blob store backend.
type StorageDriver string

const (
	DriverLocal StorageDriver = "local"
	DriverS3    StorageDriver = "s3"
)

// StorageConfig configures blob storage.
type StorageConfig struct {
	// Driver selects the backend: local, s3
	Driver StorageDriver `mapstructure:"driver" validate:"required,oneof=local s3" yaml:"driver"`

	// UploadDir is the root for local-driver blobs (storage keys join it)
	UploadDir string `mapstructure:"upload_dir" yaml:"upload_dir"`

	// StorageLimit is the default per-user byte limit. Accepts
	// human-readable sizes ("10Gi", "500MB") or plain byte counts.
	// Custom-drive users are exempt.
	StorageLimit bytesize.ByteSize `mapstructure:"storage_limit" yaml:"storage_limit"`

	// S3 configures the s3 driver
	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	AccessKey      string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey      string `mapstructure:"secret_key" yaml:"secret_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// EncryptionConfig holds the at-rest encryption secret. The data key is
// derived from it; local-driver blobs are unreadable without it.
type EncryptionConfig struct {
	Secret string `mapstructure:"secret" yaml:"secret"`
}

// AuditConfig configures the audit trail worker.
type AuditConfig struct {
	// Concurrency is the number of audit worker goroutines
	Concurrency int `mapstructure:"concurrency" validate:"gt=0" yaml:"concurrency"`

	// JobTTL is how long a queued audit job is retained. Must stay under
	// 24 hours.
	JobTTL time.Duration `mapstructure:"job_ttl" validate:"gt=0" yaml:"job_ttl"`
}

// JobsConfig configures the background sweepers.
type JobsConfig struct {
	// TrashRetentionDays is how long trashed rows are reclaimable
	TrashRetentionDays int `mapstructure:"trash_retention_days" validate:"gt=0" yaml:"trash_retention_days"`

	// TrashInterval is how often the trash expiry sweep runs
	TrashInterval time.Duration `mapstructure:"trash_interval" validate:"gt=0" yaml:"trash_interval"`

	// OrphanInterval is how often orphan reconciliation runs
	OrphanInterval time.Duration `mapstructure:"orphan_interval" validate:"gt=0" yaml:"orphan_interval"`
}

// DriveConfig configures the custom-drive watcher.
type DriveConfig struct {
	// Enabled turns the per-user filesystem watcher on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Debounce batches rapid filesystem events before reconciling
	Debounce time.Duration `mapstructure:"debounce" validate:"gt=0" yaml:"debounce"`
}

// MetricsConfig contains Prometheus metrics server configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// Load loads configuration from file, environment, and defaults.
// configPath may be empty, in which case the default search paths,
// environment variables and defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes the configuration to path in YAML. Permissions are
// restricted because the file carries credentials.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variable support and the config file
// location. Keys map to SKYVAULT_SECTION_FIELD; the bare variable names of
// the deployment surface (UPLOAD_DIR, STORAGE_DRIVER, S3_*, ...) are bound
// as aliases so existing deployments keep working.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SKYVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindLegacyEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("/etc/skyvault")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindLegacyEnv binds the unprefixed deployment variable names.
func bindLegacyEnv(v *viper.Viper) {
	aliases := map[string]string{
		"encryption.secret":           "ENCRYPTION_SECRET",
		"storage.upload_dir":          "UPLOAD_DIR",
		"storage.storage_limit":       "STORAGE_LIMIT",
		"storage.driver":              "STORAGE_DRIVER",
		"storage.s3.endpoint":         "S3_ENDPOINT",
		"storage.s3.bucket":           "S3_BUCKET",
		"storage.s3.region":           "S3_REGION",
		"storage.s3.access_key":       "S3_ACCESS_KEY",
		"storage.s3.secret_key":       "S3_SECRET_KEY",
		"storage.s3.force_path_style": "S3_FORCE_PATH_STYLE",
		"jobs.trash_retention_days":   "TRASH_RETENTION_DAYS",
		"audit.concurrency":           "AUDIT_CONCURRENCY",
		"audit.job_ttl":               "AUDIT_JOB_TTL",
		"redis.host":                  "REDIS_HOST",
		"redis.port":                  "REDIS_PORT",
		"redis.db":                    "REDIS_DB",
		"redis.password":              "REDIS_PASSWORD",
		"database.postgres.host":      "DATABASE_HOST",
		"database.postgres.port":      "DATABASE_PORT",
		"database.postgres.database":  "DATABASE_NAME",
		"database.postgres.user":      "DATABASE_USER",
		"database.postgres.password":  "DATABASE_PASSWORD",
	}
	for key, env := range aliases {
		// First name is the canonical prefixed form, second the legacy one.
		canonical := "SKYVAULT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, canonical, env)
	}
}

// readConfigFile reads the configuration file if one exists. A missing
// file is not an error; environment and defaults still apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDecodeHooks returns the combined decode hook for custom types:
// human-readable byte sizes and durations.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can say "10Gi" or "500MB" as well as plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			return bytesize.ParseByteSize(data.(string))
		case reflect.Int, reflect.Int64:
			return bytesize.ByteSize(reflect.ValueOf(data).Int()), nil
		case reflect.Uint, reflect.Uint64:
			return bytesize.ByteSize(reflect.ValueOf(data).Uint()), nil
		case reflect.Float64:
			return bytesize.ByteSize(data.(float64)), nil
		default:
			return data, nil
		}
	}
}
