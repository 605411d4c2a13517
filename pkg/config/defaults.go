package config

import (
	"strings"
	"time"

	"github.com/skyvault-io/skyvault/internal/bytesize"
)

// ApplyDefaults fills in any unspecified configuration fields. Zero values
// are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	cfg.Database.ApplyDefaults()
	applyRedisDefaults(&cfg.Redis)
	applyStorageDefaults(&cfg.Storage)
	applyAuditDefaults(&cfg.Audit)
	applyJobsDefaults(&cfg.Jobs)
	applyDriveDefaults(&cfg.Drive)
	applyMetricsDefaults(&cfg.Metrics)
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyRedisDefaults(cfg *RedisConfig) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Driver == "" {
		cfg.Driver = DriverLocal
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "/var/lib/skyvault/uploads"
	}
	if cfg.StorageLimit == 0 {
		cfg.StorageLimit = 10 * bytesize.GiB
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.JobTTL == 0 {
		cfg.JobTTL = 6 * time.Hour
	}
}

func applyJobsDefaults(cfg *JobsConfig) {
	if cfg.TrashRetentionDays == 0 {
		cfg.TrashRetentionDays = 15
	}
	if cfg.TrashInterval == 0 {
		cfg.TrashInterval = time.Hour
	}
	if cfg.OrphanInterval == 0 {
		cfg.OrphanInterval = 24 * time.Hour
	}
}

func applyDriveDefaults(cfg *DriveConfig) {
	if cfg.Debounce == 0 {
		cfg.Debounce = 2 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":9090"
	}
}
