package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors. Struct tags cover the
// per-field constraints; cross-field rules follow below.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	switch cfg.Storage.Driver {
	case DriverLocal:
		if cfg.Storage.UploadDir == "" {
			return fmt.Errorf("storage: upload_dir is required for the local driver")
		}
		if !filepath.IsAbs(cfg.Storage.UploadDir) {
			return fmt.Errorf("storage: upload_dir must be an absolute path")
		}
		if cfg.Encryption.Secret == "" {
			return fmt.Errorf("encryption: secret is required for the local driver")
		}
	case DriverS3:
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage: s3.bucket is required for the s3 driver")
		}
		if cfg.Storage.S3.AccessKey == "" || cfg.Storage.S3.SecretKey == "" {
			return fmt.Errorf("storage: s3 credentials are required for the s3 driver")
		}
	}

	// Queued audit jobs must never outlive a day.
	if cfg.Audit.JobTTL >= 24*time.Hour {
		return fmt.Errorf("audit: job_ttl must be below 24h, got %s", cfg.Audit.JobTTL)
	}

	return nil
}
