// Package blob provides object-level byte storage behind a single driver
// contract. Two drivers exist: local encrypted files under the upload
// root, and S3-compatible object storage. Custom-drive bytes never pass
// through here; they are addressed directly by absolute path.
package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/skyvault-io/skyvault/pkg/config"
)

// Store is the driver contract. Keys are the relative storage keys from
// file rows; drivers must validate them before touching the backend.
type Store interface {
	// Put streams bytes to the object. On failure no partial object is
	// visible under key.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get returns a readable stream. Fails with models.ErrNotFound if the
	// object is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Absence is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// ModTime returns the object's last modification time. Fails with
	// models.ErrNotFound if the object is absent.
	ModTime(ctx context.Context, key string) (time.Time, error)

	// Rename moves oldKey to newKey without losing bytes on failure.
	Rename(ctx context.Context, oldKey, newKey string) error

	// List pages all keys through fn. Pagination is restartable and keeps
	// memory bounded; only reconciliation uses it.
	List(ctx context.Context, pageSize int, fn func(keys []string) error) error
}

// Open selects and initialises the configured driver. Called once at
// startup.
func Open(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverLocal:
		return NewLocalStore(cfg.UploadDir)
	case config.DriverS3:
		return NewS3Store(ctx, &cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
