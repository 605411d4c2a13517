package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/blob"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// orphanPageSize bounds one blob listing page during reconciliation.
const orphanPageSize = 500

// OrphanSweeper reconciles the blob store against the metadata store in
// both directions: blobs without a row are deleted, rows whose blob is
// gone are deleted. Custom-drive rows carry absolute paths and never
// enter the diff; their bytes are the user's own data.
type OrphanSweeper struct {
	store    *store.Store
	blobs    blob.Store
	interval time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewOrphanSweeper builds a sweeper; Start arms it.
func NewOrphanSweeper(st *store.Store, blobs blob.Store, interval time.Duration) *OrphanSweeper {
	return &OrphanSweeper{
		store:     st,
		blobs:     blobs,
		interval:  interval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start runs one sweep per interval until Stop is called.
func (s *OrphanSweeper) Start() {
	go func() {
		defer close(s.stoppedCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Sweep(context.Background())
			}
		}
	}()
}

// Stop halts the ticker and waits for an in-flight sweep to finish.
func (s *OrphanSweeper) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// Sweep runs one reconciliation pass. Per-item failures are logged and
// the pass continues; only a broken listing aborts it. Running the pass
// twice is the same as running it once.
func (s *OrphanSweeper) Sweep(ctx context.Context) {
	// Pass 1: rows referencing storage keys. Missing blobs take the row
	// with them.
	rowKeys := make(map[string]struct{})
	var missingRows int
	err := s.store.WalkStorageKeyRows(ctx, orphanPageSize, func(rows []*models.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, row := range rows {
			key := row.StorageKey()
			if key == "" {
				continue
			}
			rowKeys[key] = struct{}{}
			exists, err := s.blobs.Exists(ctx, key)
			if err != nil {
				logger.Warn("orphan sweep: existence check failed",
					logger.KeyKey, key, logger.KeyError, err)
				continue
			}
			if exists {
				continue
			}
			if err := s.store.WithTx(ctx, func(tx *gorm.DB) error {
				return store.DeleteFileRows(tx, row.UserID, []string{row.ID})
			}); err != nil {
				logger.Warn("orphan sweep: row delete failed",
					logger.KeyFileID, row.ID, logger.KeyError, err)
				continue
			}
			missingRows++
		}
		return nil
	})
	if err != nil {
		logger.Error("orphan sweep: row walk aborted", logger.KeyError, err)
		return
	}

	// Pass 2: blob keys with no referencing row. Uploads write the blob
	// before the row commits, so an unreferenced key younger than one
	// sweep interval may belong to an upload in flight. Those keys are
	// left for the next pass; by then the row exists or the key is stale.
	cutoff := time.Now().Add(-s.interval)
	var strayBlobs int
	err = s.blobs.List(ctx, orphanPageSize, func(keys []string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, key := range keys {
			if _, ok := rowKeys[key]; ok {
				continue
			}
			mtime, err := s.blobs.ModTime(ctx, key)
			if err != nil {
				if !errors.Is(err, models.ErrNotFound) {
					logger.Warn("orphan sweep: blob stat failed",
						logger.KeyKey, key, logger.KeyError, err)
				}
				continue
			}
			if mtime.After(cutoff) {
				continue
			}
			if err := s.blobs.Delete(ctx, key); err != nil {
				logger.Warn("orphan sweep: blob delete failed",
					logger.KeyKey, key, logger.KeyError, err)
				continue
			}
			strayBlobs++
		}
		return nil
	})
	if err != nil {
		logger.Error("orphan sweep: blob walk aborted", logger.KeyError, err)
		return
	}

	if missingRows > 0 || strayBlobs > 0 {
		logger.Info("orphan sweep: reconciled",
			"rows_removed", missingRows, "blobs_removed", strayBlobs)
	}
}
