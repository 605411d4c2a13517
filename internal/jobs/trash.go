// Package jobs runs the scheduled maintenance sweeps: trash expiry and
// orphan reconciliation between the metadata store and the blob store.
// Each sweeper runs serialised on its own ticker and never inherits a
// request deadline.
package jobs

import (
	"context"
	"time"

	"github.com/skyvault-io/skyvault/internal/engine"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
)

// TrashSweeper permanently deletes rows whose trash retention has run
// out, through the engine's purge path so bytes, cache and audit stay
// coherent.
type TrashSweeper struct {
	engine    *engine.Engine
	store     *store.Store
	retention time.Duration
	interval  time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewTrashSweeper builds a sweeper; Start arms it.
func NewTrashSweeper(eng *engine.Engine, st *store.Store, retention, interval time.Duration) *TrashSweeper {
	return &TrashSweeper{
		engine:    eng,
		store:     st,
		retention: retention,
		interval:  interval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start runs one sweep per interval until Stop is called.
func (s *TrashSweeper) Start() {
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
func (s *TrashSweeper) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// Sweep purges everything trashed before the retention cutoff. Per-user
// failures are logged and the sweep moves on.
func (s *TrashSweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)
	rows, err := s.store.ListExpiredTrash(ctx, cutoff)
	if err != nil {
		logger.Error("trash sweep: listing expired rows failed", logger.KeyError, err)
		return
	}
	if len(rows) == 0 {
		return
	}

	byUser := make(map[string][]string)
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row.ID)
	}

	for userID, ids := range byUser {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := s.engine.Purge(ctx, userID, ids); err != nil {
			logger.Error("trash sweep: purge failed",
				logger.KeyUserID, userID, logger.KeyCount, len(ids), logger.KeyError, err)
			continue
		}
		logger.Info("trash sweep: purged expired rows",
			logger.KeyUserID, userID, logger.KeyCount, len(ids))
	}
}
