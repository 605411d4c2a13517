package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skyvault-io/skyvault/internal/blob"
	"github.com/skyvault-io/skyvault/internal/drive"
	"github.com/skyvault-io/skyvault/internal/engine"
	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/jobs"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the trash and orphan sweeps once and exit",
	Long: `Purges trashed files past the retention window and reconciles blob
storage against the metadata store: rows whose blob is gone are removed,
blobs no row references are deleted. The serve command runs both sweeps
periodically; sweep exists for cron jobs and manual cleanup.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	blobs, err := blob.Open(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	// One-shot runs skip redis entirely: no cache, audit events stay
	// in memory.
	broker := events.NewBroker()
	defer broker.Close()

	eng := engine.New(engine.Options{
		Store:    st,
		Blobs:    blobs,
		Recorder: events.NewMemoryRecorder(),
		Broker:   broker,
		Drive:    drive.NewAgent(),
		Config:   cfg,
	})

	start := time.Now()

	retention := time.Duration(cfg.Jobs.TrashRetentionDays) * 24 * time.Hour
	jobs.NewTrashSweeper(eng, st, retention, cfg.Jobs.TrashInterval).Sweep(ctx)
	jobs.NewOrphanSweeper(st, blobs, cfg.Jobs.OrphanInterval).Sweep(ctx)

	logger.Info("sweep complete", logger.KeyDurationMs, time.Since(start).Milliseconds())
	return nil
}
