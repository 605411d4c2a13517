package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skyvault-io/skyvault/internal/api"
	"github.com/skyvault-io/skyvault/internal/blob"
	"github.com/skyvault-io/skyvault/internal/cache"
	"github.com/skyvault-io/skyvault/internal/cryptostream"
	"github.com/skyvault-io/skyvault/internal/drive"
	"github.com/skyvault-io/skyvault/internal/engine"
	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/jobs"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/metrics"
	"github.com/skyvault-io/skyvault/internal/share"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SkyVault server",
	Long: `Starts the HTTP API, the audit worker, the background sweepers and,
when enabled, the custom-drive watcher. Blocks until SIGINT or SIGTERM,
then shuts down gracefully.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("starting skyvault",
		"version", Version,
		logger.KeyDriver, string(cfg.Storage.Driver),
		"database", string(cfg.Database.Type))

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := blob.Open(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	var cipher *cryptostream.Cipher
	if cfg.Storage.Driver == config.DriverLocal {
		if cfg.Encryption.Secret == "" {
			logger.Warn("encryption secret not set, local blobs are stored in plaintext")
		} else {
			cipher, err = cryptostream.New(cfg.Encryption.Secret)
			if err != nil {
				return fmt.Errorf("failed to initialize encryption: %w", err)
			}
		}
	}

	cch := cache.New(&cfg.Redis, metrics.NewCacheMetrics())
	defer cch.Close()

	auditMetrics := metrics.NewAuditMetrics()
	recorder := events.NewQueueRecorder(&cfg.Redis, cfg.Audit.JobTTL, auditMetrics)
	defer recorder.Close()

	worker := events.NewWorker(&cfg.Redis, &cfg.Audit, st, auditMetrics)
	if err := worker.Start(); err != nil {
		return fmt.Errorf("failed to start audit worker: %w", err)
	}
	defer worker.Shutdown()

	broker := events.NewBroker()
	defer broker.Close()

	eng := engine.New(engine.Options{
		Store:    st,
		Blobs:    blobs,
		Cache:    cch,
		Cipher:   cipher,
		Recorder: recorder,
		Broker:   broker,
		Drive:    drive.NewAgent(),
		Config:   cfg,
	})
	shares := share.NewService(st)

	trashSweeper := jobs.NewTrashSweeper(eng, st,
		time.Duration(cfg.Jobs.TrashRetentionDays)*24*time.Hour, cfg.Jobs.TrashInterval)
	trashSweeper.Start()
	defer trashSweeper.Stop()

	orphanSweeper := jobs.NewOrphanSweeper(st, blobs, cfg.Jobs.OrphanInterval)
	orphanSweeper.Start()
	defer orphanSweeper.Stop()

	if cfg.Drive.Enabled {
		watcher, err := drive.NewWatcher(eng, st, cfg.Drive.Debounce)
		if err != nil {
			return fmt.Errorf("failed to create drive watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start drive watcher: %w", err)
		}
		defer watcher.Stop()
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: metrics.Handler()}
		go func() {
			logger.Info("metrics server listening", "address", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logger.KeyError, err)
			}
		}()
	}

	server := api.New(eng, shares, broker, api.HeaderResolver{Header: "X-User-ID"}, &cfg.Server)
	httpSrv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.Router(),
	}

	serverDone := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "address", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown incomplete", logger.KeyError, err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown incomplete", logger.KeyError, err)
		}
	}

	logger.Info("skyvault stopped")
	return nil
}
