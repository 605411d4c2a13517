package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/metrics"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
	"github.com/skyvault-io/skyvault/pkg/config"
)

const (
	maxAuditRetries = 3

	// retryBase is the exponential backoff base between attempts.
	retryBase = 60 * time.Second
)

// Worker consumes audit jobs and writes them to the metadata store.
// Validation and integrity failures are permanent; everything else
// retries up to maxAuditRetries with exponential backoff.
type Worker struct {
	server  *asynq.Server
	store   *store.Store
	metrics *metrics.AuditMetrics
}

// NewWorker builds the audit consumer on the shared redis instance.
func NewWorker(redisCfg *config.RedisConfig, auditCfg *config.AuditConfig, st *store.Store, m *metrics.AuditMetrics) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisCfg.Addr(),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		asynq.Config{
			Concurrency: auditCfg.Concurrency,
			Queues:      map[string]int{auditQueue: 1},
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return retryBase << n
			},
			Logger: asynqLogger{},
		},
	)
	return &Worker{server: server, store: st, metrics: m}
}

// Start begins consuming in background goroutines.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAuditRecord, w.handleRecord)
	return w.server.Start(mux)
}

// Shutdown drains in-flight jobs and stops the consumer.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// handleRecord processes one audit job: validate, insert, count.
func (w *Worker) handleRecord(ctx context.Context, task *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		w.metrics.ObserveFailed("validation")
		logger.Error("audit job payload undecodable, dropping", logger.KeyError, err)
		return fmt.Errorf("decode audit payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := ev.Validate(); err != nil {
		w.metrics.ObserveFailed("validation")
		logger.Error("audit job invalid, dropping", logger.KeyError, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	row := &models.AuditEvent{
		RequestID:    ev.RequestID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Status:       ev.Status,
		IPAddress:    ev.IPAddress,
		UserAgent:    ev.UserAgent,
		ProcessingMS: ev.ProcessingMS,
	}
	if ev.UserID != "" {
		row.UserID = &ev.UserID
	}
	if ev.ErrorMessage != "" {
		row.ErrorMessage = &ev.ErrorMessage
	}
	if len(ev.Metadata) > 0 {
		if data, err := json.Marshal(ev.Metadata); err == nil {
			row.Metadata = string(data)
		}
	}

	if err := w.store.InsertAuditEvent(ctx, row); err != nil {
		if errors.Is(err, models.ErrIntegrity) || errors.Is(err, models.ErrConflict) {
			w.metrics.ObserveFailed("integrity")
			logger.Error("audit row rejected by database, dropping",
				logger.KeyAction, ev.Action, logger.KeyError, err)
			return fmt.Errorf("insert audit row: %v: %w", err, asynq.SkipRetry)
		}
		w.metrics.ObserveFailed("other")
		return fmt.Errorf("insert audit row: %w", err)
	}

	w.metrics.ObserveProcessed()
	return nil
}

// asynqLogger routes asynq internals through the process logger.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...any) { logger.Debug(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...any)  { logger.Info(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...any)  { logger.Warn(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...any) { logger.Error(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...any) { logger.Error(fmt.Sprint(args...)) }
