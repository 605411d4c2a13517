// Package events emits the two event streams of the engine: audit events
// through an at-least-once redis queue, and best-effort file-change
// notifications to in-process SSE subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/metrics"
	"github.com/skyvault-io/skyvault/pkg/config"
)

// TypeAuditRecord is the asynq task type for one audit event.
const TypeAuditRecord = "audit:record"

// auditQueue is the dedicated queue name.
const auditQueue = "audit"

// Audit statuses, mirrored from the store model so producers do not need
// a store import.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusError   = "error"
)

// Event is the audit job payload. One call to Record enqueues exactly one
// job carrying all of it.
type Event struct {
	RequestID    string         `json:"request_id"`
	UserID       string         `json:"user_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Status       string         `json:"status"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ProcessingMS int64          `json:"processing_time_ms"`
}

// Recorder accepts audit events after a successful commit. Emission
// failures are logged by implementations, never propagated: the mutation
// already happened.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// QueueRecorder submits events to the asynq queue backing the audit
// worker.
type QueueRecorder struct {
	client  *asynq.Client
	ttl     time.Duration
	metrics *metrics.AuditMetrics
}

// NewQueueRecorder connects a producer to the shared redis instance.
func NewQueueRecorder(cfg *config.RedisConfig, ttl time.Duration, m *metrics.AuditMetrics) *QueueRecorder {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &QueueRecorder{client: client, ttl: ttl, metrics: m}
}

// Record enqueues one audit job. MaxRetry and backoff are fixed by the
// worker contract; retention keeps completed jobs inspectable for the
// configured TTL (always under a day).
func (r *QueueRecorder) Record(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.ErrorCtx(ctx, "audit event not serialisable, dropping",
			logger.KeyAction, ev.Action, logger.KeyError, err)
		return
	}

	task := asynq.NewTask(TypeAuditRecord, payload)
	_, err = r.client.EnqueueContext(ctx, task,
		asynq.Queue(auditQueue),
		asynq.MaxRetry(maxAuditRetries),
		asynq.Retention(r.ttl),
	)
	if err != nil {
		// The commit already succeeded; losing the event is logged, the
		// request is not failed.
		logger.ErrorCtx(ctx, "audit enqueue failed",
			logger.KeyAction, ev.Action, logger.KeyError, err)
		r.metrics.ObserveFailed("enqueue")
		return
	}
	r.metrics.ObserveEnqueued()
}

// Close releases the producer connection.
func (r *QueueRecorder) Close() error {
	return r.client.Close()
}

// MemoryRecorder collects events in memory. Used by tests and one-shot
// commands that have no queue.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryRecorder returns an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends the event.
func (r *MemoryRecorder) Record(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a snapshot of everything recorded so far.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Validate checks the required job fields.
func (ev *Event) Validate() error {
	if ev.Action == "" {
		return fmt.Errorf("audit event missing action")
	}
	if ev.ResourceType == "" {
		return fmt.Errorf("audit event missing resource type")
	}
	switch ev.Status {
	case StatusSuccess, StatusFailure, StatusError:
		return nil
	default:
		return fmt.Errorf("audit event has invalid status %q", ev.Status)
	}
}
