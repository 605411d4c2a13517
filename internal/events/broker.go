package events

import (
	"sync"

	"github.com/skyvault-io/skyvault/internal/logger"
)

// ChangeKind classifies a file-change notification.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeMoved    ChangeKind = "moved"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRestored ChangeKind = "restored"
)

// Change is one SSE notification. ParentID is nil for root-level entries.
type Change struct {
	UserID   string     `json:"-"`
	Kind     ChangeKind `json:"kind"`
	ID       string     `json:"id"`
	ParentID *string    `json:"parent_id,omitempty"`
}

// subscriberBuffer bounds each subscriber channel. A subscriber that
// cannot keep up loses events rather than blocking the publisher.
const subscriberBuffer = 32

// Broker fans out file-change events to SSE subscribers, keyed by user.
// Delivery is best-effort and purely in-process; nothing is persisted.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Change
	nextID int
	closed bool
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan Change)}
}

// Subscribe registers a listener for one user's changes. The returned
// cancel function must be called when the client disconnects.
func (b *Broker) Subscribe(userID string) (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan Change)
	}
	b.subs[userID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if chans, ok := b.subs[userID]; ok {
			if c, ok := chans[id]; ok {
				delete(chans, id)
				close(c)
			}
			if len(chans) == 0 {
				delete(b.subs, userID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers a change to every subscriber of its user without
// blocking. Slow subscribers drop events.
func (b *Broker) Publish(change Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[change.UserID] {
		select {
		case ch <- change:
		default:
			logger.Debug("sse subscriber lagging, dropping event",
				logger.KeyUserID, change.UserID, logger.KeyFileID, change.ID)
		}
	}
}

// Close shuts every subscriber channel. Subsequent publishes are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string]map[int]chan Change)
}
