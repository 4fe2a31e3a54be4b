package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yeremiapane/concessions-app/client/kvstore"
	"github.com/yeremiapane/concessions-app/services"
)

// Pending order statuses.
const (
	StatusQueued  = "queued"
	StatusSyncing = "syncing"
	StatusSynced  = "synced"
	StatusFailed  = "failed"
)

// PendingOrder is one offline-captured order waiting for the server.
type PendingOrder struct {
	Fingerprint   string                       `json:"fingerprint"`
	Payload       services.CreateOrderRequest  `json:"payload"`
	Status        string                       `json:"status"`
	Attempts      int                          `json:"attempts"`
	NextAttemptAt time.Time                    `json:"next_attempt_at"`
	LastError     string                       `json:"last_error,omitempty"`
	QueuedAt      time.Time                    `json:"queued_at"`
}

// Fingerprint builds the idempotency token stamped on an order at capture
// time. It survives retries, restarts and re-queues unchanged.
func Fingerprint(deviceID string) string {
	return fmt.Sprintf("%s-%d-%s", deviceID, time.Now().UnixMilli(), uuid.New().String())
}

// Queue is the durable FIFO of offline orders for one theater, persisted in
// the device kvstore after every mutation.
type Queue struct {
	mu        sync.Mutex
	store     *kvstore.Store
	theaterID uint
	orders    []PendingOrder
}

func Open(store *kvstore.Store, theaterID uint) (*Queue, error) {
	q := &Queue{store: store, theaterID: theaterID}
	if _, err := store.Get(kvstore.PendingOrdersKey(theaterID), &q.orders); err != nil {
		return nil, err
	}
	// A crash mid-sync leaves syncing entries; they go back to queued because
	// the fingerprint makes the replay safe.
	for i := range q.orders {
		if q.orders[i].Status == StatusSyncing {
			q.orders[i].Status = StatusQueued
		}
	}
	return q, nil
}

// Enqueue appends an order to the tail.
func (q *Queue) Enqueue(payload services.CreateOrderRequest) (PendingOrder, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	order := PendingOrder{
		Fingerprint: payload.Fingerprint,
		Payload:     payload,
		Status:      StatusQueued,
		QueuedAt:    time.Now(),
	}
	q.orders = append(q.orders, order)
	return order, q.persistLocked()
}

// Discard removes a queued or failed order. Syncing orders cannot be removed;
// the server may already hold them.
func (q *Queue) Discard(fingerprint string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, o := range q.orders {
		if o.Fingerprint != fingerprint {
			continue
		}
		if o.Status == StatusSyncing {
			return fmt.Errorf("queue: order %s is syncing and cannot be discarded", fingerprint)
		}
		q.orders = append(q.orders[:i], q.orders[i+1:]...)
		return q.persistLocked()
	}
	return nil
}

// Retry requeues a failed order at its current position.
func (q *Queue) Retry(fingerprint string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.orders {
		if q.orders[i].Fingerprint == fingerprint && q.orders[i].Status == StatusFailed {
			q.orders[i].Status = StatusQueued
			q.orders[i].LastError = ""
			q.orders[i].NextAttemptAt = time.Time{}
			return q.persistLocked()
		}
	}
	return nil
}

// head returns the first order that is not synced. Submission is strictly
// in-order: a failed head blocks everything behind it until retried or
// discarded.
func (q *Queue) head() *PendingOrder {
	for i := range q.orders {
		switch q.orders[i].Status {
		case StatusQueued, StatusSyncing, StatusFailed:
			return &q.orders[i]
		}
	}
	return nil
}

// setStatus transitions the order with the given fingerprint, compare-and-swap
// on the expected current status.
func (q *Queue) setStatus(fingerprint, from, to string) bool {
	for i := range q.orders {
		if q.orders[i].Fingerprint == fingerprint && q.orders[i].Status == from {
			q.orders[i].Status = to
			return true
		}
	}
	return false
}

func (q *Queue) persistLocked() error {
	return q.store.Set(kvstore.PendingOrdersKey(q.theaterID), q.orders)
}

// Snapshot is the observable queue state for the POS status bar.
type Snapshot struct {
	Queued     int        `json:"queued"`
	Failed     int        `json:"failed"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	Draining   bool       `json:"draining"`
	FlushError string     `json:"flush_error,omitempty"`
}

func (q *Queue) countLocked(status string) int {
	n := 0
	for _, o := range q.orders {
		if o.Status == status {
			n++
		}
	}
	return n
}
