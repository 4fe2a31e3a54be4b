package queue

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/yeremiapane/concessions-app/services"
	"github.com/yeremiapane/concessions-app/utils"
)

const (
	backoffBase = time.Second
	backoffCap  = 60 * time.Second
)

// SubmitResult reports one server acceptance. Existing means the fingerprint
// had already been seen; the order was not created twice.
type SubmitResult struct {
	Existing bool
	OrderID  uint
}

// SubmitFunc posts one captured order to the server. Implementations classify
// failures through utils.AppError kinds: validation-family kinds mark the
// order failed, everything else retries with backoff.
type SubmitFunc func(services.CreateOrderRequest) (SubmitResult, error)

// Drainer is the single background loop that flushes the queue head-first. It
// wakes on Poke (connectivity regained, auth refreshed), or on its poll timer
// while the queue is non-empty.
type Drainer struct {
	queue  *Queue
	submit SubmitFunc

	PollInterval time.Duration

	mu         sync.Mutex
	lastSyncAt *time.Time
	draining   bool
	flushErr   string

	wake chan struct{}
	stop chan struct{}
	once sync.Once
}

func NewDrainer(q *Queue, submit SubmitFunc) *Drainer {
	return &Drainer{
		queue:        q,
		submit:       submit,
		PollInterval: 3 * time.Second,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
}

// Poke asks the drainer to attempt a flush now.
func (d *Drainer) Poke() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Drainer) Start() {
	go d.loop()
}

func (d *Drainer) Stop() {
	d.once.Do(func() { close(d.stop) })
}

// Snapshot returns the observable queue and drainer state.
func (d *Drainer) Snapshot() Snapshot {
	d.queue.mu.Lock()
	snap := Snapshot{
		Queued: d.queue.countLocked(StatusQueued),
		Failed: d.queue.countLocked(StatusFailed),
	}
	d.queue.mu.Unlock()

	d.mu.Lock()
	snap.LastSyncAt = d.lastSyncAt
	snap.Draining = d.draining
	snap.FlushError = d.flushErr
	d.mu.Unlock()
	return snap
}

// flushQueue persists the queue and surfaces a failed flush instead of
// dropping it; the in-memory state stays authoritative until the next flush
// succeeds. Caller holds d.queue.mu.
func (d *Drainer) flushQueue() {
	err := d.queue.persistLocked()

	d.mu.Lock()
	if err != nil {
		d.flushErr = err.Error()
	} else {
		d.flushErr = ""
	}
	d.mu.Unlock()

	if err != nil {
		utils.ErrorLogger.Printf("offline queue flush failed: %v", err)
	}
}

func (d *Drainer) loop() {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-d.wake:
		case <-ticker.C:
		}
		d.drain()
	}
}

// drain submits queue heads until the queue empties, the head blocks or an
// attempt is deferred by backoff.
func (d *Drainer) drain() {
	d.setDraining(true)
	defer d.setDraining(false)

	for {
		d.queue.mu.Lock()
		head := d.queue.head()
		if head == nil {
			d.queue.mu.Unlock()
			return
		}
		if head.Status == StatusFailed {
			// A failed head blocks the line until the operator retries or
			// discards it; draining out of order would reorder sales.
			d.queue.mu.Unlock()
			return
		}
		if !head.NextAttemptAt.IsZero() && time.Now().Before(head.NextAttemptAt) {
			d.queue.mu.Unlock()
			return
		}
		fingerprint := head.Fingerprint
		payload := head.Payload
		payload.OfflineQueued = true
		d.queue.setStatus(fingerprint, StatusQueued, StatusSyncing)
		d.flushQueue()
		d.queue.mu.Unlock()

		_, err := d.submit(payload)

		d.queue.mu.Lock()
		// A duplicate means the server already holds this fingerprint; the
		// order exists exactly once, which is what the queue wanted.
		if err == nil || duplicateError(err) {
			d.queue.setStatus(fingerprint, StatusSyncing, StatusSynced)
			d.removeSynced(fingerprint)
			now := time.Now()
			d.mu.Lock()
			d.lastSyncAt = &now
			d.mu.Unlock()
			d.flushQueue()
			d.queue.mu.Unlock()
			continue
		}

		if permanentError(err) {
			d.queue.setStatus(fingerprint, StatusSyncing, StatusFailed)
			d.markError(fingerprint, err)
			d.flushQueue()
			d.queue.mu.Unlock()
			utils.ErrorLogger.Printf("offline order %s rejected: %v", fingerprint, err)
			return
		}

		// Transient: requeue with exponential backoff plus jitter.
		d.queue.setStatus(fingerprint, StatusSyncing, StatusQueued)
		for i := range d.queue.orders {
			if d.queue.orders[i].Fingerprint == fingerprint {
				d.queue.orders[i].Attempts++
				d.queue.orders[i].NextAttemptAt = time.Now().Add(backoff(d.queue.orders[i].Attempts))
				d.queue.orders[i].LastError = err.Error()
			}
		}
		d.flushQueue()
		d.queue.mu.Unlock()
		return
	}
}

func (d *Drainer) removeSynced(fingerprint string) {
	for i, o := range d.queue.orders {
		if o.Fingerprint == fingerprint && o.Status == StatusSynced {
			d.queue.orders = append(d.queue.orders[:i], d.queue.orders[i+1:]...)
			return
		}
	}
}

func (d *Drainer) markError(fingerprint string, err error) {
	for i := range d.queue.orders {
		if d.queue.orders[i].Fingerprint == fingerprint {
			d.queue.orders[i].LastError = err.Error()
		}
	}
}

func (d *Drainer) setDraining(v bool) {
	d.mu.Lock()
	d.draining = v
	d.mu.Unlock()
}

// permanentError reports whether the server definitively rejected the order.
// Auth failures are not permanent: the drainer pauses until a token refresh
// pokes it again. Duplicates are not failures at all; see duplicateError.
func permanentError(err error) bool {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Kind {
	case utils.KindValidation, utils.KindInsufficientStock, utils.KindTotalMismatch:
		return true
	default:
		return false
	}
}

// duplicateError reports a fingerprint the server has already accepted.
func duplicateError(err error) bool {
	var appErr *utils.AppError
	return errors.As(err, &appErr) && appErr.Kind == utils.KindDuplicate
}

// backoff is exponential from 1s doubling per attempt, capped at 60s, with up
// to 25% jitter so a fleet of devices does not stampede on recovery.
func backoff(attempts int) time.Duration {
	d := backoffBase << uint(attempts-1)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}
