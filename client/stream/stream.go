package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yeremiapane/concessions-app/client/cart"
	"github.com/yeremiapane/concessions-app/realtime"
	"github.com/yeremiapane/concessions-app/stock"
	"github.com/yeremiapane/concessions-app/utils"
)

// ErrSessionExpired reports an authentication rejection on the stream. The
// consumer stops instead of retrying: no amount of reconnecting fixes a dead
// token, the shell has to re-login and start a fresh consumer.
var ErrSessionExpired = errors.New("stream: session expired")

const (
	backoffBase = time.Second
	backoffCap  = 60 * time.Second

	// pollThreshold is how many consecutive transport failures the consumer
	// tolerates before it falls back to polling between reconnect attempts.
	pollThreshold = 3

	// dedupeWindow mirrors the server replay ring: a resumed event can arrive
	// twice, never further apart than the ring.
	dedupeWindow = 256
)

// Event is one decoded theater stream event. Data carries the type-specific
// payload still encoded.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TheaterID uint            `json:"theater_id"`
	Data      json.RawMessage `json:"data"`
}

type Handler func(Event)

// Consumer keeps one SSE connection to the theater stream open, resuming from
// the last delivered event id and deduplicating the replay overlap. Delivery
// is at-least-once on the wire, exactly-once into Handler within the window.
type Consumer struct {
	URL     string
	Token   func() string
	Client  *http.Client
	Handler Handler

	// OnSessionExpired surfaces the auth stop to the shell.
	OnSessionExpired func()

	// Poll refreshes state the hard way while the stream stays down past the
	// failure threshold.
	Poll         func()
	PollInterval time.Duration

	mu          sync.Mutex
	lastEventID string
	seen        map[string]struct{}
	seenOrder   []string
	failures    int
	cancel      context.CancelFunc

	stop chan struct{}
	once sync.Once
}

func NewConsumer(url string, token func() string, handler Handler) *Consumer {
	return &Consumer{
		URL:          url,
		Token:        token,
		Client:       &http.Client{},
		Handler:      handler,
		PollInterval: 30 * time.Second,
		seen:         make(map[string]struct{}),
		stop:         make(chan struct{}),
	}
}

func (c *Consumer) Start() {
	go c.run()
}

func (c *Consumer) Stop() {
	c.once.Do(func() {
		close(c.stop)
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()
	})
}

// LastEventID is the resume token for the next connect.
func (c *Consumer) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

func (c *Consumer) run() {
	for {
		err := c.connectOnce()
		if errors.Is(err, ErrSessionExpired) {
			utils.ErrorLogger.Printf("stream stopped: %v", err)
			if c.OnSessionExpired != nil {
				c.OnSessionExpired()
			}
			return
		}

		select {
		case <-c.stop:
			return
		default:
		}
		if err != nil {
			utils.ErrorLogger.Printf("stream dropped: %v", err)
		}

		c.mu.Lock()
		c.failures++
		failures := c.failures
		c.mu.Unlock()

		wait, pollDue := c.retryDelay(failures)
		if pollDue && c.Poll != nil {
			c.Poll()
		}

		select {
		case <-c.stop:
			return
		case <-time.After(wait):
		}
	}
}

// retryDelay picks the wait before the next connect attempt. Past the failure
// threshold it pins to the poll interval and reports that a poll is due.
func (c *Consumer) retryDelay(failures int) (time.Duration, bool) {
	if failures > pollThreshold {
		return c.PollInterval, true
	}
	return reconnectWait(failures), false
}

func (c *Consumer) connectOnce() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	resume := c.lastEventID
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.Token != nil {
		req.Header.Set("Authorization", "Bearer "+c.Token())
	}
	if resume != "" {
		req.Header.Set("Last-Event-ID", resume)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: unexpected status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()

	return c.consume(resp.Body)
}

// consume parses SSE frames until the connection drops. Heartbeat comments
// keep the scanner busy but never dispatch.
func (c *Consumer) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var ev Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			c.dispatch(ev)
			ev = Event{}
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "id:"):
			ev.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var wire Event
			if err := json.Unmarshal([]byte(raw), &wire); err != nil {
				utils.ErrorLogger.Printf("stream: undecodable event %q: %v", ev.ID, err)
				continue
			}
			ev.TheaterID = wire.TheaterID
			ev.Data = wire.Data
		}
	}
	return scanner.Err()
}

func (c *Consumer) dispatch(ev Event) {
	if ev.ID == "" {
		return
	}
	if !c.markSeen(ev.ID) {
		return
	}
	c.mu.Lock()
	c.lastEventID = ev.ID
	c.mu.Unlock()
	if c.Handler != nil {
		c.Handler(ev)
	}
}

// markSeen records an event id; false means it was already delivered.
func (c *Consumer) markSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[id]; dup {
		return false
	}
	c.seen[id] = struct{}{}
	c.seenOrder = append(c.seenOrder, id)
	if len(c.seenOrder) > dedupeWindow {
		delete(c.seen, c.seenOrder[0])
		c.seenOrder = c.seenOrder[1:]
	}
	return true
}

// reconnectWait is exponential from 1s doubling per failure, capped at 60s,
// with up to 25% jitter so a fleet of devices does not stampede on recovery.
func reconnectWait(failures int) time.Duration {
	d := backoffBase << uint(failures-1)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

// stockDeltaPayload mirrors the body of a stock.delta event.
type stockDeltaPayload struct {
	ProductID  uint   `json:"product_id"`
	NewBalance string `json:"new_balance"`
	StockUnit  string `json:"stock_unit"`
}

// ApplyStockDeltas returns a handler that folds stock.delta events into the
// cart's server-balance view. Every other event type passes through to next,
// which may be nil.
func ApplyStockDeltas(crt *cart.Cart, next Handler) Handler {
	return func(ev Event) {
		if ev.Type != realtime.EventStockDelta {
			if next != nil {
				next(ev)
			}
			return
		}

		var delta stockDeltaPayload
		if err := json.Unmarshal(ev.Data, &delta); err != nil {
			utils.ErrorLogger.Printf("stream: bad stock.delta payload: %v", err)
			return
		}
		balance, err := decimal.NewFromString(delta.NewBalance)
		if err != nil {
			utils.ErrorLogger.Printf("stream: bad balance %q for product %d", delta.NewBalance, delta.ProductID)
			return
		}
		unit, ok := stock.ParseUnit(delta.StockUnit)
		if !ok {
			unit = stock.Nos
		}
		crt.SetBalance(delta.ProductID, balance, unit)
	}
}
