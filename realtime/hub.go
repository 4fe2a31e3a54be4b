package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the theater stream.
const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
	EventStockDelta     = "stock.delta"
)

type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	TheaterID uint        `json:"theater_id"`
	Data      interface{} `json:"data"`
	At        time.Time   `json:"at"`
}

// StockDelta is the payload of a stock.delta event. NewBalance is a decimal
// string so clients never lose precision to float parsing.
type StockDelta struct {
	ProductID  uint   `json:"product_id"`
	NewBalance string `json:"new_balance"`
	StockUnit  string `json:"stock_unit"`
}

// historySize bounds the per-theater replay ring used to serve resume tokens.
const historySize = 256

// subscriberBuffer is per-connection; a subscriber that falls this far behind
// has its events dropped (delivery is at-least-once overall because clients
// also poll).
const subscriberBuffer = 32

type subscriber struct {
	ch chan Event
}

// Hub fans typed events out to every open stream of a theater and keeps a
// short history for replay after reconnect.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint]map[*subscriber]struct{}
	history map[uint][]Event
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[uint]map[*subscriber]struct{}),
		history: make(map[uint][]Event),
	}
}

// Subscription is one open stream. Backlog holds the events recorded after
// the resume token; C carries everything published afterwards.
type Subscription struct {
	C       <-chan Event
	Backlog []Event

	hub       *Hub
	theaterID uint
	sub       *subscriber
	closeOnce sync.Once
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.subs[s.theaterID]; ok {
			delete(set, s.sub)
		}
		close(s.sub.ch)
	})
}

// Subscribe registers a stream for a theater. resumeToken is the id of the
// last event the client saw; events recorded after it are returned as Backlog.
// An unknown or empty token yields no backlog.
func (h *Hub) Subscribe(theaterID uint, resumeToken string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if h.subs[theaterID] == nil {
		h.subs[theaterID] = make(map[*subscriber]struct{})
	}
	h.subs[theaterID][sub] = struct{}{}

	var backlog []Event
	if resumeToken != "" {
		hist := h.history[theaterID]
		for i, ev := range hist {
			if ev.ID == resumeToken && i+1 < len(hist) {
				backlog = append(backlog, hist[i+1:]...)
				break
			}
		}
	}

	return &Subscription{
		C:         sub.ch,
		Backlog:   backlog,
		hub:       h,
		theaterID: theaterID,
		sub:       sub,
	}
}

// Publish records the event in the replay ring and delivers it to every
// subscriber of the theater. Slow subscribers are skipped, never blocked on.
func (h *Hub) Publish(theaterID uint, eventType string, data interface{}) Event {
	ev := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TheaterID: theaterID,
		Data:      data,
		At:        time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	hist := append(h.history[theaterID], ev)
	if len(hist) > historySize {
		hist = hist[len(hist)-historySize:]
	}
	h.history[theaterID] = hist

	for sub := range h.subs[theaterID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return ev
}

var defaultHub = NewHub()

// Default returns the process-wide hub used by services and controllers.
func Default() *Hub {
	return defaultHub
}

func PublishOrderCreated(theaterID uint, order interface{}) {
	defaultHub.Publish(theaterID, EventOrderCreated, order)
}

func PublishOrderPaid(theaterID uint, order interface{}) {
	defaultHub.Publish(theaterID, EventOrderPaid, order)
}

func PublishOrderCancelled(theaterID uint, order interface{}) {
	defaultHub.Publish(theaterID, EventOrderCancelled, order)
}

func PublishStockDelta(theaterID uint, delta StockDelta) {
	defaultHub.Publish(theaterID, EventStockDelta, delta)
}
