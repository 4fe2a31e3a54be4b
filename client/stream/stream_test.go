package stream

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/concessions-app/client/cart"
	"github.com/yeremiapane/concessions-app/realtime"
	"github.com/yeremiapane/concessions-app/stock"
)

func frame(id, eventType, data string) string {
	payload := fmt.Sprintf(`{"id":%q,"type":%q,"theater_id":1,"data":%s}`, id, eventType, data)
	return fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", id, eventType, payload)
}

func collectingConsumer() (*Consumer, *[]Event) {
	var got []Event
	c := NewConsumer("http://device.local/notifications/stream", nil, nil)
	c.Handler = func(ev Event) { got = append(got, ev) }
	return c, &got
}

func TestConsumeParsesFramesAndSkipsHeartbeats(t *testing.T) {
	c, got := collectingConsumer()

	feed := ": heartbeat\n\n" +
		frame("ev-1", realtime.EventOrderCreated, `"o1"`) +
		": heartbeat\n\n" +
		frame("ev-2", realtime.EventStockDelta, `{"product_id":7,"new_balance":"8","stock_unit":"Nos"}`)

	require.NoError(t, c.consume(strings.NewReader(feed)))

	require.Len(t, *got, 2)
	assert.Equal(t, "ev-1", (*got)[0].ID)
	assert.Equal(t, realtime.EventStockDelta, (*got)[1].Type)
	assert.EqualValues(t, 1, (*got)[1].TheaterID)
	assert.Equal(t, "ev-2", c.LastEventID())
}

func TestDispatchDedupesReplayedEvents(t *testing.T) {
	c, got := collectingConsumer()

	// The same event arrives again after a resume; at-least-once on the wire,
	// exactly-once into the handler.
	feed := frame("ev-1", realtime.EventOrderCreated, `"o1"`)
	require.NoError(t, c.consume(strings.NewReader(feed)))
	require.NoError(t, c.consume(strings.NewReader(feed)))

	assert.Len(t, *got, 1)
	assert.Equal(t, "ev-1", c.LastEventID())
}

func TestDedupeWindowIsBounded(t *testing.T) {
	c, _ := collectingConsumer()

	for i := 0; i < dedupeWindow+10; i++ {
		require.True(t, c.markSeen(fmt.Sprintf("ev-%d", i)))
	}
	assert.Len(t, c.seen, dedupeWindow)
	assert.False(t, c.markSeen(fmt.Sprintf("ev-%d", dedupeWindow+9)))
}

func TestAuthFailureStopsConsumer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	expired := make(chan struct{})
	c := NewConsumer(server.URL, func() string { return "stale-token" }, nil)
	c.OnSessionExpired = func() { close(expired) }

	// run returns instead of retrying: the session is dead until re-login.
	c.run()

	select {
	case <-expired:
	default:
		t.Fatal("session expiry was not surfaced")
	}
}

func TestStreamResumesWithLastEventID(t *testing.T) {
	var calls int32
	var resumeHeader atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			assert.Equal(t, "Bearer device-token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, frame("ev-1", realtime.EventOrderCreated, `"o1"`))
		default:
			resumeHeader.Store(r.Header.Get("Last-Event-ID"))
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	delivered := make(chan Event, 1)
	expired := make(chan struct{})
	c := NewConsumer(server.URL, func() string { return "device-token" }, func(ev Event) {
		delivered <- ev
	})
	c.OnSessionExpired = func() { close(expired) }
	c.Start()
	defer c.Stop()

	select {
	case ev := <-delivered:
		assert.Equal(t, "ev-1", ev.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
	select {
	case <-expired:
	case <-time.After(10 * time.Second):
		t.Fatal("reconnect never happened")
	}
	assert.Equal(t, "ev-1", resumeHeader.Load())
}

func TestRetryDelayFallsBackToPolling(t *testing.T) {
	c := NewConsumer("http://device.local/stream", nil, nil)

	for failures := 1; failures <= pollThreshold; failures++ {
		wait, pollDue := c.retryDelay(failures)
		assert.False(t, pollDue)
		assert.GreaterOrEqual(t, wait, backoffBase)
		assert.LessOrEqual(t, wait, backoffCap+backoffCap/4)
	}

	wait, pollDue := c.retryDelay(pollThreshold + 1)
	assert.True(t, pollDue)
	assert.Equal(t, c.PollInterval, wait)
}

func TestApplyStockDeltasFeedsCart(t *testing.T) {
	crt := cart.New()
	crt.SetBalance(7, decimal.NewFromInt(10), stock.Nos)

	var passed []Event
	handler := ApplyStockDeltas(crt, func(ev Event) { passed = append(passed, ev) })

	handler(Event{
		ID:   "ev-1",
		Type: realtime.EventStockDelta,
		Data: []byte(`{"product_id":7,"new_balance":"8","stock_unit":"Nos"}`),
	})
	available, err := crt.Available(7)
	require.NoError(t, err)
	assert.True(t, available.Equal(decimal.NewFromInt(8)), available.String())

	// Undecodable payloads are dropped, other event types pass through.
	handler(Event{ID: "ev-2", Type: realtime.EventStockDelta, Data: []byte(`{`)})
	handler(Event{ID: "ev-3", Type: realtime.EventOrderPaid, Data: []byte(`"o1"`)})
	require.Len(t, passed, 1)
	assert.Equal(t, "ev-3", passed[0].ID)
}
