package realtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToTheaterSubscribers(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(1, "")
	defer sub.Close()
	other := hub.Subscribe(2, "")
	defer other.Close()

	ev := hub.Publish(1, EventStockDelta, StockDelta{ProductID: 7, NewBalance: "8", StockUnit: "Nos"})

	got := <-sub.C
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, EventStockDelta, got.Type)
	assert.EqualValues(t, 1, got.TheaterID)

	select {
	case leaked := <-other.C:
		t.Fatalf("theater 2 received theater 1 event %s", leaked.ID)
	default:
	}
}

func TestResumeTokenReturnsBacklog(t *testing.T) {
	hub := NewHub()

	first := hub.Publish(1, EventOrderCreated, "o1")
	second := hub.Publish(1, EventOrderPaid, "o1")
	third := hub.Publish(1, EventStockDelta, StockDelta{ProductID: 1, NewBalance: "4"})

	sub := hub.Subscribe(1, first.ID)
	defer sub.Close()

	require.Len(t, sub.Backlog, 2)
	assert.Equal(t, second.ID, sub.Backlog[0].ID)
	assert.Equal(t, third.ID, sub.Backlog[1].ID)
}

func TestUnknownResumeTokenYieldsNoBacklog(t *testing.T) {
	hub := NewHub()
	hub.Publish(1, EventOrderCreated, "o1")

	sub := hub.Subscribe(1, "not-a-real-id")
	defer sub.Close()
	assert.Empty(t, sub.Backlog)

	fresh := hub.Subscribe(1, "")
	defer fresh.Close()
	assert.Empty(t, fresh.Backlog)
}

func TestHistoryRingIsBounded(t *testing.T) {
	hub := NewHub()

	var oldest Event
	for i := 0; i < historySize+10; i++ {
		ev := hub.Publish(1, EventOrderCreated, fmt.Sprintf("o%d", i))
		if i == 0 {
			oldest = ev
		}
	}

	// The first event fell off the ring, so its token no longer resumes.
	sub := hub.Subscribe(1, oldest.ID)
	defer sub.Close()
	assert.Empty(t, sub.Backlog)

	hub.mu.Lock()
	assert.Len(t, hub.history[1], historySize)
	hub.mu.Unlock()
}

func TestSlowSubscriberIsSkippedNotBlocked(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(1, "")
	defer sub.Close()

	// Never read from sub.C; publishing must still return.
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(1, EventStockDelta, StockDelta{ProductID: uint(i)})
	}
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestCloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(1, "")
	sub.Close()
	sub.Close()

	// Publishing after close must not panic on the removed subscriber.
	hub.Publish(1, EventOrderCancelled, "o9")
}
