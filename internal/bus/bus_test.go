package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversInPublicationOrder(t *testing.T) {
	b := New()

	var got []int
	b.Subscribe(EventBetDetected, func(ev Event) {
		got = append(got, ev.Payload.(int))
	})

	for i := 0; i < 10; i++ {
		b.Emit(EventBetDetected, i)
	}

	require.Len(t, got, 10)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestEmitIsSynchronous(t *testing.T) {
	b := New()

	delivered := false
	b.Subscribe(EventSignalGenerated, func(ev Event) {
		delivered = true
	})

	b.Emit(EventSignalGenerated, "payload")
	// Handler ran on our goroutine before Emit returned.
	assert.True(t, delivered)
}

func TestWildcardSubscriptionSeesAllTypes(t *testing.T) {
	b := New()

	var types []EventType
	b.Subscribe(Wildcard, func(ev Event) {
		types = append(types, ev.Type)
	})

	b.Emit(EventBetDetected, nil)
	b.Emit(EventTrendDetected, nil)
	b.Emit(EventError, nil)

	assert.Equal(t, []EventType{EventBetDetected, EventTrendDetected, EventError}, types)
}

func TestHistoryBoundedAtLimit(t *testing.T) {
	b := New()

	for i := 0; i < historyLimit+250; i++ {
		b.Emit(EventBetDetected, i)
	}

	all := b.History(Wildcard, 0)
	require.Len(t, all, historyLimit)
	// Oldest events were evicted FIFO.
	assert.Equal(t, 250, all[0].Payload.(int))
	assert.Equal(t, historyLimit+249, all[len(all)-1].Payload.(int))
}

func TestHistoryFiltersByType(t *testing.T) {
	b := New()

	b.Emit(EventBetDetected, 1)
	b.Emit(EventAlertCreated, 2)
	b.Emit(EventBetDetected, 3)

	bets := b.History(EventBetDetected, 10)
	require.Len(t, bets, 2)
	assert.Equal(t, 1, bets[0].Payload.(int))
	assert.Equal(t, 3, bets[1].Payload.(int))

	limited := b.History(EventBetDetected, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, 3, limited[0].Payload.(int))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	count := 0
	sub := b.Subscribe(EventBetDetected, func(ev Event) { count++ })

	b.Emit(EventBetDetected, nil)
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	b.Emit(EventBetDetected, nil)

	assert.Equal(t, 1, count)
}

func TestWaitForMatchesPredicate(t *testing.T) {
	b := New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ev, err := b.WaitFor(context.Background(), EventSignalGenerated, 2*time.Second, func(ev Event) bool {
			return ev.Payload.(string) == "wanted"
		})
		assert.NoError(t, err)
		assert.Equal(t, "wanted", ev.Payload.(string))
	}()

	// Give the waiter a moment to subscribe.
	time.Sleep(10 * time.Millisecond)
	b.Emit(EventSignalGenerated, "ignored")
	b.Emit(EventSignalGenerated, "wanted")

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("WaitFor did not return")
	}
}

func TestWaitForTimesOut(t *testing.T) {
	b := New()

	_, err := b.WaitFor(context.Background(), EventCopyTradeExecuted, 20*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPanickingHandlerDoesNotStopDispatch(t *testing.T) {
	b := New()

	reached := false
	b.Subscribe(EventBetDetected, func(ev Event) { panic("boom") })
	b.Subscribe(EventBetDetected, func(ev Event) { reached = true })

	b.Emit(EventBetDetected, nil)
	assert.True(t, reached)
}

func TestReentrantSubscribeDuringDispatch(t *testing.T) {
	b := New()

	var late int
	b.Subscribe(EventBetDetected, func(ev Event) {
		b.Subscribe(EventBetDetected, func(Event) { late++ })
	})

	b.Emit(EventBetDetected, nil) // must not deadlock
	b.Emit(EventBetDetected, nil)
	assert.Equal(t, 1, late)
}

func TestStats(t *testing.T) {
	b := New()
	b.Subscribe(EventBetDetected, func(Event) {})
	for i := 0; i < 5; i++ {
		b.Emit(EventBetDetected, fmt.Sprintf("ev-%d", i))
	}

	stats := b.Stats()
	assert.Equal(t, uint64(5), stats["events_emitted"])
	assert.Equal(t, 5, stats["history_size"])
	assert.Equal(t, 1, stats["subscribers"])
}
