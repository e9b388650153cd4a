package api

import (
	"sync"
	"testing"

	"github.com/truthplane/engine/internal/bus"
)

func TestWsClientCloseConcurrent(t *testing.T) {
	// A slow consumer's overflow path and both pump teardowns can all reach
	// close at the same time; none of them may panic on a second close.
	c := &wsClient{
		send: make(chan bus.Event, 1),
		done: make(chan struct{}),
	}
	c.send <- bus.Event{} // full buffer, so enqueue takes the overflow path

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.close()
			c.enqueue(bus.Event{})
		}()
	}
	wg.Wait()

	select {
	case <-c.done:
	default:
		t.Fatal("done channel not closed")
	}
}
