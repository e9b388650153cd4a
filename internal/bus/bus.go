// Package bus implements the in-process event bus that glues ingestion,
// analyzers, and the API fan-out together. Emission is synchronous: handlers
// run on the publisher's goroutine, in subscription order, so per-type
// ordering follows publication order. Handlers must be idempotent with
// respect to duplicates.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType is the closed set of bus event tags.
type EventType string

const (
	EventBetDetected       EventType = "BET_DETECTED"
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
	EventAlertCreated      EventType = "ALERT_CREATED"
	EventCopyTradeExecuted EventType = "COPY_TRADE_EXECUTED"
	EventRoundStarted      EventType = "ROUND_STARTED"
	EventRoundLocked       EventType = "ROUND_LOCKED"
	EventRoundEnded        EventType = "ROUND_ENDED"
	EventTrendDetected     EventType = "TREND_DETECTED"
	EventTrendUpdated      EventType = "TREND_UPDATED"
	EventCrossSignal       EventType = "CROSS_SIGNAL"
	EventSmartMoneyMove    EventType = "SMART_MONEY_MOVE"
	EventError             EventType = "ERROR"
)

// Wildcard subscribes a handler to every event type.
const Wildcard EventType = "*"

// historyLimit bounds the in-memory ring of recent events.
const historyLimit = 1000

// Event is a tagged payload. The payload's concrete type is determined by
// the tag (models.Bet for BET_DETECTED, models.SmartMoneySignal for
// SIGNAL_GENERATED, and so on).
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler receives events on the publishing goroutine.
type Handler func(Event)

// Subscription undoes a Subscribe when disposed.
type Subscription struct {
	bus  *Bus
	typ  EventType
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		handlers := s.bus.handlers[s.typ]
		for i, h := range handlers {
			if h.id == s.id {
				s.bus.handlers[s.typ] = append(handlers[:i:i], handlers[i+1:]...)
				break
			}
		}
	})
}

type registration struct {
	id uint64
	fn Handler
}

// Bus is the process-wide typed pub/sub hub with a bounded history ring.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]registration
	history  []Event // FIFO, capped at historyLimit
	nextID   uint64
	emitted  uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[EventType][]registration),
	}
}

// Subscribe registers a handler for one event type (or Wildcard) and
// returns its disposer.
func (b *Bus) Subscribe(typ EventType, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[typ] = append(b.handlers[typ], registration{id: id, fn: fn})
	return &Subscription{bus: b, typ: typ, id: id}
}

// Emit publishes an event synchronously. Handlers for the exact type run
// first, then wildcard handlers, all on the caller's goroutine.
func (b *Bus) Emit(typ EventType, payload interface{}) {
	ev := Event{Type: typ, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > historyLimit {
		b.history = b.history[len(b.history)-historyLimit:]
	}
	b.emitted++
	// Copy registrations so handlers may subscribe/unsubscribe reentrantly.
	regs := make([]registration, 0, len(b.handlers[typ])+len(b.handlers[Wildcard]))
	regs = append(regs, b.handlers[typ]...)
	regs = append(regs, b.handlers[Wildcard]...)
	b.mu.Unlock()

	for _, r := range regs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().
						Interface("panic", rec).
						Str("event_type", string(typ)).
						Msg("Event handler panicked")
				}
			}()
			r.fn(ev)
		}()
	}
}

// History returns up to limit most-recent events of the given type
// (Wildcard for all), newest last.
func (b *Bus) History(typ EventType, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, limit)
	for _, ev := range b.history {
		if typ == Wildcard || ev.Type == typ {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// WaitFor blocks until an event of the given type satisfying predicate is
// published, or the timeout elapses. A nil predicate matches any event of
// the type.
func (b *Bus) WaitFor(ctx context.Context, typ EventType, timeout time.Duration, predicate func(Event) bool) (Event, error) {
	ch := make(chan Event, 1)
	var sub *Subscription
	sub = b.Subscribe(typ, func(ev Event) {
		if predicate != nil && !predicate(ev) {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-ch:
		return ev, nil
	case <-timer.C:
		return Event{}, context.DeadlineExceeded
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Stats reports counters for the health endpoint.
func (b *Bus) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := 0
	for _, regs := range b.handlers {
		subs += len(regs)
	}
	return map[string]interface{}{
		"events_emitted": b.emitted,
		"history_size":   len(b.history),
		"subscribers":    subs,
	}
}
