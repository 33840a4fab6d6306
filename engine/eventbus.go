package engine

import (
	"sync"
	"time"
)

// EventFunc handles one dispatched event.
type EventFunc func(Event)

type listener struct {
	key   uint64
	fn    EventFunc
	types map[EventType]bool
}

func (l listener) wants(t EventType) bool {
	return l.types == nil || l.types[t]
}

// EventBus delivers events synchronously on the emitting goroutine, in
// subscription order. Handlers must not block; slow consumers (the SSE hub,
// the plant-bus reporter) buffer on their own side.
type EventBus struct {
	mu        sync.RWMutex
	nextKey   uint64
	listeners []listener
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers fn for the named event types, or for every event when
// no types are given. The returned function removes the subscription; it is
// safe to call more than once.
func (b *EventBus) Subscribe(fn EventFunc, types ...EventType) (cancel func()) {
	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	b.mu.Lock()
	b.nextKey++
	key := b.nextKey
	b.listeners = append(b.listeners, listener{key: key, fn: fn, types: filter})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.listeners {
			if b.listeners[i].key == key {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit stamps the event if needed and dispatches it to every matching
// listener. The listener set is snapshotted so a handler may subscribe or
// cancel without deadlocking.
func (b *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	matched := make([]EventFunc, 0, len(b.listeners))
	for _, l := range b.listeners {
		if l.wants(evt.Type) {
			matched = append(matched, l.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range matched {
		fn(evt)
	}
}
