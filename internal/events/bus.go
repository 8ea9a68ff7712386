// Package events provides the relay's in-process event bus and the
// append-only record journal.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventCommandDispatched is published after each command is handed to
	// the console.
	EventCommandDispatched EventType = "command_dispatched"
	// EventQueueDrained is published when a drain cycle completes and the
	// drop file has been cleared.
	EventQueueDrained EventType = "queue_drained"
)

// Event represents a relay event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe bus. Delivery is asynchronous
// through per-subscriber buffered channels; a subscriber that cannot keep
// up misses events rather than stalling the drain cycle that publishes
// them.
type Bus struct {
	mu         sync.RWMutex
	subs       map[EventType]map[int]chan Event
	nextID     int
	bufferSize int
	closed     bool
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subs:       make(map[EventType]map[int]chan Event),
		bufferSize: bufferSize,
	}
}

// Subscribe registers fn for one event type. fn runs on its own goroutine;
// a panic inside it is contained. The returned function cancels the
// subscription. Subscribing to a closed bus returns a no-op cancel.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++

	ch := make(chan Event, b.bufferSize)
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[int]chan Event)
	}
	b.subs[eventType][id] = ch

	go func() {
		for event := range ch {
			deliver(fn, event)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if sub, ok := b.subs[eventType][id]; ok {
			delete(b.subs[eventType], id)
			close(sub)
		}
	}
}

func deliver(fn Subscriber, event Event) {
	defer func() {
		// A panicking subscriber must not take the bus down.
		_ = recover()
	}()
	fn(event)
}

// Publish sends an event to all subscribers of the given type. Delivery is
// non-blocking: a subscriber with a full channel misses the event.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subs[eventType] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close cancels every subscription. Safe to call more than once; Publish
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for eventType, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, eventType)
	}
}
