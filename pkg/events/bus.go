// Package events is the synchronous in-process notification bus of the
// client. Handlers run on the emitting goroutine, in subscription order; a
// panicking handler is not recovered and unwinds into the emitting call.
package events

import (
	"sync"
	"time"
)

type Topic string

const (
	ConnectSuccess    Topic = "connect-success"
	ConnectError      Topic = "connect-error"
	DisconnectSuccess Topic = "disconnect-success"
	DisconnectError   Topic = "disconnect-error"
	IdentityAdded     Topic = "identity-added"
	IdentityRemoved   Topic = "identity-removed"
)

// Event payloads are the models.* result types matching the topic.
type Event struct {
	Seq       int64
	Topic     Topic
	Payload   any
	Timestamp time.Time
}

type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

type Bus struct {
	mu      sync.Mutex
	nextSeq int64
	nextSub int
	subs    map[Topic][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers handler for topic and returns its unsubscribe func.
// Calling the returned func more than once is harmless.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[topic]
			for i, s := range subs {
				if s.id == id {
					b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers to every handler subscribed when Emit was called. Handlers
// may subscribe or unsubscribe; that takes effect from the next Emit.
func (b *Bus) Emit(topic Topic, payload any) Event {
	b.mu.Lock()
	b.nextSeq++
	event := Event{Seq: b.nextSeq, Topic: topic, Payload: payload, Timestamp: time.Now().UTC()}
	handlers := append([]subscription(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, s := range handlers {
		s.handler(event)
	}
	return event
}

func (b *Bus) Subscribers(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
