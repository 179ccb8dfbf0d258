// Package eventbus provides an in-process publish/subscribe channel used to
// decouple side-path producers (e.g. the correction path) from transport
// consumers. It carries no persistence and no delivery guarantee beyond
// "each currently subscribed handler is invoked per publish".
package eventbus

import (
	"sync"

	"github.com/polyglotgames/dialogue-core/core/events"
)

type Topic string

type Handler func(event events.Event)

// Subscription identifies one registered handler so it can be removed later.
type Subscription struct {
	id    uint64
	topic Topic
}

func (s *Subscription) Topic() Topic {
	if s == nil {
		return ""
	}
	return s.topic
}

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic]map[uint64]Handler
}

func New() *Bus {
	return &Bus{subs: map[Topic]map[uint64]Handler{}}
}

// Subscribe registers handler for topic. The handler is invoked on its own
// goroutine per publish; it may block without affecting publishers or other
// subscribers.
func (b *Bus) Subscribe(topic Topic, handler Handler) *Subscription {
	if handler == nil {
		return &Subscription{topic: topic}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = map[uint64]Handler{}
	}
	b.subs[topic][b.nextID] = handler

	return &Subscription{id: b.nextID, topic: topic}
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil || sub.id == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subs[sub.topic]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(b.subs, sub.topic)
		}
	}
}

// Publish notifies all current subscribers of topic and returns without
// waiting for any of them. Publishing to a topic with zero subscribers is a
// no-op. A panicking handler is contained to its own goroutine.
func (b *Bus) Publish(topic Topic, event events.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, handler := range b.subs[topic] {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		go invoke(handler, event)
	}
}

func invoke(handler Handler, event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("event handler panicked", "kind", string(event.Kind()), "panic", recovered)
		}
	}()

	handler(event)
}
