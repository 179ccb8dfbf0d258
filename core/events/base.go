package events

import "time"

// Kind names one event type, namespaced by its producer, for example
// "correction.detected" or "turn.completed".
type Kind string

// Event is the contract every bus payload satisfies. Events are immutable
// value types; a handler may read them from any goroutine.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the kind and publication time common to all events. Concrete
// events embed it and are constructed through their New* functions.
type Base struct {
	kind      Kind
	timestamp time.Time
}

// NewBase stamps an event with its kind and the current time.
func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind { return b.kind }

func (b Base) Timestamp() time.Time { return b.timestamp }
