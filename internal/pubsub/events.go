// Package pubsub fans out invocation progress and log entries to observers
// such as the --verbose reporter.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened.
type EventType string

// Invocation lifecycle, published by the bridge handler.
const (
	StartedEvent   EventType = "started"
	CompletedEvent EventType = "completed"
	AbandonedEvent EventType = "abandoned"
	FailedEvent    EventType = "failed"
)

// LoggedEvent carries a formatted log line.
const LoggedEvent EventType = "logged"

// Terminal reports whether t ends an invocation.
func (t EventType) Terminal() bool {
	switch t {
	case CompletedEvent, AbandonedEvent, FailedEvent:
		return true
	}
	return false
}

// Event is a published payload stamped with its type and time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out subscription channels scoped to a context.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher accepts events. Implementations must not block.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
