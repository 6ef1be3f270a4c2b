// Package eventbus provides event-driven communication infrastructure
// for workflow notifications.
package eventbus

import (
	"context"

	"github.com/docflow/docflow/pkg/events"
)

// Event is anything publishable on the bus. Implementations live in
// pkg/events.
type Event interface {
	GetType() events.EventType
}

// EventHandler consumes one decoded event. Returning an error nacks
// the message.
type EventHandler func(ctx context.Context, event any) error

// EventBus publishes workflow lifecycle events and dispatches
// subscribed handlers by event type.
type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
	Close() error
	GenerateID() string
}
