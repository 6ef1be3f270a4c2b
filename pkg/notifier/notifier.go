// Package notifier publishes workflow lifecycle events. Publishing is
// fire and forget: a failed publish is logged and never fails the
// transition that triggered it.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/docflow/docflow/pkg/eventbus"
	"github.com/docflow/docflow/pkg/events"
	"github.com/docflow/docflow/pkg/models"
)

type Notifier interface {
	Transitioned(ctx context.Context, record *models.Record, action, fromState, toState, actor string)
	StateEntered(ctx context.Context, record *models.Record, state, actor string)
	Amended(ctx context.Context, original *models.Record, amended *models.Record, actor string)
}

type EventBusNotifier struct {
	bus    eventbus.EventBus
	logger *slog.Logger
}

func NewEventBusNotifier(bus eventbus.EventBus, logger *slog.Logger) *EventBusNotifier {
	return &EventBusNotifier{
		bus:    bus,
		logger: logger.With("module", "notifier"),
	}
}

func (n *EventBusNotifier) base(eventType events.EventType, record *models.Record) events.BaseEvent {
	return events.BaseEvent{
		ID:         n.bus.GenerateID(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		RecordType: record.Type,
		RecordID:   record.ID,
	}
}

func (n *EventBusNotifier) publish(ctx context.Context, record *models.Record, event eventbus.Event) {
	err := n.bus.Publish(ctx, record.Type+":"+record.ID, event)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"record_type", record.Type,
			"record_id", record.ID,
			"error", err)
	}
}

func (n *EventBusNotifier) Transitioned(ctx context.Context, record *models.Record, action, fromState, toState, actor string) {
	n.publish(ctx, record, events.RecordTransitioned{
		BaseEvent: n.base(events.RecordTransitionedEvent, record),
		Action:    action,
		FromState: fromState,
		ToState:   toState,
		Actor:     actor,
	})
}

func (n *EventBusNotifier) StateEntered(ctx context.Context, record *models.Record, state, actor string) {
	n.publish(ctx, record, events.RecordStateEntered{
		BaseEvent: n.base(events.RecordStateEnteredEvent, record),
		State:     state,
		Actor:     actor,
	})
}

func (n *EventBusNotifier) Amended(ctx context.Context, original *models.Record, amended *models.Record, actor string) {
	n.publish(ctx, original, events.RecordAmended{
		BaseEvent: n.base(events.RecordAmendedEvent, original),
		AmendedID: amended.ID,
		Actor:     actor,
	})
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Transitioned(context.Context, *models.Record, string, string, string, string) {}

func (NopNotifier) StateEntered(context.Context, *models.Record, string, string) {}

func (NopNotifier) Amended(context.Context, *models.Record, *models.Record, string) {}
