// Package events defines event types for record workflow lifecycle
// notifications.
package events

import "time"

type EventType string

// Topic carries every record lifecycle event.
const Topic = "docflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RecordTransitionedEvent EventType = "record.transitioned"
	RecordStateEnteredEvent EventType = "record.state.entered"
	RecordAmendedEvent      EventType = "record.amended"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	RecordType string    `json:"record_type"`
	RecordID   string    `json:"record_id"`
}

// RecordTransitioned is published after every successful apply.
type RecordTransitioned struct {
	BaseEvent

	Action    string `json:"action"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Actor     string `json:"actor"`
}

func (r RecordTransitioned) GetType() EventType {
	return RecordTransitionedEvent
}

// RecordStateEntered is published when a record enters a state with
// notify_on_entry set.
type RecordStateEntered struct {
	BaseEvent

	State string `json:"state"`
	Actor string `json:"actor"`
}

func (r RecordStateEntered) GetType() EventType {
	return RecordStateEnteredEvent
}

// RecordAmended is published when a cancelled record is amended into a
// new draft.
type RecordAmended struct {
	BaseEvent

	AmendedID string `json:"amended_id"`
	Actor     string `json:"actor"`
}

func (r RecordAmended) GetType() EventType {
	return RecordAmendedEvent
}
