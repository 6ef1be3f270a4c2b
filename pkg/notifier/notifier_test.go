package notifier

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docflow/docflow/pkg/channels/gochannel"
	"github.com/docflow/docflow/pkg/eventbus"
	"github.com/docflow/docflow/pkg/events"
	"github.com/docflow/docflow/pkg/models"
)

func setupBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestEventBusNotifierTransitioned(t *testing.T) {
	bus := setupBus(t)

	received := make(chan *events.RecordTransitioned, 1)

	err := bus.Handle(events.RecordTransitionedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RecordTransitioned)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	n := NewEventBusNotifier(bus, slog.Default())

	record := &models.Record{Type: "purchase_order", ID: "po-1"}
	n.Transitioned(t.Context(), record, "approve", "Pending", "Approved", "alice")

	select {
	case event := <-received:
		assert.Equal(t, "purchase_order", event.RecordType)
		assert.Equal(t, "po-1", event.RecordID)
		assert.Equal(t, "approve", event.Action)
		assert.Equal(t, "Pending", event.FromState)
		assert.Equal(t, "Approved", event.ToState)
		assert.Equal(t, "alice", event.Actor)
		assert.NotEmpty(t, event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transitioned event")
	}
}

func TestEventBusNotifierStateEntered(t *testing.T) {
	bus := setupBus(t)

	received := make(chan *events.RecordStateEntered, 1)

	err := bus.Handle(events.RecordStateEnteredEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RecordStateEntered)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	n := NewEventBusNotifier(bus, slog.Default())

	record := &models.Record{Type: "invoice", ID: "inv-9"}
	n.StateEntered(t.Context(), record, "Approved", "bob")

	select {
	case event := <-received:
		assert.Equal(t, "invoice", event.RecordType)
		assert.Equal(t, "Approved", event.State)
		assert.Equal(t, "bob", event.Actor)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state entered event")
	}
}

func TestEventBusNotifierAmended(t *testing.T) {
	bus := setupBus(t)

	received := make(chan *events.RecordAmended, 1)

	err := bus.Handle(events.RecordAmendedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RecordAmended)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	n := NewEventBusNotifier(bus, slog.Default())

	original := &models.Record{Type: "invoice", ID: "inv-1"}
	amended := &models.Record{Type: "invoice", ID: "inv-2"}
	n.Amended(t.Context(), original, amended, "carol")

	select {
	case event := <-received:
		assert.Equal(t, "inv-1", event.RecordID)
		assert.Equal(t, "inv-2", event.AmendedID)
		assert.Equal(t, "carol", event.Actor)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for amended event")
	}
}
