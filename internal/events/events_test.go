package events

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	logger := zerolog.New(io.Discard)
	return NewBus(&logger)
}

func TestBusPublishJSON(t *testing.T) {
	bus := newTestBus()

	var got Event
	bus.Subscribe(TypeBookingCreated, func(e Event) error {
		got = e
		return nil
	})

	err := bus.PublishJSON(TypeBookingCreated, map[string]string{"booking_id": "bk-1"})
	require.NoError(t, err)

	require.NotEmpty(t, got.ID)
	require.False(t, got.CreatedAt.IsZero())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	require.Equal(t, "bk-1", payload["booking_id"])
}

func TestBusHandlerFailureDoesNotStopOthers(t *testing.T) {
	bus := newTestBus()

	var calls []string
	bus.Subscribe(TypeBookingCancelled, func(Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	bus.Subscribe(TypeBookingCancelled, func(Event) error {
		calls = append(calls, "second")
		panic("worse")
	})
	bus.Subscribe(TypeBookingCancelled, func(Event) error {
		calls = append(calls, "third")
		return nil
	})

	bus.Publish(Event{Type: TypeBookingCancelled})
	require.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestBusIgnoresUnrelatedTypes(t *testing.T) {
	bus := newTestBus()

	called := false
	bus.Subscribe(TypeBookingCreated, func(Event) error {
		called = true
		return nil
	})

	bus.Publish(Event{Type: TypeBookingRescheduled})
	require.False(t, called)
}
