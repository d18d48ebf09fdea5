package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Booking lifecycle event types.
const (
	TypeBookingCreated     = "booking.created"
	TypeBookingConfirmed   = "booking.confirmed"
	TypeBookingRescheduled = "booking.rescheduled"
	TypeBookingCancelled   = "booking.cancelled"
	TypePaymentRequested   = "booking.payment_requested"
)

// Event is a lightweight domain event with a JSON payload.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event. Handler errors are logged, never propagated to
// the publisher.
type Handler func(event Event) error

// Bus provides in-process pub/sub for booking lifecycle events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		logger:      logger,
	}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously;
// a panicking or failing handler does not stop the rest.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		b.run(event, handler)
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *Bus) PublishJSON(eventType string, payload any) error {
	const op = "events.Bus.PublishJSON"

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}

func (b *Bus) run(event Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("event_type", event.Type).Str("event_id", event.ID).
				Interface("panic", r).Msg("event handler panicked")
		}
	}()

	if err := handler(event); err != nil {
		b.logger.Error().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).
			Msg("event handler failed")
	}
}
