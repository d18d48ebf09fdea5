package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"lessonbook/internal/calendar"
	"lessonbook/internal/events"
	"lessonbook/internal/models"
	"lessonbook/internal/notify"
)

// CalendarMirror pushes bookings into external calendars.
type CalendarMirror interface {
	CreateEvent(ctx context.Context, tutorID string, ev calendar.Event) error
	UpdateEvent(ctx context.Context, tutorID, eventID string, ev calendar.Event) error
	DeleteEvent(ctx context.Context, tutorID, eventID string) error
}

// RegisterEffects wires notification and calendar side effects to the event
// bus. Every effect runs through the dispatcher so a slow or failing send
// never holds up the booking flow.
func RegisterEffects(bus *events.Bus, dispatcher *notify.Dispatcher, notifier notify.Notifier, mirror CalendarMirror, logger *zerolog.Logger) {
	decode := func(e events.Event) (BookingEvent, bool) {
		var payload BookingEvent
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event_type", e.Type).Msg("undecodable booking event")
			return BookingEvent{}, false
		}
		return payload, true
	}

	bus.Subscribe(events.TypeBookingCreated, func(e events.Event) error {
		payload, ok := decode(e)
		if !ok {
			return nil
		}
		b := payload.Booking
		if b.Status == models.StatusConfirmed {
			dispatcher.Dispatch("notify_confirmed", func(ctx context.Context) error {
				return notifier.BookingConfirmed(ctx, b)
			})
		}
		if mirror != nil {
			dispatcher.Dispatch("calendar_create", func(ctx context.Context) error {
				return mirror.CreateEvent(ctx, b.TutorID, mirrorEvent(b))
			})
		}
		return nil
	})

	bus.Subscribe(events.TypeBookingConfirmed, func(e events.Event) error {
		payload, ok := decode(e)
		if !ok {
			return nil
		}
		b := payload.Booking
		dispatcher.Dispatch("notify_confirmed", func(ctx context.Context) error {
			return notifier.BookingConfirmed(ctx, b)
		})
		return nil
	})

	bus.Subscribe(events.TypeBookingRescheduled, func(e events.Event) error {
		payload, ok := decode(e)
		if !ok {
			return nil
		}
		b := payload.Booking
		previous := models.Interval{}
		if payload.Previous != nil {
			previous = *payload.Previous
		}
		dispatcher.Dispatch("notify_rescheduled", func(ctx context.Context) error {
			return notifier.BookingRescheduled(ctx, b, previous)
		})
		if mirror != nil {
			dispatcher.Dispatch("calendar_update", func(ctx context.Context) error {
				return mirror.UpdateEvent(ctx, b.TutorID, calendarEventID(b), mirrorEvent(b))
			})
		}
		return nil
	})

	bus.Subscribe(events.TypeBookingCancelled, func(e events.Event) error {
		payload, ok := decode(e)
		if !ok {
			return nil
		}
		b := payload.Booking
		dispatcher.Dispatch("notify_cancelled", func(ctx context.Context) error {
			return notifier.BookingCancelled(ctx, b)
		})
		if mirror != nil {
			dispatcher.Dispatch("calendar_delete", func(ctx context.Context) error {
				return mirror.DeleteEvent(ctx, b.TutorID, calendarEventID(b))
			})
		}
		return nil
	})

	bus.Subscribe(events.TypePaymentRequested, func(e events.Event) error {
		payload, ok := decode(e)
		if !ok {
			return nil
		}
		b := payload.Booking
		url := payload.CheckoutURL
		dispatcher.Dispatch("notify_payment", func(ctx context.Context) error {
			return notifier.PaymentRequested(ctx, b, url)
		})
		return nil
	})
}

func mirrorEvent(b models.Booking) calendar.Event {
	return calendar.Event{
		ID:          calendarEventID(b),
		Summary:     "Lesson",
		Description: b.Notes,
		Start:       b.ScheduledAt,
		End:         b.End(),
		Timezone:    b.Timezone,
	}
}

// calendarEventID derives a stable external event id from the booking id, so
// reschedules and cancellations can address the mirrored event without
// storing a mapping.
func calendarEventID(b models.Booking) string {
	return strings.ReplaceAll(strings.ToLower(b.ID), "-", "")
}
