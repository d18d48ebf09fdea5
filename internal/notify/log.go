package notify

import (
	"context"

	"github.com/rs/zerolog"

	"lessonbook/internal/models"
)

// LogNotifier writes notifications to the log. Used when no messaging
// channel is configured.
type LogNotifier struct {
	Logger *zerolog.Logger
}

func (n LogNotifier) BookingConfirmed(_ context.Context, b models.Booking) error {
	n.Logger.Info().Str("booking_id", b.ID).Msg("notification: booking confirmed")
	return nil
}

func (n LogNotifier) BookingRescheduled(_ context.Context, b models.Booking, previous models.Interval) error {
	n.Logger.Info().Str("booking_id", b.ID).Time("previous_start", previous.Start).
		Msg("notification: booking rescheduled")
	return nil
}

func (n LogNotifier) BookingCancelled(_ context.Context, b models.Booking) error {
	n.Logger.Info().Str("booking_id", b.ID).Msg("notification: booking cancelled")
	return nil
}

func (n LogNotifier) PaymentRequested(_ context.Context, b models.Booking, checkoutURL string) error {
	n.Logger.Info().Str("booking_id", b.ID).Str("checkout_url", checkoutURL).
		Msg("notification: payment requested")
	return nil
}
