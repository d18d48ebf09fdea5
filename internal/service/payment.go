package service

import (
	"context"
	"fmt"

	"lessonbook/internal/events"
	"lessonbook/internal/models"
)

// MarkBookingPaid confirms a pending booking after its payment settles.
func (s *BookingService) MarkBookingPaid(ctx context.Context, bookingID string) (*models.Booking, error) {
	paid, err := s.bookings.MarkPaid(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.audit.RecordTransition(ctx, *paid, models.AuditActionPaid, "")
	s.publish(events.TypeBookingConfirmed, BookingEvent{Booking: *paid})

	s.logger.Info().Str("booking_id", paid.ID).Msg("booking marked paid")
	return paid, nil
}

// StaticCheckout builds payment links from a base URL. It stands in for a
// real payment provider integration.
type StaticCheckout struct {
	BaseURL string
}

// CreateCheckout returns the hosted payment page for a booking.
func (c StaticCheckout) CreateCheckout(_ context.Context, b models.Booking) (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("checkout base url not configured")
	}
	return fmt.Sprintf("%s/pay/%s", c.BaseURL, b.ID), nil
}
