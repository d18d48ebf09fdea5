package service

import (
	"context"
	"fmt"

	"lessonbook/internal/events"
	"lessonbook/internal/metrics"
	"lessonbook/internal/models"
)

// CancelBooking cancels a booking on behalf of requestedBy and refunds any
// credits spent on it. The refund is best effort: a failed refund leaves the
// cancellation in place and is surfaced through logs and metrics.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, requestedBy string) (*models.Booking, error) {
	const op = "service.BookingService.CancelBooking"

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if booking.Status.IsCancelled() {
		return nil, models.NewError(models.KindConflict, "Booking is already cancelled.")
	}
	if requestedBy != booking.TutorID && requestedBy != booking.StudentID {
		return nil, models.NewError(models.KindPolicyViolation, "Only the tutor or the student can cancel this booking.")
	}

	status := models.StatusCancelled
	role := "system"
	switch requestedBy {
	case booking.TutorID:
		status = models.StatusCancelledByTutor
		role = "tutor"
	case booking.StudentID:
		status = models.StatusCancelledByStudent
		role = "student"
	}

	cancelled, err := s.bookings.CancelBooking(ctx, bookingID, status)
	if err != nil {
		return nil, err
	}

	if booking.PaymentStatus == models.PaymentPaid {
		if err := s.credits.RefundForBooking(ctx, bookingID); err != nil {
			metrics.IncSideEffectFailure("credit_refund")
			s.logger.Error().Err(err).Str("booking_id", bookingID).Msg("credit refund failed")
		}
	}

	metrics.IncCancellation(role)
	s.audit.RecordTransition(ctx, *cancelled, models.AuditActionCancelled, "cancelled by "+role)
	s.publish(events.TypeBookingCancelled, BookingEvent{Booking: *cancelled, RequestedBy: requestedBy})

	s.logger.Info().Str("booking_id", cancelled.ID).Str("requested_by", role).Msg("booking cancelled")
	return cancelled, nil
}
