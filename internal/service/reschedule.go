package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lessonbook/internal/events"
	"lessonbook/internal/lock"
	"lessonbook/internal/metrics"
	"lessonbook/internal/models"
	"lessonbook/internal/repository"
	"lessonbook/internal/schedule"
)

// RescheduleRequest moves an existing booking to a new time.
type RescheduleRequest struct {
	BookingID       string
	RequestedBy     string
	ScheduledAt     time.Time
	DurationMinutes int
	Timezone        string
	Reason          string
}

// RescheduleBooking moves a booking, re-running every conflict and policy
// check against the new time. The booking itself is excluded from conflict
// checks so it cannot collide with its old slot.
func (s *BookingService) RescheduleBooking(ctx context.Context, req RescheduleRequest) (*models.Booking, error) {
	const op = "service.BookingService.RescheduleBooking"

	booking, err := s.bookings.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	if booking.Status.IsTerminal() {
		return nil, models.NewError(models.KindConflict, "Booking is already cancelled or completed.")
	}
	if booking.ScheduledAt.Before(now) {
		return nil, models.NewError(models.KindPolicyViolation, "Past lessons cannot be rescheduled.")
	}
	if req.RequestedBy != booking.TutorID && req.RequestedBy != booking.StudentID {
		return nil, models.NewError(models.KindPolicyViolation, "Only the tutor or the student can reschedule this booking.")
	}
	if booking.RescheduleCount >= models.MaxReschedules {
		return nil, models.Errorf(models.KindConflict, "Maximum reschedules (%d) reached.", models.MaxReschedules)
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = booking.DurationMinutes
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = booking.Timezone
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, models.Errorf(models.KindPolicyViolation, "Unknown timezone %q.", timezone)
	}
	end := req.ScheduledAt.Add(time.Duration(duration) * time.Minute)

	tutorPolicy, err := s.tutorSchedule.GetTutorPolicy(ctx, booking.TutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.policy.CheckAdvanceWindow(tutorPolicy, req.ScheduledAt, now); err != nil {
		metrics.IncBookingConflict(string(models.KindOf(err)))
		return nil, err
	}
	if err := s.policy.CheckCapacity(ctx, s.bookings, tutorPolicy, req.ScheduledAt, booking.ID); err != nil {
		metrics.IncBookingConflict(string(models.KindOf(err)))
		return nil, err
	}

	report, err := s.calendar.BusyWindows(ctx, booking.TutorID, req.ScheduledAt.Add(-raceWindow), end.Add(raceWindow))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := schedule.GateFreshness(report); err != nil {
		metrics.IncBookingConflict(string(models.KindOf(err)))
		return nil, err
	}

	availability, err := s.tutorSchedule.GetAvailability(ctx, booking.TutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	neighbors, err := s.bookings.FindBookingsInRange(ctx, booking.TutorID,
		req.ScheduledAt.Add(-raceWindow), end.Add(raceWindow), booking.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := schedule.Validate(schedule.ValidationInput{
		ScheduledAt:      req.ScheduledAt,
		DurationMinutes:  duration,
		Availability:     availability,
		Bookings:         neighbors,
		BufferMinutes:    tutorPolicy.BufferTimeMinutes,
		Busy:             report.Windows,
		Timezone:         tutorPolicy.Timezone,
		ExcludeBookingID: booking.ID,
	})
	if !result.Valid {
		metrics.IncBookingConflict(string(models.KindConflict))
		return nil, result.Err()
	}

	ownerID := uuid.NewString()
	if err := s.locker.Acquire(ctx, booking.TutorID, ownerID); err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			metrics.IncBookingConflict(string(models.KindContention))
			return nil, models.NewError(models.KindContention, repository.MsgCalendarBusy)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := s.locker.Release(ctx, booking.TutorID, ownerID); err != nil {
			s.logger.Warn().Err(err).Str("tutor_id", booking.TutorID).Msg("failed to release calendar lock")
		}
	}()

	previous := booking.Interval()
	updated, err := s.bookings.UpdateBookingSchedule(ctx, repository.UpdateBookingScheduleParams{
		ID:              booking.ID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: duration,
		Timezone:        timezone,
		RequestedBy:     req.RequestedBy,
		Reason:          req.Reason,
	})
	if err != nil {
		return nil, err
	}

	metrics.IncReschedule()
	s.audit.RecordTransition(ctx, *updated, models.AuditActionRescheduled,
		fmt.Sprintf("moved from %s by %s", previous.Start.UTC().Format(time.RFC3339), req.RequestedBy))
	s.publish(events.TypeBookingRescheduled, BookingEvent{
		Booking:     *updated,
		Previous:    &previous,
		RequestedBy: req.RequestedBy,
	})

	s.logger.Info().Str("booking_id", updated.ID).Time("scheduled_at", updated.ScheduledAt).
		Int("reschedule_count", updated.RescheduleCount).Msg("booking rescheduled")
	return updated, nil
}
