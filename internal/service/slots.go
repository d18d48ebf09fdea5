package service

import (
	"context"
	"fmt"
	"time"

	"lessonbook/internal/metrics"
	"lessonbook/internal/schedule"
)

// SlotQuery asks for the open slots of one tutor inside a horizon.
type SlotQuery struct {
	TutorID             string
	From                time.Time
	To                  time.Time
	SlotDurationMinutes int
}

// ListOpenSlots expands the tutor's availability into bookable slots, minus
// existing bookings, blocks and external busy windows. The horizon is
// clamped to the tutor's advance-booking window. Degraded calendar providers
// only block writes, not listing; their windows are simply absent here.
func (s *BookingService) ListOpenSlots(ctx context.Context, q SlotQuery) ([]schedule.Slot, error) {
	const op = "service.BookingService.ListOpenSlots"

	started := time.Now()
	now := s.now()

	tutorPolicy, err := s.tutorSchedule.GetTutorPolicy(ctx, q.TutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	loc, err := time.LoadLocation(tutorPolicy.Timezone)
	if err != nil {
		loc = time.UTC
	}
	midnight := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	earliest := midnight.AddDate(0, 0, tutorPolicy.AdvanceBookingDaysMin)
	latest := midnight.AddDate(0, 0, tutorPolicy.AdvanceBookingDaysMax+1)

	from, to := q.From, q.To
	if from.Before(earliest) {
		from = earliest
	}
	if to.After(latest) {
		to = latest
	}
	if !from.Before(to) {
		return nil, nil
	}

	availability, err := s.tutorSchedule.GetAvailability(ctx, q.TutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	blocked, err := s.tutorSchedule.GetBlockedIntervals(ctx, q.TutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	bookings, err := s.bookings.FindBookingsInRange(ctx, q.TutorID, from.Add(-raceWindow), to.Add(raceWindow), "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	report, err := s.calendar.BusyWindows(ctx, q.TutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(report.StaleProviders) > 0 || len(report.UnverifiedProviders) > 0 {
		s.logger.Warn().Str("tutor_id", q.TutorID).
			Strs("stale", report.StaleProviders).
			Strs("unverified", report.UnverifiedProviders).
			Msg("listing slots with degraded calendar data")
	}

	slots := schedule.Collect(schedule.FilterPast(s.generator.Slots(schedule.SlotRequest{
		Availability:        availability,
		Blocked:             blocked,
		Busy:                report.Windows,
		Bookings:            bookings,
		BufferMinutes:       tutorPolicy.BufferTimeMinutes,
		Timezone:            tutorPolicy.Timezone,
		HorizonStart:        from,
		HorizonEnd:          to,
		SlotDurationMinutes: q.SlotDurationMinutes,
	}), now))

	metrics.ObserveSlotGeneration(time.Since(started))
	return slots, nil
}
