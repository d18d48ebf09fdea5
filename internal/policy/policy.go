package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lessonbook/internal/models"
)

// Counter counts non-cancelled bookings for a tutor inside [from, to),
// optionally excluding one booking id (used during reschedule).
type Counter interface {
	CountBookings(ctx context.Context, tutorID string, from, to time.Time, excludeID string) (int, error)
}

// Checker evaluates a tutor's booking-window and capacity limits.
type Checker struct {
	logger *zerolog.Logger
}

// NewChecker creates a policy checker.
func NewChecker(logger *zerolog.Logger) *Checker {
	return &Checker{logger: logger}
}

// CheckAdvanceWindow enforces the minimum/maximum advance-booking days,
// counted in calendar days in the tutor's timezone.
func (c *Checker) CheckAdvanceWindow(policy models.TutorPolicy, scheduledAt, now time.Time) error {
	loc := c.locationOrUTC(policy.Timezone, policy.TutorID)

	daysAhead := calendarDaysBetween(dateOf(now, loc), dateOf(scheduledAt, loc))
	if daysAhead < policy.AdvanceBookingDaysMin {
		return models.Errorf(models.KindPolicyViolation,
			"Bookings must be made at least %d day(s) in advance.", policy.AdvanceBookingDaysMin)
	}
	if policy.AdvanceBookingDaysMax > 0 && daysAhead > policy.AdvanceBookingDaysMax {
		return models.Errorf(models.KindPolicyViolation,
			"Bookings cannot be made more than %d days in advance.", policy.AdvanceBookingDaysMax)
	}
	return nil
}

// CheckCapacity enforces the per-day and per-week lesson caps. When both caps
// are unset the check passes without touching the datastore.
func (c *Checker) CheckCapacity(ctx context.Context, counter Counter, policy models.TutorPolicy, scheduledAt time.Time, excludeID string) error {
	const op = "policy.Checker.CheckCapacity"

	if policy.MaxLessonsPerDay == nil && policy.MaxLessonsPerWeek == nil {
		return nil
	}

	loc := c.locationOrUTC(policy.Timezone, policy.TutorID)

	if policy.MaxLessonsPerDay != nil {
		dayStart := dateOf(scheduledAt, loc)
		count, err := counter.CountBookings(ctx, policy.TutorID, dayStart, dayStart.AddDate(0, 0, 1), excludeID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if count >= *policy.MaxLessonsPerDay {
			return models.Errorf(models.KindPolicyViolation,
				"You've reached the daily lesson limit (%d) for this day.", *policy.MaxLessonsPerDay)
		}
	}

	if policy.MaxLessonsPerWeek != nil {
		weekStart := startOfWeek(scheduledAt, loc)
		count, err := counter.CountBookings(ctx, policy.TutorID, weekStart, weekStart.AddDate(0, 0, 7), excludeID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if count >= *policy.MaxLessonsPerWeek {
			return models.Errorf(models.KindPolicyViolation,
				"You've reached the weekly lesson limit (%d) for this week.", *policy.MaxLessonsPerWeek)
		}
	}

	return nil
}

func (c *Checker) locationOrUTC(name, tutorID string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil || name == "" {
		if c.logger != nil {
			c.logger.Warn().Str("timezone", name).Str("tutor_id", tutorID).
				Msg("invalid tutor timezone, evaluating policy in UTC")
		}
		return time.UTC
	}
	return loc
}

// dateOf truncates an instant to local midnight.
func dateOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// startOfWeek returns local midnight of the Sunday starting the week of t.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	day := dateOf(t, loc)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// calendarDaysBetween counts calendar days from a to b. Rounding through a
// half-day keeps DST-shortened and -lengthened days counting as one day.
func calendarDaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	if d < 0 {
		return -int((-d + 12*time.Hour) / (24 * time.Hour))
	}
	return int((d + 12*time.Hour) / (24 * time.Hour))
}
