package schedule

import (
	"time"

	"lessonbook/internal/models"
)

const (
	msgOutsideAvailability = "The selected time is outside the tutor's availability."
	msgBookingConflict     = "This time conflicts with an existing booking."
	msgBusyConflict        = "This time overlaps a busy window on the tutor's calendar."
)

// ValidationInput is a candidate booking time plus everything it must be
// checked against.
type ValidationInput struct {
	ScheduledAt     time.Time
	DurationMinutes int
	Availability    []models.AvailabilityWindow
	Bookings        []models.Booking
	BufferMinutes   int
	Busy            []models.BusyWindow
	Timezone        string
	// ExcludeBookingID skips one booking in the conflict check, so a
	// reschedule does not collide with itself.
	ExcludeBookingID string
}

// ValidationResult accumulates every failed check; callers get the complete
// picture rather than the first failure.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Err converts an invalid result into a classified conflict error.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msg := ""
	for i, e := range r.Errors {
		if i > 0 {
			msg += " "
		}
		msg += e
	}
	return models.NewError(models.KindConflict, msg)
}

// Validate checks a candidate interval against availability, existing
// bookings, and busy windows. All checks run; none short-circuits.
func Validate(in ValidationInput) ValidationResult {
	result := ValidationResult{Valid: true}
	fail := func(msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, msg)
	}

	candidate := models.Interval{
		Start: in.ScheduledAt,
		End:   in.ScheduledAt.Add(time.Duration(in.DurationMinutes) * time.Minute),
	}
	buffer := time.Duration(in.BufferMinutes) * time.Minute

	if !withinAvailability(candidate, in.Availability, in.Timezone) {
		fail(msgOutsideAvailability)
	}

	padded := candidate.Expand(buffer)
	for _, b := range in.Bookings {
		if b.Status.IsCancelled() || (in.ExcludeBookingID != "" && b.ID == in.ExcludeBookingID) {
			continue
		}
		if padded.Overlaps(b.Interval().Expand(buffer)) {
			fail(msgBookingConflict)
			break
		}
	}

	for _, w := range in.Busy {
		if candidate.Overlaps(w.Interval()) {
			fail(msgBusyConflict)
			break
		}
	}

	return result
}

func withinAvailability(candidate models.Interval, availability []models.AvailabilityWindow, timezone string) bool {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}

	localStart := candidate.Start.In(loc)
	localEnd := candidate.End.In(loc)
	startMin := localStart.Hour()*60 + localStart.Minute()
	endMin := localEnd.Hour()*60 + localEnd.Minute()
	if endMin <= startMin {
		// Crosses local midnight; availability windows are single-day.
		endMin = 24 * 60
	}

	for _, w := range availability {
		if !w.IsAvailable || w.DayOfWeek != localStart.Weekday() {
			continue
		}
		winStart, err := parseClock(w.StartTime)
		if err != nil {
			continue
		}
		winEnd, err := parseClock(w.EndTime)
		if err != nil {
			continue
		}
		if winStart <= startMin && endMin <= winEnd {
			return true
		}
	}
	return false
}
