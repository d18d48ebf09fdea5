package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending            BookingStatus = "pending"
	StatusConfirmed          BookingStatus = "confirmed"
	StatusCancelled          BookingStatus = "cancelled"
	StatusCancelledByTutor   BookingStatus = "cancelled_by_tutor"
	StatusCancelledByStudent BookingStatus = "cancelled_by_student"
	StatusCompleted          BookingStatus = "completed"
)

// IsCancelled reports whether the status is any of the cancelled variants.
func (s BookingStatus) IsCancelled() bool {
	switch s {
	case StatusCancelled, StatusCancelledByTutor, StatusCancelledByStudent:
		return true
	}
	return false
}

// IsTerminal reports whether the status can never change again.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCompleted || s.IsCancelled()
}

// PaymentStatus tracks how a booking was (or will be) paid.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentComplimentary PaymentStatus = "complimentary"
)

// MaxReschedules caps how many times a single booking may be moved.
const MaxReschedules = 3

// Booking is a scheduled lesson between a tutor and a student.
type Booking struct {
	ID                    string        `db:"id"`
	TutorID               string        `db:"tutor_id"`
	StudentID             string        `db:"student_id"`
	ServiceID             string        `db:"service_id"`
	ScheduledAt           time.Time     `db:"scheduled_at"`
	DurationMinutes       int           `db:"duration_minutes"`
	Timezone              string        `db:"timezone"`
	Status                BookingStatus `db:"status"`
	PaymentStatus         PaymentStatus `db:"payment_status"`
	PaymentAmount         float64       `db:"payment_amount"`
	Currency              string        `db:"currency"`
	Notes                 string        `db:"notes"`
	RescheduleCount       int           `db:"reschedule_count"`
	RescheduleRequestedBy string        `db:"reschedule_requested_by"`
	RescheduleReason      string        `db:"reschedule_reason"`
	MeetingURL            string        `db:"meeting_url"`
	MeetingProvider       string        `db:"meeting_provider"`
	CreatedAt             time.Time     `db:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at"`
}

// Duration returns the lesson length.
func (b *Booking) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

// End returns the instant the lesson finishes.
func (b *Booking) End() time.Time {
	return b.ScheduledAt.Add(b.Duration())
}

// Interval returns the half-open occupied interval [ScheduledAt, End).
func (b *Booking) Interval() Interval {
	return Interval{Start: b.ScheduledAt, End: b.End()}
}

// Interval is a half-open time interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Expand grows the interval by pad on both sides.
func (i Interval) Expand(pad time.Duration) Interval {
	return Interval{Start: i.Start.Add(-pad), End: i.End.Add(pad)}
}

// AvailabilityWindow is one recurring weekly availability entry for a tutor.
// StartTime and EndTime are wall-clock "HH:MM" strings in the tutor's zone.
type AvailabilityWindow struct {
	TutorID     string       `db:"tutor_id"`
	DayOfWeek   time.Weekday `db:"day_of_week"`
	StartTime   string       `db:"start_time"`
	EndTime     string       `db:"end_time"`
	IsAvailable bool         `db:"is_available"`
}

// BlockedInterval is an ad hoc interval the tutor marked as unbookable.
type BlockedInterval struct {
	TutorID string    `db:"tutor_id"`
	Start   time.Time `db:"start_time"`
	End     time.Time `db:"end_time"`
}

// Interval returns the blocked range as a half-open interval.
func (b BlockedInterval) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// BusySourceInternal marks busy windows derived from the engine's own bookings.
const BusySourceInternal = "internal-booking"

// BusyWindow is an interval during which the tutor is unavailable.
type BusyWindow struct {
	Start  time.Time
	End    time.Time
	Source string
}

// Interval returns the busy range as a half-open interval.
func (w BusyWindow) Interval() Interval {
	return Interval{Start: w.Start, End: w.End}
}

// Freshness classifies how trustworthy an external calendar feed is.
type Freshness string

const (
	FreshnessVerified   Freshness = "verified"
	FreshnessStale      Freshness = "stale"
	FreshnessUnverified Freshness = "unverified"
)

// BusyReport is the aggregate of external busy windows plus the freshness
// classification of every consulted provider.
type BusyReport struct {
	Windows             []BusyWindow
	StaleProviders      []string
	UnverifiedProviders []string
}

// TutorPolicy holds the scheduling limits a tutor configured.
// Nil caps mean "no limit".
type TutorPolicy struct {
	TutorID               string `db:"tutor_id"`
	AdvanceBookingDaysMin int    `db:"advance_booking_days_min"`
	AdvanceBookingDaysMax int    `db:"advance_booking_days_max"`
	MaxLessonsPerDay      *int   `db:"max_lessons_per_day"`
	MaxLessonsPerWeek     *int   `db:"max_lessons_per_week"`
	BufferTimeMinutes     int    `db:"buffer_time_minutes"`
	Timezone              string `db:"timezone"`
}

// DefaultTutorPolicy returns the limits used when a tutor never saved any.
func DefaultTutorPolicy(tutorID string) TutorPolicy {
	return TutorPolicy{
		TutorID:               tutorID,
		AdvanceBookingDaysMin: 0,
		AdvanceBookingDaysMax: 365,
		BufferTimeMinutes:     0,
		Timezone:              "UTC",
	}
}

// Buffer returns the configured buffer as a duration.
func (p TutorPolicy) Buffer() time.Duration {
	return time.Duration(p.BufferTimeMinutes) * time.Minute
}
