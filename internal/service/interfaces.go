package service

import (
	"context"
	"time"

	"lessonbook/internal/models"
	"lessonbook/internal/repository"
)

// BookingStore is the booking persistence the service depends on. It also
// satisfies policy.Counter.
type BookingStore interface {
	CreateBookingAtomic(ctx context.Context, p repository.CreateBookingParams) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	FindBookingsInRange(ctx context.Context, tutorID string, from, to time.Time, excludeID string) ([]models.Booking, error)
	CountBookings(ctx context.Context, tutorID string, from, to time.Time, excludeID string) (int, error)
	HardDeleteBooking(ctx context.Context, id string) error
	CompleteElapsedBookings(ctx context.Context, now time.Time) (int64, error)
	UpdateBookingSchedule(ctx context.Context, p repository.UpdateBookingScheduleParams) (*models.Booking, error)
	CancelBooking(ctx context.Context, id string, status models.BookingStatus) (*models.Booking, error)
	MarkPaid(ctx context.Context, id string) (*models.Booking, error)
}

// TutorScheduleStore reads the tutor's recurring availability, ad hoc blocks
// and booking policy.
type TutorScheduleStore interface {
	GetAvailability(ctx context.Context, tutorID string) ([]models.AvailabilityWindow, error)
	GetBlockedIntervals(ctx context.Context, tutorID string, from, to time.Time) ([]models.BlockedInterval, error)
	GetTutorPolicy(ctx context.Context, tutorID string) (models.TutorPolicy, error)
}

// CreditLedger redeems and refunds lesson credits.
type CreditLedger interface {
	RedeemPackageMinutes(ctx context.Context, packageID, bookingID string, minutes int) error
	RedeemSubscriptionLesson(ctx context.Context, subscriptionID, bookingID string) error
	RefundForBooking(ctx context.Context, bookingID string) error
}

// CalendarSource reports external busy windows plus provider freshness.
type CalendarSource interface {
	BusyWindows(ctx context.Context, tutorID string, from, to time.Time) (models.BusyReport, error)
}

// Locker serializes booking writes per tutor.
type Locker interface {
	Acquire(ctx context.Context, tutorID, ownerID string) error
	Release(ctx context.Context, tutorID, ownerID string) error
}

// EventPublisher emits booking lifecycle events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// AuditTrail records lifecycle entries and race tombstones.
type AuditTrail interface {
	RecordRaceLost(ctx context.Context, b models.Booking, winnerID string) error
	RecordTransition(ctx context.Context, b models.Booking, action, detail string)
}

// IdempotencyRunner executes a mutation at most once per key.
type IdempotencyRunner interface {
	Do(ctx context.Context, key, ownerID string, fn func(context.Context) ([]byte, error)) (cached bool, response []byte, err error)
}

// Checkout produces a payment link for a pending booking.
type Checkout interface {
	CreateCheckout(ctx context.Context, b models.Booking) (string, error)
}
