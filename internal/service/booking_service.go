package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lessonbook/internal/events"
	"lessonbook/internal/lock"
	"lessonbook/internal/metrics"
	"lessonbook/internal/models"
	"lessonbook/internal/policy"
	"lessonbook/internal/repository"
	"lessonbook/internal/schedule"
)

// raceWindow is how far around a new booking the post-insert reconciliation
// looks for overlapping rows committed by concurrent requests.
const raceWindow = 24 * time.Hour

// CreditType selects which kind of prepaid credit pays for a lesson.
type CreditType string

const (
	CreditPackage      CreditType = "package"
	CreditSubscription CreditType = "subscription"
)

// CreditSource identifies the credit paying for a booking.
type CreditSource struct {
	Type CreditType
	ID   string
}

// CreateBookingRequest carries everything needed to book a lesson.
type CreateBookingRequest struct {
	TutorID         string
	StudentID       string
	ServiceID       string
	ScheduledAt     time.Time
	DurationMinutes int
	Timezone        string
	Notes           string
	Price           float64
	Currency        string
	Credit          *CreditSource
	// IdempotencyKey suppresses duplicate submissions. Empty disables it.
	IdempotencyKey string
}

// BookingEvent is the payload published on the event bus for every booking
// lifecycle change.
type BookingEvent struct {
	Booking     models.Booking   `json:"booking"`
	Previous    *models.Interval `json:"previous,omitempty"`
	CheckoutURL string           `json:"checkout_url,omitempty"`
	RequestedBy string           `json:"requested_by,omitempty"`
}

// Deps wires the booking service.
type Deps struct {
	Bookings      BookingStore
	TutorSchedule TutorScheduleStore
	Credits       CreditLedger
	Calendar      CalendarSource
	Locker        Locker
	Audit         AuditTrail
	Events        EventPublisher
	Idempotency   IdempotencyRunner
	Checkout      Checkout
	Logger        *zerolog.Logger
}

// BookingService implements the booking lifecycle: slot listing, conflict
// checked creation with post-insert race reconciliation, reschedule, cancel
// and payment confirmation.
type BookingService struct {
	bookings      BookingStore
	tutorSchedule TutorScheduleStore
	credits       CreditLedger
	calendar      CalendarSource
	locker        Locker
	audit         AuditTrail
	events        EventPublisher
	idempotency   IdempotencyRunner
	checkout      Checkout
	policy        *policy.Checker
	generator     *schedule.Generator
	logger        *zerolog.Logger
	now           func() time.Time
}

// NewBookingService creates the service.
func NewBookingService(d Deps) *BookingService {
	return &BookingService{
		bookings:      d.Bookings,
		tutorSchedule: d.TutorSchedule,
		credits:       d.Credits,
		calendar:      d.Calendar,
		locker:        d.Locker,
		audit:         d.Audit,
		events:        d.Events,
		idempotency:   d.Idempotency,
		checkout:      d.Checkout,
		policy:        policy.NewChecker(d.Logger),
		generator:     schedule.NewGenerator(d.Logger),
		logger:        d.Logger,
		now:           time.Now,
	}
}

// CreateBooking books a lesson. Duplicate submissions carrying the same
// idempotency key return the first outcome instead of double-booking.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	const op = "service.BookingService.CreateBooking"

	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	var booking *models.Booking
	cached, response, err := s.idempotency.Do(ctx, req.IdempotencyKey, req.StudentID, func(ctx context.Context) ([]byte, error) {
		b, err := s.createBooking(ctx, req)
		if err != nil {
			return nil, err
		}
		booking = b
		return json.Marshal(b)
	})
	if err != nil {
		return nil, err
	}
	if cached || booking == nil {
		var b models.Booking
		if err := json.Unmarshal(response, &b); err != nil {
			return nil, fmt.Errorf("%s: decode cached response: %w", op, err)
		}
		return &b, nil
	}
	return booking, nil
}

func (s *BookingService) createBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	const op = "service.BookingService.createBooking"

	now := s.now()
	end := req.ScheduledAt.Add(time.Duration(req.DurationMinutes) * time.Minute)

	tutorPolicy, err := s.tutorSchedule.GetTutorPolicy(ctx, req.TutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.policy.CheckAdvanceWindow(tutorPolicy, req.ScheduledAt, now); err != nil {
		metrics.IncBookingConflict(string(models.KindOf(err)))
		return nil, err
	}
	if err := s.policy.CheckCapacity(ctx, s.bookings, tutorPolicy, req.ScheduledAt, ""); err != nil {
		metrics.IncBookingConflict(string(models.KindOf(err)))
		return nil, err
	}

	report, err := s.calendar.BusyWindows(ctx, req.TutorID, req.ScheduledAt.Add(-raceWindow), end.Add(raceWindow))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := schedule.GateFreshness(report); err != nil {
		metrics.IncBookingConflict(string(models.KindOf(err)))
		return nil, err
	}

	availability, err := s.tutorSchedule.GetAvailability(ctx, req.TutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	neighbors, err := s.bookings.FindBookingsInRange(ctx, req.TutorID, req.ScheduledAt.Add(-raceWindow), end.Add(raceWindow), "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := schedule.Validate(schedule.ValidationInput{
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Availability:    availability,
		Bookings:        neighbors,
		BufferMinutes:   tutorPolicy.BufferTimeMinutes,
		Busy:            report.Windows,
		Timezone:        tutorPolicy.Timezone,
	})
	if !result.Valid {
		metrics.IncBookingConflict(string(models.KindConflict))
		return nil, result.Err()
	}

	ownerID := uuid.NewString()
	if err := s.locker.Acquire(ctx, req.TutorID, ownerID); err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			metrics.IncBookingConflict(string(models.KindContention))
			return nil, models.NewError(models.KindContention, repository.MsgCalendarBusy)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := s.locker.Release(ctx, req.TutorID, ownerID); err != nil {
			s.logger.Warn().Err(err).Str("tutor_id", req.TutorID).Msg("failed to release calendar lock")
		}
	}()

	status, paymentStatus := initialState(req)
	created, err := s.bookings.CreateBookingAtomic(ctx, repository.CreateBookingParams{
		TutorID:         req.TutorID,
		StudentID:       req.StudentID,
		ServiceID:       req.ServiceID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Timezone:        req.Timezone,
		Status:          status,
		PaymentStatus:   paymentStatus,
		PaymentAmount:   req.Price,
		Currency:        req.Currency,
		Notes:           req.Notes,
	})
	if err != nil {
		metrics.IncBookingConflict(string(models.KindOf(err)))
		return nil, err
	}

	if err := s.reconcileRace(ctx, created); err != nil {
		return nil, err
	}

	if req.Credit != nil {
		if err := s.redeemCredit(ctx, created, *req.Credit, req.DurationMinutes); err != nil {
			s.rollbackCreate(ctx, created.ID, "credit redemption failed")
			metrics.IncCreditRedemption("failed")
			return nil, err
		}
		metrics.IncCreditRedemption("ok")
	}

	checkoutURL := ""
	if paymentStatus == models.PaymentUnpaid && s.checkout != nil {
		checkoutURL, err = s.checkout.CreateCheckout(ctx, *created)
		if err != nil {
			s.rollbackCreate(ctx, created.ID, "checkout creation failed")
			return nil, models.WrapError(models.KindSideEffect,
				"We couldn't start the payment for this lesson. Please try again.", err)
		}
	}

	metrics.IncBookingCreated(string(created.Status))
	s.audit.RecordTransition(ctx, *created, models.AuditActionCreated, "")
	s.publish(events.TypeBookingCreated, BookingEvent{Booking: *created})
	if checkoutURL != "" {
		s.publish(events.TypePaymentRequested, BookingEvent{Booking: *created, CheckoutURL: checkoutURL})
	}

	s.logger.Info().Str("booking_id", created.ID).Str("tutor_id", created.TutorID).
		Str("status", string(created.Status)).Time("scheduled_at", created.ScheduledAt).
		Msg("booking created")
	return created, nil
}

// reconcileRace looks for overlapping bookings committed concurrently and
// removes this one if a strictly earlier row overlaps it. The database
// already rejects overlaps it can see; this pass covers rows that landed
// between our validation read and our insert.
func (s *BookingService) reconcileRace(ctx context.Context, created *models.Booking) error {
	others, err := s.bookings.FindBookingsInRange(ctx, created.TutorID,
		created.ScheduledAt.Add(-raceWindow), created.End().Add(raceWindow), created.ID)
	if err != nil {
		// Keep the booking: the insert itself was conflict-checked.
		s.logger.Warn().Err(err).Str("booking_id", created.ID).Msg("race reconciliation read failed")
		return nil
	}

	for _, other := range others {
		if !other.Interval().Overlaps(created.Interval()) {
			continue
		}
		if beats(other, *created) {
			if err := s.audit.RecordRaceLost(ctx, *created, other.ID); err != nil {
				s.logger.Error().Err(err).Str("booking_id", created.ID).
					Msg("failed to write race tombstone")
			}
			s.rollbackCreate(ctx, created.ID, "lost overlap race")
			metrics.IncRaceLost()
			return models.NewError(models.KindRaceLost, repository.MsgSlotTaken)
		}
	}
	return nil
}

// beats reports whether a wins the overlap race against b: strictly earlier
// created_at wins, id breaks exact ties.
func beats(a, b models.Booking) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *BookingService) redeemCredit(ctx context.Context, b *models.Booking, credit CreditSource, minutes int) error {
	switch credit.Type {
	case CreditPackage:
		return s.credits.RedeemPackageMinutes(ctx, credit.ID, b.ID, minutes)
	case CreditSubscription:
		return s.credits.RedeemSubscriptionLesson(ctx, credit.ID, b.ID)
	default:
		return models.Errorf(models.KindCreditRedemption, "unknown credit type %q", credit.Type)
	}
}

func (s *BookingService) rollbackCreate(ctx context.Context, bookingID, reason string) {
	if err := s.bookings.HardDeleteBooking(ctx, bookingID); err != nil {
		s.logger.Error().Err(err).Str("booking_id", bookingID).Str("reason", reason).
			Msg("failed to roll back booking")
		return
	}
	s.logger.Info().Str("booking_id", bookingID).Str("reason", reason).Msg("booking rolled back")
}

func (s *BookingService) publish(eventType string, payload BookingEvent) {
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func initialState(req CreateBookingRequest) (models.BookingStatus, models.PaymentStatus) {
	switch {
	case req.Credit != nil:
		return models.StatusConfirmed, models.PaymentPaid
	case req.Price == 0:
		return models.StatusConfirmed, models.PaymentComplimentary
	default:
		return models.StatusPending, models.PaymentUnpaid
	}
}

func validateCreateRequest(req CreateBookingRequest) error {
	switch {
	case req.TutorID == "" || req.StudentID == "":
		return models.NewError(models.KindPolicyViolation, "Both a tutor and a student are required.")
	case req.DurationMinutes <= 0:
		return models.NewError(models.KindPolicyViolation, "Lesson duration must be positive.")
	case req.ScheduledAt.IsZero():
		return models.NewError(models.KindPolicyViolation, "A lesson time is required.")
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return models.Errorf(models.KindPolicyViolation, "Unknown timezone %q.", req.Timezone)
	}
	return nil
}
