package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"lessonbook/internal/models"
)

// User-facing messages for datastore-level conflict outcomes. Rendered
// verbatim to the caller.
const (
	MsgSlotTaken    = "This time slot was just booked. Please refresh and select a different time."
	MsgBlocked      = "This time window is blocked by the tutor."
	MsgCalendarBusy = "Please retry booking; the tutor calendar is busy right now."
)

const bookingColumns = `id, tutor_id, student_id, service_id, scheduled_at, duration_minutes,
	timezone, status, payment_status, payment_amount, currency, notes,
	reschedule_count, reschedule_requested_by, reschedule_reason,
	meeting_url, meeting_provider, created_at, updated_at`

// BookingRepository persists bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateBookingParams are the inputs to the atomic insert procedure.
type CreateBookingParams struct {
	TutorID         string
	StudentID       string
	ServiceID       string
	ScheduledAt     time.Time
	DurationMinutes int
	Timezone        string
	Status          models.BookingStatus
	PaymentStatus   models.PaymentStatus
	PaymentAmount   float64
	Currency        string
	Notes           string
}

// CreateBookingAtomic inserts a booking through the datastore-side
// check-and-insert procedure. The procedure enforces non-overlap under a
// per-tutor advisory lock; its error codes map onto the conflict taxonomy.
func (r *BookingRepository) CreateBookingAtomic(ctx context.Context, p CreateBookingParams) (*models.Booking, error) {
	const op = "repository.BookingRepository.CreateBookingAtomic"
	const query = `SELECT ` + bookingColumns + `
		FROM create_booking_atomic($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var b models.Booking
	err := r.db.GetContext(ctx, &b, query,
		p.TutorID, p.StudentID, p.ServiceID, p.ScheduledAt, p.DurationMinutes,
		p.Timezone, p.Status, p.PaymentStatus, p.PaymentAmount, p.Currency, p.Notes)
	if err != nil {
		return nil, mapInsertError(op, err)
	}
	return &b, nil
}

func mapInsertError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case "P0001", "23P01":
			return models.WrapError(models.KindConflict, MsgSlotTaken, err)
		case "P0002":
			return models.WrapError(models.KindConflict, MsgBlocked, err)
		case "55P03":
			return models.WrapError(models.KindContention, MsgCalendarBusy, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GetBooking fetches one booking by id.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	const op = "repository.BookingRepository.GetBooking"
	const query = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var b models.Booking
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &b, nil
}

// FindBookingsInRange returns pending and confirmed bookings for a tutor with
// scheduled_at inside [from, to], optionally excluding one booking id. Used
// both for conflict validation and post-insert race reconciliation.
func (r *BookingRepository) FindBookingsInRange(ctx context.Context, tutorID string, from, to time.Time, excludeID string) ([]models.Booking, error) {
	const op = "repository.BookingRepository.FindBookingsInRange"

	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE tutor_id = $1 AND status IN ('pending', 'confirmed')
		AND scheduled_at >= $2 AND scheduled_at <= $3`
	args := []interface{}{tutorID, from, to}
	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	query += " ORDER BY scheduled_at"

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return bookings, nil
}

// CountBookings counts non-cancelled bookings for a tutor inside [from, to),
// optionally excluding one booking id.
func (r *BookingRepository) CountBookings(ctx context.Context, tutorID string, from, to time.Time, excludeID string) (int, error) {
	const op = "repository.BookingRepository.CountBookings"

	query := `SELECT COUNT(*) FROM bookings
		WHERE tutor_id = $1
		AND status NOT IN ('cancelled', 'cancelled_by_tutor', 'cancelled_by_student')
		AND scheduled_at >= $2 AND scheduled_at < $3`
	args := []interface{}{tutorID, from, to}
	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// HardDeleteBooking removes a booking row outright. Used to roll back the
// loser of a post-insert race and bookings whose credit redemption failed.
func (r *BookingRepository) HardDeleteBooking(ctx context.Context, id string) error {
	const op = "repository.BookingRepository.HardDeleteBooking"

	if _, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CompleteElapsedBookings marks confirmed bookings whose end time passed as
// completed, and returns how many rows changed.
func (r *BookingRepository) CompleteElapsedBookings(ctx context.Context, now time.Time) (int64, error) {
	const op = "repository.BookingRepository.CompleteElapsedBookings"

	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = 'completed', updated_at = NOW()
		 WHERE status = 'confirmed'
		 AND scheduled_at + make_interval(mins => duration_minutes) <= $1`,
		now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

// UpdateBookingScheduleParams carry a reschedule mutation.
type UpdateBookingScheduleParams struct {
	ID              string
	ScheduledAt     time.Time
	DurationMinutes int
	Timezone        string
	RequestedBy     string
	Reason          string
}

// UpdateBookingSchedule moves a booking and increments its reschedule count.
// The WHERE clause re-checks the preconditions so a concurrent cancel or a
// racing reschedule past the ceiling loses cleanly.
func (r *BookingRepository) UpdateBookingSchedule(ctx context.Context, p UpdateBookingScheduleParams) (*models.Booking, error) {
	const op = "repository.BookingRepository.UpdateBookingSchedule"
	query := `UPDATE bookings SET
			scheduled_at = $2, duration_minutes = $3, timezone = $4,
			reschedule_count = reschedule_count + 1,
			reschedule_requested_by = $5, reschedule_reason = $6,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		AND reschedule_count < ` + fmt.Sprint(models.MaxReschedules) + `
		RETURNING ` + bookingColumns

	var b models.Booking
	err := r.db.GetContext(ctx, &b, query,
		p.ID, p.ScheduledAt, p.DurationMinutes, p.Timezone, p.RequestedBy, p.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewError(models.KindConflict, "This booking can no longer be rescheduled.")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &b, nil
}

// CancelBooking writes a terminal cancelled status. The guard makes repeated
// cancellation a no-op error rather than a second mutation.
func (r *BookingRepository) CancelBooking(ctx context.Context, id string, status models.BookingStatus) (*models.Booking, error) {
	const op = "repository.BookingRepository.CancelBooking"
	query := `UPDATE bookings SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN
			('cancelled', 'cancelled_by_tutor', 'cancelled_by_student', 'completed')
		RETURNING ` + bookingColumns

	var b models.Booking
	if err := r.db.GetContext(ctx, &b, query, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewError(models.KindConflict, "Booking is already cancelled or completed.")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &b, nil
}

// MarkPaid flips an unpaid booking to confirmed/paid after checkout completes.
func (r *BookingRepository) MarkPaid(ctx context.Context, id string) (*models.Booking, error) {
	const op = "repository.BookingRepository.MarkPaid"
	query := `UPDATE bookings SET status = 'confirmed', payment_status = 'paid', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'unpaid'
		AND status NOT IN ('cancelled', 'cancelled_by_tutor', 'cancelled_by_student', 'completed')
		RETURNING ` + bookingColumns

	var b models.Booking
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewError(models.KindConflict, "Booking is not awaiting payment.")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &b, nil
}
