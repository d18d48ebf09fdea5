package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lessonbook/internal/models"
)

// ScheduleRepository reads a tutor's recurring availability, ad hoc blocked
// intervals, and scheduling policy.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// GetAvailability returns the tutor's weekly availability template.
func (r *ScheduleRepository) GetAvailability(ctx context.Context, tutorID string) ([]models.AvailabilityWindow, error) {
	const op = "repository.ScheduleRepository.GetAvailability"
	const query = `SELECT tutor_id, day_of_week, start_time, end_time, is_available
		FROM tutor_availability WHERE tutor_id = $1
		ORDER BY day_of_week, start_time`

	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, tutorID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return windows, nil
}

// GetBlockedIntervals returns blocked intervals overlapping [from, to).
func (r *ScheduleRepository) GetBlockedIntervals(ctx context.Context, tutorID string, from, to time.Time) ([]models.BlockedInterval, error) {
	const op = "repository.ScheduleRepository.GetBlockedIntervals"
	const query = `SELECT tutor_id, start_time, end_time FROM blocked_times
		WHERE tutor_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time`

	var blocked []models.BlockedInterval
	if err := r.db.SelectContext(ctx, &blocked, query, tutorID, from, to); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return blocked, nil
}

// GetTutorPolicy returns the tutor's scheduling limits, falling back to
// defaults when the tutor never saved any.
func (r *ScheduleRepository) GetTutorPolicy(ctx context.Context, tutorID string) (models.TutorPolicy, error) {
	const op = "repository.ScheduleRepository.GetTutorPolicy"
	const query = `SELECT tutor_id, advance_booking_days_min, advance_booking_days_max,
			max_lessons_per_day, max_lessons_per_week, buffer_time_minutes, timezone
		FROM tutor_booking_settings WHERE tutor_id = $1`

	var p models.TutorPolicy
	if err := r.db.GetContext(ctx, &p, query, tutorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultTutorPolicy(tutorID), nil
		}
		return models.TutorPolicy{}, fmt.Errorf("%s: %w", op, err)
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	return p, nil
}
