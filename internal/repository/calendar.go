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

// CalendarRepository stores external calendar account links and the per
// provider sync freshness used by the busy-window gate.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs the repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// CalendarID returns the external calendar id linked for a tutor/provider.
func (r *CalendarRepository) CalendarID(ctx context.Context, tutorID, provider string) (string, error) {
	const op = "repository.CalendarRepository.CalendarID"

	var calendarID string
	err := r.db.GetContext(ctx, &calendarID,
		`SELECT calendar_id FROM calendar_accounts WHERE tutor_id = $1 AND provider = $2`,
		tutorID, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return calendarID, nil
}

// LinkedTutors returns every tutor with at least one calendar account; the
// refresher iterates these.
func (r *CalendarRepository) LinkedTutors(ctx context.Context) ([]string, error) {
	const op = "repository.CalendarRepository.LinkedTutors"

	var tutors []string
	err := r.db.SelectContext(ctx, &tutors,
		`SELECT DISTINCT tutor_id FROM calendar_accounts ORDER BY tutor_id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tutors, nil
}

// SyncStatus returns the stored freshness of every provider for a tutor.
func (r *CalendarRepository) SyncStatus(ctx context.Context, tutorID string) ([]models.ProviderSyncStatus, error) {
	const op = "repository.CalendarRepository.SyncStatus"

	var statuses []models.ProviderSyncStatus
	err := r.db.SelectContext(ctx, &statuses,
		`SELECT tutor_id, provider, freshness, last_synced_at
		 FROM calendar_sync_status WHERE tutor_id = $1`,
		tutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return statuses, nil
}

// UpsertSyncStatus records the outcome of a sync attempt.
func (r *CalendarRepository) UpsertSyncStatus(ctx context.Context, tutorID, provider string, freshness models.Freshness, syncedAt time.Time) error {
	const op = "repository.CalendarRepository.UpsertSyncStatus"

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calendar_sync_status (tutor_id, provider, freshness, last_synced_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tutor_id, provider)
		 DO UPDATE SET freshness = EXCLUDED.freshness, last_synced_at = EXCLUDED.last_synced_at`,
		tutorID, provider, freshness, syncedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
