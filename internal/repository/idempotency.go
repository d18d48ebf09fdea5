package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"lessonbook/internal/idempotency"
)

// IdempotencyRepository stores mutation-id reservations in Postgres so they
// survive process restarts and share fate with the booking writes.
type IdempotencyRepository struct {
	db *sqlx.DB
}

// NewIdempotencyRepository constructs the repository.
func NewIdempotencyRepository(db *sqlx.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Claim atomically reserves a key via INSERT; the unique constraint decides
// concurrent claims.
func (r *IdempotencyRepository) Claim(ctx context.Context, key, ownerID string) (idempotency.Claim, error) {
	const op = "repository.IdempotencyRepository.Claim"

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO processed_requests (idempotency_key, status, owner_id, created_at, updated_at)
		 VALUES ($1, 'processing', $2, NOW(), NOW())`,
		key, ownerID)
	if err == nil {
		return idempotency.Claim{Status: idempotency.StatusClaimed}, nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != "23505" {
		return idempotency.Claim{}, fmt.Errorf("%s: %w", op, err)
	}

	// Key already exists; report its current state.
	var row struct {
		Status    string    `db:"status"`
		Response  []byte    `db:"response_body"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err = r.db.GetContext(ctx, &row,
		`SELECT status, response_body, updated_at FROM processed_requests WHERE idempotency_key = $1`,
		key)
	if err != nil {
		return idempotency.Claim{}, fmt.Errorf("%s: %w", op, err)
	}

	if row.Status == "completed" {
		return idempotency.Claim{Status: idempotency.StatusCompleted, Response: row.Response}, nil
	}
	return idempotency.Claim{Status: idempotency.StatusProcessing, UpdatedAt: row.UpdatedAt}, nil
}

// Poll reports the current state of a reservation.
func (r *IdempotencyRepository) Poll(ctx context.Context, key string) (found, completed bool, response []byte, err error) {
	const op = "repository.IdempotencyRepository.Poll"

	var row struct {
		Status   string `db:"status"`
		Response []byte `db:"response_body"`
	}
	err = r.db.GetContext(ctx, &row,
		`SELECT status, response_body FROM processed_requests WHERE idempotency_key = $1`,
		key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil, nil
	}
	if err != nil {
		return false, false, nil, fmt.Errorf("%s: %w", op, err)
	}
	return true, row.Status == "completed", row.Response, nil
}

// Complete stores the response and marks the reservation done.
func (r *IdempotencyRepository) Complete(ctx context.Context, key string, response []byte) error {
	const op = "repository.IdempotencyRepository.Complete"

	_, err := r.db.ExecContext(ctx,
		`UPDATE processed_requests SET status = 'completed', response_body = $2, updated_at = NOW()
		 WHERE idempotency_key = $1`,
		key, response)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ReleaseStale deletes a processing reservation last touched before olderThan.
func (r *IdempotencyRepository) ReleaseStale(ctx context.Context, key string, olderThan time.Time) (bool, error) {
	const op = "repository.IdempotencyRepository.ReleaseStale"

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_requests
		 WHERE idempotency_key = $1 AND status = 'processing' AND updated_at < $2`,
		key, olderThan)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

// Cleanup removes a failed reservation so the key can be retried.
func (r *IdempotencyRepository) Cleanup(ctx context.Context, key string) error {
	const op = "repository.IdempotencyRepository.Cleanup"

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_requests WHERE idempotency_key = $1 AND status = 'processing'`,
		key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
