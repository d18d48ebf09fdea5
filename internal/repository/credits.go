package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lessonbook/internal/models"
)

// CreditRepository is the ledger for package minutes and subscription
// lessons. Redemptions and refunds are written as paired ledger entries so a
// booking's credit consumption is always reconstructible.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs the repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

const (
	sourcePackage      = "package"
	sourceSubscription = "subscription"
)

// RedeemPackageMinutes debits minutes from a student package and records the
// ledger entry, atomically.
func (r *CreditRepository) RedeemPackageMinutes(ctx context.Context, packageID, bookingID string, minutes int) error {
	const op = "repository.CreditRepository.RedeemPackageMinutes"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE student_packages SET minutes_remaining = minutes_remaining - $2
		 WHERE id = $1 AND minutes_remaining >= $2`,
		packageID, minutes)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return models.NewError(models.KindCreditRedemption, "Not enough package minutes remaining.")
	}

	if err := insertLedgerEntry(ctx, tx, bookingID, sourcePackage, packageID, minutes, "redeem"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RedeemSubscriptionLesson debits one lesson from a subscription allowance.
func (r *CreditRepository) RedeemSubscriptionLesson(ctx context.Context, subscriptionID, bookingID string) error {
	const op = "repository.CreditRepository.RedeemSubscriptionLesson"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET lessons_remaining = lessons_remaining - 1
		 WHERE id = $1 AND lessons_remaining >= 1 AND status = 'active'`,
		subscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return models.NewError(models.KindCreditRedemption, "No subscription lessons remaining.")
	}

	if err := insertLedgerEntry(ctx, tx, bookingID, sourceSubscription, subscriptionID, 1, "redeem"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RefundForBooking reverses every redemption recorded for a booking. A
// booking with no redemptions refunds nothing and succeeds.
func (r *CreditRepository) RefundForBooking(ctx context.Context, bookingID string) error {
	const op = "repository.CreditRepository.RefundForBooking"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	type ledgerRow struct {
		SourceType string `db:"source_type"`
		SourceID   string `db:"source_id"`
		Amount     int    `db:"amount"`
	}
	var redeemed []ledgerRow
	err = tx.SelectContext(ctx, &redeemed,
		`SELECT source_type, source_id, amount FROM credit_ledger
		 WHERE booking_id = $1 AND entry = 'redeem'
		 AND NOT EXISTS (
			SELECT 1 FROM credit_ledger r
			WHERE r.booking_id = $1 AND r.entry = 'refund'
			AND r.source_type = credit_ledger.source_type
			AND r.source_id = credit_ledger.source_id
		 )`,
		bookingID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, row := range redeemed {
		switch row.SourceType {
		case sourcePackage:
			_, err = tx.ExecContext(ctx,
				`UPDATE student_packages SET minutes_remaining = minutes_remaining + $2 WHERE id = $1`,
				row.SourceID, row.Amount)
		case sourceSubscription:
			_, err = tx.ExecContext(ctx,
				`UPDATE subscriptions SET lessons_remaining = lessons_remaining + $2 WHERE id = $1`,
				row.SourceID, row.Amount)
		default:
			err = fmt.Errorf("unknown credit source %q", row.SourceType)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := insertLedgerEntry(ctx, tx, bookingID, row.SourceType, row.SourceID, row.Amount, "refund"); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func insertLedgerEntry(ctx context.Context, tx *sqlx.Tx, bookingID, sourceType, sourceID string, amount int, entry string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO credit_ledger (id, booking_id, source_type, source_id, amount, entry, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.NewString(), bookingID, sourceType, sourceID, amount, entry)
	return err
}
