package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lessonbook/internal/models"
)

// AuditRepository stores booking lifecycle records, including tombstones for
// rows deleted by race reconciliation, and backs the monthly export.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends an audit entry.
func (r *AuditRepository) Record(ctx context.Context, e models.AuditEntry) error {
	const op = "repository.AuditRepository.Record"

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO booking_audit (id, booking_id, tutor_id, action, detail, created_at)
		 VALUES (:id, :booking_id, :tutor_id, :action, :detail, :created_at)`,
		e)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteOldEntries drops audit rows older than the retention window.
func (r *AuditRepository) DeleteOldEntries(ctx context.Context, olderThan time.Duration) (int64, error) {
	const op = "repository.AuditRepository.DeleteOldEntries"

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM booking_audit WHERE created_at < $1`,
		time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

// Exportable tables, in export order. Fixed allowlist: table names reach SQL
// text directly.
var exportTables = []string{"bookings", "booking_audit"}

// GetTableNames lists the tables included in the monthly export.
func (r *AuditRepository) GetTableNames(ctx context.Context) ([]string, error) {
	return append([]string(nil), exportTables...), nil
}

// GetTableData returns all rows of one exportable table as maps plus the
// column order.
func (r *AuditRepository) GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error) {
	const op = "repository.AuditRepository.GetTableData"

	allowed := false
	for _, t := range exportTables {
		if t == tableName {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, nil, fmt.Errorf("%s: table %q is not exportable", op, tableName)
	}

	rows, err := r.db.QueryxContext(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY created_at`, tableName))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	var data []map[string]interface{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, columns, nil
}
