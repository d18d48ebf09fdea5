package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"lessonbook/internal/models"
)

// EntryStore persists audit entries.
type EntryStore interface {
	Record(ctx context.Context, e models.AuditEntry) error
}

// Recorder writes booking lifecycle audit entries. Audit writes are
// best-effort: a failure is logged and never propagated into the booking
// flow, except for race tombstones where the caller decides.
type Recorder struct {
	store  EntryStore
	logger *zerolog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(store EntryStore, logger *zerolog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// RecordRaceLost writes the tombstone for a booking about to be hard-deleted
// by race reconciliation. Unlike the other records this one returns the
// error: the tombstone must exist before the row disappears.
func (r *Recorder) RecordRaceLost(ctx context.Context, b models.Booking, winnerID string) error {
	return r.store.Record(ctx, models.AuditEntry{
		BookingID: b.ID,
		TutorID:   b.TutorID,
		Action:    models.AuditActionRaceLost,
		Detail:    "lost overlap race to booking " + winnerID,
		CreatedAt: time.Now().UTC(),
	})
}

// RecordTransition logs a lifecycle change (created, rescheduled, cancelled,
// paid).
func (r *Recorder) RecordTransition(ctx context.Context, b models.Booking, action, detail string) {
	err := r.store.Record(ctx, models.AuditEntry{
		BookingID: b.ID,
		TutorID:   b.TutorID,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		r.logger.Error().Err(err).Str("booking_id", b.ID).Str("action", action).
			Msg("failed to write audit entry")
	}
}
