package models

import "time"

// ProviderSyncStatus is the stored freshness classification of one external
// calendar provider for one tutor.
type ProviderSyncStatus struct {
	TutorID      string    `db:"tutor_id"`
	Provider     string    `db:"provider"`
	Freshness    Freshness `db:"freshness"`
	LastSyncedAt time.Time `db:"last_synced_at"`
}

// AuditEntry records a booking lifecycle event, including tombstones for
// bookings deleted by post-insert race reconciliation.
type AuditEntry struct {
	ID        string    `db:"id"`
	BookingID string    `db:"booking_id"`
	TutorID   string    `db:"tutor_id"`
	Action    string    `db:"action"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// Audit actions.
const (
	AuditActionCreated     = "created"
	AuditActionRaceLost    = "race_lost"
	AuditActionRescheduled = "rescheduled"
	AuditActionCancelled   = "cancelled"
	AuditActionPaid        = "paid"
)
