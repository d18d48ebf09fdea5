package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lessonbook/internal/models"
)

// Event is a lesson appointment mirrored into an external calendar.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
}

// Provider talks to one external calendar backend.
type Provider interface {
	Name() string
	BusyWindows(ctx context.Context, tutorID string, from, to time.Time) ([]models.Interval, error)
	CreateEvent(ctx context.Context, tutorID string, ev Event) (string, error)
	UpdateEvent(ctx context.Context, tutorID, eventID string, ev Event) error
	DeleteEvent(ctx context.Context, tutorID, eventID string) error
}

// SyncStore persists per-provider sync freshness and account links.
type SyncStore interface {
	LinkedTutors(ctx context.Context) ([]string, error)
	SyncStatus(ctx context.Context, tutorID string) ([]models.ProviderSyncStatus, error)
	UpsertSyncStatus(ctx context.Context, tutorID, provider string, freshness models.Freshness, syncedAt time.Time) error
}

// Service aggregates busy windows across all configured providers and keeps
// the stored freshness in step with query outcomes. A provider the tutor has
// never successfully synced reports as unverified; one that synced before but
// fails now reports as stale.
type Service struct {
	providers []Provider
	store     SyncStore
	logger    *zerolog.Logger
}

// NewService creates the calendar service.
func NewService(providers []Provider, store SyncStore, logger *zerolog.Logger) *Service {
	return &Service{providers: providers, store: store, logger: logger}
}

// BusyWindows queries every provider for the tutor and returns the merged
// report. Query failures degrade the report instead of failing it; the
// booking flow decides whether a degraded report blocks the write.
func (s *Service) BusyWindows(ctx context.Context, tutorID string, from, to time.Time) (models.BusyReport, error) {
	const op = "calendar.Service.BusyWindows"

	stored, err := s.store.SyncStatus(ctx, tutorID)
	if err != nil {
		return models.BusyReport{}, fmt.Errorf("%s: %w", op, err)
	}
	lastKnown := make(map[string]models.Freshness, len(stored))
	for _, st := range stored {
		lastKnown[st.Provider] = st.Freshness
	}

	var report models.BusyReport
	now := time.Now().UTC()

	for _, p := range s.providers {
		windows, err := p.BusyWindows(ctx, tutorID, from, to)
		if err != nil {
			freshness := models.FreshnessStale
			if _, synced := lastKnown[p.Name()]; !synced {
				freshness = models.FreshnessUnverified
			}
			s.logger.Warn().Err(err).Str("tutor_id", tutorID).Str("provider", p.Name()).
				Str("freshness", string(freshness)).Msg("calendar busy query failed")

			if freshness == models.FreshnessStale {
				report.StaleProviders = append(report.StaleProviders, p.Name())
			} else {
				report.UnverifiedProviders = append(report.UnverifiedProviders, p.Name())
			}
			if upErr := s.store.UpsertSyncStatus(ctx, tutorID, p.Name(), freshness, now); upErr != nil {
				s.logger.Error().Err(upErr).Str("provider", p.Name()).Msg("failed to record sync status")
			}
			continue
		}

		for _, w := range windows {
			report.Windows = append(report.Windows, models.BusyWindow{
				Start:  w.Start,
				End:    w.End,
				Source: p.Name(),
			})
		}
		if upErr := s.store.UpsertSyncStatus(ctx, tutorID, p.Name(), models.FreshnessVerified, now); upErr != nil {
			s.logger.Error().Err(upErr).Str("provider", p.Name()).Msg("failed to record sync status")
		}
	}

	return report, nil
}

// CreateEvent mirrors a booking into every provider. Individual provider
// failures are collected, not short-circuited.
func (s *Service) CreateEvent(ctx context.Context, tutorID string, ev Event) error {
	const op = "calendar.Service.CreateEvent"

	var errs []error
	for _, p := range s.providers {
		if _, err := p.CreateEvent(ctx, tutorID, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", op, p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// UpdateEvent pushes a changed booking time to every provider.
func (s *Service) UpdateEvent(ctx context.Context, tutorID, eventID string, ev Event) error {
	const op = "calendar.Service.UpdateEvent"

	var errs []error
	for _, p := range s.providers {
		if err := p.UpdateEvent(ctx, tutorID, eventID, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", op, p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// DeleteEvent removes a cancelled booking from every provider.
func (s *Service) DeleteEvent(ctx context.Context, tutorID, eventID string) error {
	const op = "calendar.Service.DeleteEvent"

	var errs []error
	for _, p := range s.providers {
		if err := p.DeleteEvent(ctx, tutorID, eventID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", op, p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
