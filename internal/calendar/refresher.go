package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Refresher periodically re-queries every linked tutor's calendars so the
// stored freshness reflects reality between booking attempts, not just at
// booking time.
type Refresher struct {
	service *Service
	store   SyncStore
	horizon time.Duration
	cron    *cron.Cron
	logger  *zerolog.Logger
}

// NewRefresher creates a refresher that scans the given horizon ahead.
func NewRefresher(service *Service, store SyncStore, horizon time.Duration, logger *zerolog.Logger) *Refresher {
	return &Refresher{
		service: service,
		store:   store,
		horizon: horizon,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start schedules the refresh job. The schedule uses cron syntax, including
// the "@every 10m" form.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	const op = "calendar.Refresher.Start"

	_, err := r.cron.AddFunc(schedule, func() { r.refreshAll(ctx) })
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.cron.Start()
	r.logger.Info().Str("schedule", schedule).Msg("calendar refresher started")
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("calendar refresher stopped")
}

func (r *Refresher) refreshAll(ctx context.Context) {
	tutors, err := r.store.LinkedTutors(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list linked tutors for refresh")
		return
	}

	now := time.Now().UTC()
	for _, tutorID := range tutors {
		if ctx.Err() != nil {
			return
		}
		// BusyWindows updates the stored freshness as a side effect.
		if _, err := r.service.BusyWindows(ctx, tutorID, now, now.Add(r.horizon)); err != nil {
			r.logger.Error().Err(err).Str("tutor_id", tutorID).Msg("calendar refresh failed")
		}
	}
	r.logger.Debug().Int("tutors", len(tutors)).Msg("calendar refresh pass complete")
}
