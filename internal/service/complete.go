package service

import (
	"context"
	"fmt"
	"time"
)

// CompleteElapsedLessons marks confirmed lessons whose end time has passed
// as completed. Returns how many lessons were closed.
func (s *BookingService) CompleteElapsedLessons(ctx context.Context) (int64, error) {
	const op = "service.BookingService.CompleteElapsedLessons"

	completed, err := s.bookings.CompleteElapsedBookings(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if completed > 0 {
		s.logger.Info().Int64("completed", completed).Msg("elapsed lessons closed")
	}
	return completed, nil
}

// RunCompletionLoop closes elapsed lessons on a fixed interval until the
// context ends.
func (s *BookingService) RunCompletionLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CompleteElapsedLessons(ctx); err != nil {
				s.logger.Error().Err(err).Msg("lesson completion sweep failed")
			}
		}
	}
}
