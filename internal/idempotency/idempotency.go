package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Reservation timing. A processing claim older than the timeout is presumed
// abandoned and may be released; the timeout is conservative because
// releasing a live claim permits a duplicate run.
const (
	ProcessingTimeout = 5 * time.Minute
	PollInterval      = 500 * time.Millisecond
	MaxPollDuration   = 5 * time.Second
)

// ClaimStatus is the outcome of attempting to claim a mutation id.
type ClaimStatus string

const (
	StatusClaimed    ClaimStatus = "claimed"
	StatusProcessing ClaimStatus = "processing"
	StatusCompleted  ClaimStatus = "completed"
)

// Claim is the result of a claim attempt.
type Claim struct {
	Status    ClaimStatus
	Response  []byte
	UpdatedAt time.Time
}

// Store persists idempotency reservations. The claim must be atomic: two
// concurrent claims for the same key must yield exactly one StatusClaimed.
type Store interface {
	Claim(ctx context.Context, key, ownerID string) (Claim, error)
	Poll(ctx context.Context, key string) (found, completed bool, response []byte, err error)
	Complete(ctx context.Context, key string, response []byte) error
	ReleaseStale(ctx context.Context, key string, olderThan time.Time) (bool, error)
	Cleanup(ctx context.Context, key string) error
}

// Service suppresses duplicate submissions keyed by a client mutation id
// using the reservation pattern: claim by atomic insert, poll while another
// request holds the claim, release abandoned claims, clean up on failure.
type Service struct {
	store  Store
	logger *zerolog.Logger
}

// NewService creates the idempotency service.
func NewService(store Store, logger *zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Do executes fn at most once per key. A duplicate submission gets the cached
// response of the first run. An empty key disables idempotency.
func (s *Service) Do(ctx context.Context, key, ownerID string, fn func(context.Context) ([]byte, error)) (cached bool, response []byte, err error) {
	const op = "idempotency.Service.Do"

	if key == "" {
		response, err = fn(ctx)
		return false, response, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		claim, err := s.store.Claim(ctx, key, ownerID)
		if err != nil {
			return false, nil, fmt.Errorf("%s: %w", op, err)
		}

		switch claim.Status {
		case StatusCompleted:
			return true, claim.Response, nil

		case StatusClaimed:
			response, err := fn(ctx)
			if err != nil {
				// Drop the reservation so a retry can run.
				if cleanupErr := s.store.Cleanup(ctx, key); cleanupErr != nil {
					s.logger.Error().Err(cleanupErr).Str("key", key).
						Msg("failed to clean up idempotency reservation")
				}
				return false, nil, err
			}
			if err := s.store.Complete(ctx, key, response); err != nil {
				// The operation already succeeded; log and return it anyway.
				s.logger.Error().Err(err).Str("key", key).
					Msg("failed to complete idempotency reservation")
			}
			return false, response, nil

		case StatusProcessing:
			response, done, gone, err := s.waitForCompletion(ctx, key)
			if err != nil {
				return false, nil, fmt.Errorf("%s: %w", op, err)
			}
			if done {
				return true, response, nil
			}
			if gone {
				// The holder failed and cleaned up; re-claim.
				continue
			}

			released, err := s.store.ReleaseStale(ctx, key, time.Now().Add(-ProcessingTimeout))
			if err != nil {
				return false, nil, fmt.Errorf("%s: %w", op, err)
			}
			if !released {
				return false, nil, fmt.Errorf("%s: key %q is locked by another in-flight request", op, key)
			}
			s.logger.Warn().Str("key", key).Str("owner_id", ownerID).
				Msg("released stale idempotency reservation")
			// Loop once more to claim the freed key.
		}
	}

	return false, nil, fmt.Errorf("%s: key %q could not be claimed", op, key)
}

func (s *Service) waitForCompletion(ctx context.Context, key string) (response []byte, done, gone bool, err error) {
	deadline := time.Now().Add(MaxPollDuration)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, false, false, ctx.Err()
		case <-time.After(PollInterval):
		}

		found, completed, resp, err := s.store.Poll(ctx, key)
		if err != nil {
			return nil, false, false, err
		}
		if !found {
			return nil, false, true, nil
		}
		if completed {
			return resp, true, false, nil
		}
	}

	return nil, false, false, nil
}
