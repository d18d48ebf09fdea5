package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lessonbook/internal/metrics"
	"lessonbook/internal/models"
)

// Notifier delivers booking lifecycle messages to the participants.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b models.Booking) error
	BookingRescheduled(ctx context.Context, b models.Booking, previous models.Interval) error
	BookingCancelled(ctx context.Context, b models.Booking) error
	PaymentRequested(ctx context.Context, b models.Booking, checkoutURL string) error
}

// Dispatcher runs notification sends in the background with bounded
// concurrency. A failed send is logged and counted; it never affects the
// booking that triggered it.
type Dispatcher struct {
	sem     chan struct{}
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *zerolog.Logger
}

// NewDispatcher creates a dispatcher allowing maxConcurrent parallel sends,
// each bounded by timeout.
func NewDispatcher(maxConcurrent int, timeout time.Duration, logger *zerolog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		sem:     make(chan struct{}, maxConcurrent),
		timeout: timeout,
		logger:  logger,
	}
}

// Dispatch queues one named side effect. The effect name labels the failure
// metric.
func (d *Dispatcher) Dispatch(effect string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	d.sem <- struct{}{}

	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.IncSideEffectFailure(effect)
			d.logger.Error().Err(err).Str("effect", effect).Msg("side effect failed")
		}
	}()
}

// Wait blocks until all queued sends finish. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
