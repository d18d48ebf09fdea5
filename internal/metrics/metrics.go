package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonbook",
			Name:      "bookings_created_total",
			Help:      "Count of bookings created by resulting status.",
		},
		[]string{"status"},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonbook",
			Name:      "booking_conflicts_total",
			Help:      "Count of rejected booking attempts by conflict kind.",
		},
		[]string{"kind"},
	)

	racesLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lessonbook",
			Name:      "booking_races_lost_total",
			Help:      "Count of bookings removed by post-insert race reconciliation.",
		},
	)

	reschedules = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lessonbook",
			Name:      "booking_reschedules_total",
			Help:      "Count of successful reschedules.",
		},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonbook",
			Name:      "booking_cancellations_total",
			Help:      "Count of cancellations by who requested them.",
		},
		[]string{"requested_by"},
	)

	sideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonbook",
			Name:      "side_effect_failures_total",
			Help:      "Count of failed post-booking side effects by effect name.",
		},
		[]string{"effect"},
	)

	creditRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonbook",
			Name:      "credit_redemptions_total",
			Help:      "Count of credit redemptions by outcome.",
		},
		[]string{"outcome"},
	)

	slotGeneration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lessonbook",
			Name:      "slot_generation_seconds",
			Help:      "Time spent generating open slots for a request.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingsCreated,
			bookingConflicts,
			racesLost,
			reschedules,
			cancellations,
			sideEffectFailures,
			creditRedemptions,
			slotGeneration,
		)
	})
}

func IncBookingCreated(status string) {
	bookingsCreated.WithLabelValues(status).Inc()
}

func IncBookingConflict(kind string) {
	bookingConflicts.WithLabelValues(kind).Inc()
}

func IncRaceLost() {
	racesLost.Inc()
}

func IncReschedule() {
	reschedules.Inc()
}

func IncCancellation(requestedBy string) {
	cancellations.WithLabelValues(requestedBy).Inc()
}

func IncSideEffectFailure(effect string) {
	sideEffectFailures.WithLabelValues(effect).Inc()
}

func IncCreditRedemption(outcome string) {
	creditRedemptions.WithLabelValues(outcome).Inc()
}

func ObserveSlotGeneration(d time.Duration) {
	slotGeneration.Observe(d.Seconds())
}
