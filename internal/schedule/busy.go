package schedule

import (
	"sort"
	"strings"

	"lessonbook/internal/models"
)

const (
	msgCalendarUnverified = "We couldn't verify your external calendar. Please reconnect it and try again."
	msgCalendarStale      = "External calendar sync looks stale. Please refresh the connection and try again."
)

// MergeBusy combines the tutor's own non-cancelled bookings with externally
// synced busy windows into one chronologically sorted list.
func MergeBusy(bookings []models.Booking, external []models.BusyWindow) []models.BusyWindow {
	merged := make([]models.BusyWindow, 0, len(bookings)+len(external))
	for _, b := range bookings {
		if b.Status.IsCancelled() {
			continue
		}
		merged = append(merged, models.BusyWindow{
			Start:  b.ScheduledAt,
			End:    b.End(),
			Source: models.BusySourceInternal,
		})
	}
	merged = append(merged, external...)

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Start.Before(merged[j].Start)
	})
	return merged
}

// GateFreshness refuses to proceed when any consulted external provider is
// unverified or stale. The engine never books against unconfirmed calendar
// state.
func GateFreshness(report models.BusyReport) error {
	if len(report.UnverifiedProviders) > 0 {
		return &models.Error{
			Kind:    models.KindCalendarUnverified,
			Message: msgCalendarUnverified + " (" + strings.Join(report.UnverifiedProviders, ", ") + ")",
		}
	}
	if len(report.StaleProviders) > 0 {
		return &models.Error{
			Kind:    models.KindCalendarStale,
			Message: msgCalendarStale + " (" + strings.Join(report.StaleProviders, ", ") + ")",
		}
	}
	return nil
}
