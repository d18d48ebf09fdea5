package calendar

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"lessonbook/internal/models"
)

// ProviderGoogle is the provider name recorded in sync status rows and busy
// window sources.
const ProviderGoogle = "google"

// AccountStore resolves the external calendar id linked for a tutor.
type AccountStore interface {
	CalendarID(ctx context.Context, tutorID, provider string) (string, error)
}

// GoogleProvider reads busy windows and mirrors bookings through the Google
// Calendar API.
type GoogleProvider struct {
	svc      *gcal.Service
	accounts AccountStore
}

// NewGoogleProvider builds a provider from a service-account credentials file.
func NewGoogleProvider(ctx context.Context, credentialsPath string, accounts AccountStore) (*GoogleProvider, error) {
	const op = "calendar.NewGoogleProvider"

	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	svc, err := gcal.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &GoogleProvider{svc: svc, accounts: accounts}, nil
}

func (g *GoogleProvider) Name() string { return ProviderGoogle }

// BusyWindows runs a freebusy query against the tutor's linked calendar.
func (g *GoogleProvider) BusyWindows(ctx context.Context, tutorID string, from, to time.Time) ([]models.Interval, error) {
	const op = "calendar.GoogleProvider.BusyWindows"

	calendarID, err := g.accounts.CalendarID(ctx, tutorID, ProviderGoogle)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("%s: calendar %q missing from freebusy response", op, calendarID)
	}

	windows := make([]models.Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		windows = append(windows, models.Interval{Start: start, End: end})
	}
	return windows, nil
}

// CreateEvent inserts the booking into the tutor's calendar and returns the
// external event id.
func (g *GoogleProvider) CreateEvent(ctx context.Context, tutorID string, ev Event) (string, error) {
	const op = "calendar.GoogleProvider.CreateEvent"

	calendarID, err := g.accounts.CalendarID(ctx, tutorID, ProviderGoogle)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	created, err := g.svc.Events.Insert(calendarID, googleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return created.Id, nil
}

// UpdateEvent rewrites an existing calendar event.
func (g *GoogleProvider) UpdateEvent(ctx context.Context, tutorID, eventID string, ev Event) error {
	const op = "calendar.GoogleProvider.UpdateEvent"

	calendarID, err := g.accounts.CalendarID(ctx, tutorID, ProviderGoogle)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := g.svc.Events.Update(calendarID, eventID, googleEvent(ev)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteEvent removes a calendar event.
func (g *GoogleProvider) DeleteEvent(ctx context.Context, tutorID, eventID string) error {
	const op = "calendar.GoogleProvider.DeleteEvent"

	calendarID, err := g.accounts.CalendarID(ctx, tutorID, ProviderGoogle)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func googleEvent(ev Event) *gcal.Event {
	return &gcal.Event{
		// A caller-supplied id lets later updates address the event without
		// storing the generated one.
		Id:          ev.ID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
	}
}
