package calendar

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lessonbook/internal/models"
)

type fakeProvider struct {
	name    string
	windows []models.Interval
	err     error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) BusyWindows(context.Context, string, time.Time, time.Time) ([]models.Interval, error) {
	return f.windows, f.err
}

func (f *fakeProvider) CreateEvent(context.Context, string, Event) (string, error) {
	return "ev-1", f.err
}

func (f *fakeProvider) UpdateEvent(context.Context, string, string, Event) error { return f.err }
func (f *fakeProvider) DeleteEvent(context.Context, string, string) error        { return f.err }

type mockSyncStore struct {
	mock.Mock
}

func (m *mockSyncStore) LinkedTutors(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockSyncStore) SyncStatus(ctx context.Context, tutorID string) ([]models.ProviderSyncStatus, error) {
	args := m.Called(ctx, tutorID)
	return args.Get(0).([]models.ProviderSyncStatus), args.Error(1)
}

func (m *mockSyncStore) UpsertSyncStatus(ctx context.Context, tutorID, provider string, freshness models.Freshness, syncedAt time.Time) error {
	args := m.Called(ctx, tutorID, provider, freshness, syncedAt)
	return args.Error(0)
}

func newTestService(providers []Provider, store SyncStore) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(providers, store, &logger)
}

func TestBusyWindowsSuccessMarksVerified(t *testing.T) {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		name:    "google",
		windows: []models.Interval{{Start: start, End: start.Add(time.Hour)}},
	}

	store := &mockSyncStore{}
	store.On("SyncStatus", mock.Anything, "tutor-1").Return([]models.ProviderSyncStatus{}, nil)
	store.On("UpsertSyncStatus", mock.Anything, "tutor-1", "google", models.FreshnessVerified, mock.Anything).Return(nil)

	svc := newTestService([]Provider{provider}, store)
	report, err := svc.BusyWindows(context.Background(), "tutor-1", start, start.Add(24*time.Hour))
	require.NoError(t, err)

	require.Len(t, report.Windows, 1)
	require.Equal(t, "google", report.Windows[0].Source)
	require.Empty(t, report.StaleProviders)
	require.Empty(t, report.UnverifiedProviders)
	store.AssertExpectations(t)
}

func TestBusyWindowsFailureNeverSyncedIsUnverified(t *testing.T) {
	provider := &fakeProvider{name: "google", err: errors.New("api down")}

	store := &mockSyncStore{}
	store.On("SyncStatus", mock.Anything, "tutor-1").Return([]models.ProviderSyncStatus{}, nil)
	store.On("UpsertSyncStatus", mock.Anything, "tutor-1", "google", models.FreshnessUnverified, mock.Anything).Return(nil)

	svc := newTestService([]Provider{provider}, store)
	report, err := svc.BusyWindows(context.Background(), "tutor-1", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.Empty(t, report.Windows)
	require.Equal(t, []string{"google"}, report.UnverifiedProviders)
	store.AssertExpectations(t)
}

func TestBusyWindowsFailureAfterSyncIsStale(t *testing.T) {
	provider := &fakeProvider{name: "google", err: errors.New("api down")}

	store := &mockSyncStore{}
	store.On("SyncStatus", mock.Anything, "tutor-1").Return([]models.ProviderSyncStatus{
		{TutorID: "tutor-1", Provider: "google", Freshness: models.FreshnessVerified, LastSyncedAt: time.Now().Add(-time.Hour)},
	}, nil)
	store.On("UpsertSyncStatus", mock.Anything, "tutor-1", "google", models.FreshnessStale, mock.Anything).Return(nil)

	svc := newTestService([]Provider{provider}, store)
	report, err := svc.BusyWindows(context.Background(), "tutor-1", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.Equal(t, []string{"google"}, report.StaleProviders)
	require.Empty(t, report.UnverifiedProviders)
	store.AssertExpectations(t)
}

func TestBusyWindowsOneProviderFailingDoesNotHideOthers(t *testing.T) {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	healthy := &fakeProvider{
		name:    "google",
		windows: []models.Interval{{Start: start, End: start.Add(time.Hour)}},
	}
	broken := &fakeProvider{name: "outlook", err: errors.New("auth expired")}

	store := &mockSyncStore{}
	store.On("SyncStatus", mock.Anything, "tutor-1").Return([]models.ProviderSyncStatus{
		{TutorID: "tutor-1", Provider: "outlook", Freshness: models.FreshnessVerified, LastSyncedAt: time.Now()},
	}, nil)
	store.On("UpsertSyncStatus", mock.Anything, "tutor-1", "google", models.FreshnessVerified, mock.Anything).Return(nil)
	store.On("UpsertSyncStatus", mock.Anything, "tutor-1", "outlook", models.FreshnessStale, mock.Anything).Return(nil)

	svc := newTestService([]Provider{healthy, broken}, store)
	report, err := svc.BusyWindows(context.Background(), "tutor-1", start, start.Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, report.Windows, 1)
	require.Equal(t, []string{"outlook"}, report.StaleProviders)
}

func TestCreateEventCollectsProviderErrors(t *testing.T) {
	healthy := &fakeProvider{name: "google"}
	broken := &fakeProvider{name: "outlook", err: errors.New("auth expired")}

	svc := newTestService([]Provider{healthy, broken}, &mockSyncStore{})
	err := svc.CreateEvent(context.Background(), "tutor-1", Event{Summary: "Lesson"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "outlook")
}
