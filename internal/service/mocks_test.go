package service

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"lessonbook/internal/models"
	"lessonbook/internal/repository"
)

type mockBookingStore struct {
	mock.Mock
}

func (m *mockBookingStore) CreateBookingAtomic(ctx context.Context, p repository.CreateBookingParams) (*models.Booking, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingStore) FindBookingsInRange(ctx context.Context, tutorID string, from, to time.Time, excludeID string) ([]models.Booking, error) {
	args := m.Called(ctx, tutorID, from, to, excludeID)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockBookingStore) CountBookings(ctx context.Context, tutorID string, from, to time.Time, excludeID string) (int, error) {
	args := m.Called(ctx, tutorID, from, to, excludeID)
	return args.Int(0), args.Error(1)
}

func (m *mockBookingStore) HardDeleteBooking(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockBookingStore) CompleteElapsedBookings(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBookingStore) UpdateBookingSchedule(ctx context.Context, p repository.UpdateBookingScheduleParams) (*models.Booking, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingStore) CancelBooking(ctx context.Context, id string, status models.BookingStatus) (*models.Booking, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingStore) MarkPaid(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type mockScheduleStore struct {
	mock.Mock
}

func (m *mockScheduleStore) GetAvailability(ctx context.Context, tutorID string) ([]models.AvailabilityWindow, error) {
	args := m.Called(ctx, tutorID)
	return args.Get(0).([]models.AvailabilityWindow), args.Error(1)
}

func (m *mockScheduleStore) GetBlockedIntervals(ctx context.Context, tutorID string, from, to time.Time) ([]models.BlockedInterval, error) {
	args := m.Called(ctx, tutorID, from, to)
	return args.Get(0).([]models.BlockedInterval), args.Error(1)
}

func (m *mockScheduleStore) GetTutorPolicy(ctx context.Context, tutorID string) (models.TutorPolicy, error) {
	args := m.Called(ctx, tutorID)
	return args.Get(0).(models.TutorPolicy), args.Error(1)
}

type mockCreditLedger struct {
	mock.Mock
}

func (m *mockCreditLedger) RedeemPackageMinutes(ctx context.Context, packageID, bookingID string, minutes int) error {
	args := m.Called(ctx, packageID, bookingID, minutes)
	return args.Error(0)
}

func (m *mockCreditLedger) RedeemSubscriptionLesson(ctx context.Context, subscriptionID, bookingID string) error {
	args := m.Called(ctx, subscriptionID, bookingID)
	return args.Error(0)
}

func (m *mockCreditLedger) RefundForBooking(ctx context.Context, bookingID string) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

type mockCalendarSource struct {
	mock.Mock
}

func (m *mockCalendarSource) BusyWindows(ctx context.Context, tutorID string, from, to time.Time) (models.BusyReport, error) {
	args := m.Called(ctx, tutorID, from, to)
	return args.Get(0).(models.BusyReport), args.Error(1)
}

// fakeLocker always grants the lock unless acquireErr is set.
type fakeLocker struct {
	acquireErr error
	acquired   []string
	released   []string
}

func (f *fakeLocker) Acquire(_ context.Context, tutorID, _ string) error {
	if f.acquireErr != nil {
		return f.acquireErr
	}
	f.acquired = append(f.acquired, tutorID)
	return nil
}

func (f *fakeLocker) Release(_ context.Context, tutorID, _ string) error {
	f.released = append(f.released, tutorID)
	return nil
}

// fakeAudit records everything, optionally failing the tombstone write.
type fakeAudit struct {
	raceLost    []string
	transitions []string
	raceErr     error
}

func (f *fakeAudit) RecordRaceLost(_ context.Context, b models.Booking, winnerID string) error {
	f.raceLost = append(f.raceLost, b.ID+"<"+winnerID)
	return f.raceErr
}

func (f *fakeAudit) RecordTransition(_ context.Context, b models.Booking, action, _ string) {
	f.transitions = append(f.transitions, b.ID+":"+action)
}

// fakeEvents captures published events.
type fakeEvents struct {
	published []string
	payloads  []any
}

func (f *fakeEvents) PublishJSON(eventType string, payload any) error {
	f.published = append(f.published, eventType)
	f.payloads = append(f.payloads, payload)
	return nil
}

// passthroughIdem runs fn directly, like an empty idempotency key would.
type passthroughIdem struct{}

func (passthroughIdem) Do(ctx context.Context, _, _ string, fn func(context.Context) ([]byte, error)) (bool, []byte, error) {
	resp, err := fn(ctx)
	return false, resp, err
}

// cachedIdem replays a stored response without running fn.
type cachedIdem struct {
	response []byte
}

func (c cachedIdem) Do(context.Context, string, string, func(context.Context) ([]byte, error)) (bool, []byte, error) {
	return true, c.response, nil
}

type testDeps struct {
	bookings *mockBookingStore
	schedule *mockScheduleStore
	credits  *mockCreditLedger
	calendar *mockCalendarSource
	locker   *fakeLocker
	audit    *fakeAudit
	events   *fakeEvents
}

func newTestService(now time.Time) (*BookingService, *testDeps) {
	deps := &testDeps{
		bookings: &mockBookingStore{},
		schedule: &mockScheduleStore{},
		credits:  &mockCreditLedger{},
		calendar: &mockCalendarSource{},
		locker:   &fakeLocker{},
		audit:    &fakeAudit{},
		events:   &fakeEvents{},
	}
	logger := zerolog.New(io.Discard)
	svc := NewBookingService(Deps{
		Bookings:      deps.bookings,
		TutorSchedule: deps.schedule,
		Credits:       deps.credits,
		Calendar:      deps.calendar,
		Locker:        deps.locker,
		Audit:         deps.audit,
		Events:        deps.events,
		Idempotency:   passthroughIdem{},
		Checkout:      StaticCheckout{BaseURL: "https://pay.example.com"},
		Logger:        &logger,
	})
	svc.now = func() time.Time { return now }
	return svc, deps
}
