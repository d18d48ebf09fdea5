package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lessonbook/internal/lock"
	"lessonbook/internal/models"
	"lessonbook/internal/repository"
)

var (
	testNow         = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	testScheduledAt = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) // Wednesday
)

func testAvailability() []models.AvailabilityWindow {
	return []models.AvailabilityWindow{
		{TutorID: "tutor-1", DayOfWeek: time.Wednesday, StartTime: "09:00", EndTime: "17:00", IsAvailable: true},
	}
}

func createRequest() CreateBookingRequest {
	return CreateBookingRequest{
		TutorID:         "tutor-1",
		StudentID:       "student-1",
		ServiceID:       "svc-1",
		ScheduledAt:     testScheduledAt,
		DurationMinutes: 60,
		Timezone:        "UTC",
		Price:           40,
		Currency:        "USD",
	}
}

func createdBooking(status models.BookingStatus, payment models.PaymentStatus) *models.Booking {
	return &models.Booking{
		ID:              "bk-1",
		TutorID:         "tutor-1",
		StudentID:       "student-1",
		ServiceID:       "svc-1",
		ScheduledAt:     testScheduledAt,
		DurationMinutes: 60,
		Timezone:        "UTC",
		Status:          status,
		PaymentStatus:   payment,
		CreatedAt:       testNow,
	}
}

// arrangeCreate sets up the reads every successful create performs.
func arrangeCreate(deps *testDeps, created *models.Booking) {
	deps.schedule.On("GetTutorPolicy", mock.Anything, "tutor-1").
		Return(models.DefaultTutorPolicy("tutor-1"), nil)
	deps.calendar.On("BusyWindows", mock.Anything, "tutor-1", mock.Anything, mock.Anything).
		Return(models.BusyReport{}, nil)
	deps.schedule.On("GetAvailability", mock.Anything, "tutor-1").
		Return(testAvailability(), nil)
	deps.bookings.On("FindBookingsInRange", mock.Anything, "tutor-1", mock.Anything, mock.Anything, "").
		Return([]models.Booking{}, nil)
	if created != nil {
		deps.bookings.On("CreateBookingAtomic", mock.Anything, mock.Anything).Return(created, nil)
		deps.bookings.On("FindBookingsInRange", mock.Anything, "tutor-1", mock.Anything, mock.Anything, created.ID).
			Return([]models.Booking{}, nil)
	}
}

func TestCreateBookingPendingPayment(t *testing.T) {
	svc, deps := newTestService(testNow)
	arrangeCreate(deps, createdBooking(models.StatusPending, models.PaymentUnpaid))

	got, err := svc.CreateBooking(context.Background(), createRequest())
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.Status)
	require.Equal(t, models.PaymentUnpaid, got.PaymentStatus)

	require.Equal(t, []string{"tutor-1"}, deps.locker.acquired)
	require.Equal(t, []string{"tutor-1"}, deps.locker.released)
	require.Contains(t, deps.audit.transitions, "bk-1:created")
	require.Equal(t, []string{"booking.created", "booking.payment_requested"}, deps.events.published)

	payment := deps.events.payloads[1].(BookingEvent)
	require.Equal(t, "https://pay.example.com/pay/bk-1", payment.CheckoutURL)
}

func TestCreateBookingFreeLessonIsComplimentary(t *testing.T) {
	svc, deps := newTestService(testNow)
	arrangeCreate(deps, createdBooking(models.StatusConfirmed, models.PaymentComplimentary))

	req := createRequest()
	req.Price = 0

	got, err := svc.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, got.Status)
	require.Equal(t, []string{"booking.created"}, deps.events.published)

	deps.bookings.AssertCalled(t, "CreateBookingAtomic", mock.Anything,
		mock.MatchedBy(func(p repository.CreateBookingParams) bool {
			return p.Status == models.StatusConfirmed && p.PaymentStatus == models.PaymentComplimentary
		}))
}

func TestCreateBookingWithPackageCredit(t *testing.T) {
	svc, deps := newTestService(testNow)
	arrangeCreate(deps, createdBooking(models.StatusConfirmed, models.PaymentPaid))
	deps.credits.On("RedeemPackageMinutes", mock.Anything, "pkg-1", "bk-1", 60).Return(nil)

	req := createRequest()
	req.Credit = &CreditSource{Type: CreditPackage, ID: "pkg-1"}

	got, err := svc.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, got.Status)
	require.Equal(t, []string{"booking.created"}, deps.events.published)
	deps.credits.AssertExpectations(t)

	deps.bookings.AssertCalled(t, "CreateBookingAtomic", mock.Anything,
		mock.MatchedBy(func(p repository.CreateBookingParams) bool {
			return p.Status == models.StatusConfirmed && p.PaymentStatus == models.PaymentPaid
		}))
}

func TestCreateBookingCreditFailureRollsBack(t *testing.T) {
	svc, deps := newTestService(testNow)
	arrangeCreate(deps, createdBooking(models.StatusConfirmed, models.PaymentPaid))
	deps.credits.On("RedeemPackageMinutes", mock.Anything, "pkg-1", "bk-1", 60).
		Return(models.NewError(models.KindCreditRedemption, "Not enough package minutes remaining."))
	deps.bookings.On("HardDeleteBooking", mock.Anything, "bk-1").Return(nil)

	req := createRequest()
	req.Credit = &CreditSource{Type: CreditPackage, ID: "pkg-1"}

	_, err := svc.CreateBooking(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, models.KindCreditRedemption, models.KindOf(err))
	require.Equal(t, "Not enough package minutes remaining.", err.Error())

	// The booking must not survive a failed redemption.
	deps.bookings.AssertCalled(t, "HardDeleteBooking", mock.Anything, "bk-1")
	require.Empty(t, deps.events.published)
}

func TestCreateBookingLosesRace(t *testing.T) {
	svc, deps := newTestService(testNow)
	created := createdBooking(models.StatusPending, models.PaymentUnpaid)

	deps.schedule.On("GetTutorPolicy", mock.Anything, "tutor-1").
		Return(models.DefaultTutorPolicy("tutor-1"), nil)
	deps.calendar.On("BusyWindows", mock.Anything, "tutor-1", mock.Anything, mock.Anything).
		Return(models.BusyReport{}, nil)
	deps.schedule.On("GetAvailability", mock.Anything, "tutor-1").
		Return(testAvailability(), nil)
	deps.bookings.On("FindBookingsInRange", mock.Anything, "tutor-1", mock.Anything, mock.Anything, "").
		Return([]models.Booking{}, nil)
	deps.bookings.On("CreateBookingAtomic", mock.Anything, mock.Anything).Return(created, nil)

	// A concurrent request committed an overlapping row a moment earlier.
	winner := models.Booking{
		ID:              "bk-0",
		TutorID:         "tutor-1",
		ScheduledAt:     testScheduledAt.Add(30 * time.Minute),
		DurationMinutes: 60,
		Status:          models.StatusPending,
		CreatedAt:       testNow.Add(-time.Second),
	}
	deps.bookings.On("FindBookingsInRange", mock.Anything, "tutor-1", mock.Anything, mock.Anything, "bk-1").
		Return([]models.Booking{winner}, nil)
	deps.bookings.On("HardDeleteBooking", mock.Anything, "bk-1").Return(nil)

	_, err := svc.CreateBooking(context.Background(), createRequest())
	require.Error(t, err)
	require.Equal(t, models.KindRaceLost, models.KindOf(err))
	require.Equal(t, repository.MsgSlotTaken, err.Error())

	require.Equal(t, []string{"bk-1<bk-0"}, deps.audit.raceLost)
	deps.bookings.AssertCalled(t, "HardDeleteBooking", mock.Anything, "bk-1")
	require.Empty(t, deps.events.published)
}

func TestCreateBookingSurvivesRaceAgainstLaterRow(t *testing.T) {
	svc, deps := newTestService(testNow)
	created := createdBooking(models.StatusPending, models.PaymentUnpaid)

	deps.schedule.On("GetTutorPolicy", mock.Anything, "tutor-1").
		Return(models.DefaultTutorPolicy("tutor-1"), nil)
	deps.calendar.On("BusyWindows", mock.Anything, "tutor-1", mock.Anything, mock.Anything).
		Return(models.BusyReport{}, nil)
	deps.schedule.On("GetAvailability", mock.Anything, "tutor-1").
		Return(testAvailability(), nil)
	deps.bookings.On("FindBookingsInRange", mock.Anything, "tutor-1", mock.Anything, mock.Anything, "").
		Return([]models.Booking{}, nil)
	deps.bookings.On("CreateBookingAtomic", mock.Anything, mock.Anything).Return(created, nil)

	loser := models.Booking{
		ID:              "bk-2",
		TutorID:         "tutor-1",
		ScheduledAt:     testScheduledAt.Add(30 * time.Minute),
		DurationMinutes: 60,
		CreatedAt:       testNow.Add(time.Second),
	}
	deps.bookings.On("FindBookingsInRange", mock.Anything, "tutor-1", mock.Anything, mock.Anything, "bk-1").
		Return([]models.Booking{loser}, nil)

	got, err := svc.CreateBooking(context.Background(), createRequest())
	require.NoError(t, err)
	require.Equal(t, "bk-1", got.ID)
	deps.bookings.AssertNotCalled(t, "HardDeleteBooking", mock.Anything, "bk-1")
}

func TestCreateBookingStaleCalendarBlocks(t *testing.T) {
	svc, deps := newTestService(testNow)
	deps.schedule.On("GetTutorPolicy", mock.Anything, "tutor-1").
		Return(models.DefaultTutorPolicy("tutor-1"), nil)
	deps.calendar.On("BusyWindows", mock.Anything, "tutor-1", mock.Anything, mock.Anything).
		Return(models.BusyReport{StaleProviders: []string{"google"}}, nil)

	_, err := svc.CreateBooking(context.Background(), createRequest())
	require.Error(t, err)
	require.Equal(t, models.KindCalendarStale, models.KindOf(err))
	deps.bookings.AssertNotCalled(t, "CreateBookingAtomic", mock.Anything, mock.Anything)
}

func TestCreateBookingOutsideAvailability(t *testing.T) {
	svc, deps := newTestService(testNow)
	deps.schedule.On("GetTutorPolicy", mock.Anything, "tutor-1").
		Return(models.DefaultTutorPolicy("tutor-1"), nil)
	deps.calendar.On("BusyWindows", mock.Anything, "tutor-1", mock.Anything, mock.Anything).
		Return(models.BusyReport{}, nil)
	deps.schedule.On("GetAvailability", mock.Anything, "tutor-1").
		Return([]models.AvailabilityWindow{}, nil)
	deps.bookings.On("FindBookingsInRange", mock.Anything, "tutor-1", mock.Anything, mock.Anything, "").
		Return([]models.Booking{}, nil)

	_, err := svc.CreateBooking(context.Background(), createRequest())
	require.Error(t, err)
	require.Equal(t, models.KindConflict, models.KindOf(err))
	require.Contains(t, err.Error(), "outside the tutor's availability")
	deps.bookings.AssertNotCalled(t, "CreateBookingAtomic", mock.Anything, mock.Anything)
}

func TestCreateBookingLockContention(t *testing.T) {
	svc, deps := newTestService(testNow)
	arrangeCreate(deps, nil)
	deps.locker.acquireErr = lock.ErrNotAcquired

	_, err := svc.CreateBooking(context.Background(), createRequest())
	require.Error(t, err)
	require.Equal(t, models.KindContention, models.KindOf(err))
	require.Equal(t, repository.MsgCalendarBusy, err.Error())
	deps.bookings.AssertNotCalled(t, "CreateBookingAtomic", mock.Anything, mock.Anything)
}

func TestCreateBookingIdempotentReplay(t *testing.T) {
	svc, deps := newTestService(testNow)

	cached := createdBooking(models.StatusConfirmed, models.PaymentPaid)
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	svc.idempotency = cachedIdem{response: data}

	req := createRequest()
	req.IdempotencyKey = "mut-1"

	got, err := svc.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "bk-1", got.ID)
	require.Equal(t, models.StatusConfirmed, got.Status)

	// Nothing ran: the first submission's outcome was replayed.
	deps.bookings.AssertNotCalled(t, "CreateBookingAtomic", mock.Anything, mock.Anything)
	deps.schedule.AssertNotCalled(t, "GetTutorPolicy", mock.Anything, mock.Anything)
}

func TestCreateBookingRejectsInvalidRequest(t *testing.T) {
	svc, _ := newTestService(testNow)

	req := createRequest()
	req.TutorID = ""
	_, err := svc.CreateBooking(context.Background(), req)
	require.Equal(t, models.KindPolicyViolation, models.KindOf(err))

	req = createRequest()
	req.Timezone = "Not/AZone"
	_, err = svc.CreateBooking(context.Background(), req)
	require.Equal(t, models.KindPolicyViolation, models.KindOf(err))
}
