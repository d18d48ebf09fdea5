package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lessonbook/internal/models"
)

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) CountBookings(ctx context.Context, tutorID string, from, to time.Time, excludeID string) (int, error) {
	args := m.Called(ctx, tutorID, from, to, excludeID)
	return args.Int(0), args.Error(1)
}

func intPtr(v int) *int { return &v }

func TestCheckAdvanceWindow_Boundaries(t *testing.T) {
	checker := NewChecker(nil)
	pol := models.TutorPolicy{
		TutorID:               "tutor-1",
		AdvanceBookingDaysMin: 1,
		AdvanceBookingDaysMax: 30,
		Timezone:              "UTC",
	}
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	t.Run("today rejected", func(t *testing.T) {
		err := checker.CheckAdvanceWindow(pol, now.Add(2*time.Hour), now)
		require.Error(t, err)
		assert.Equal(t, models.KindPolicyViolation, models.KindOf(err))
		assert.Contains(t, err.Error(), "at least 1 day")
	})

	t.Run("tomorrow accepted", func(t *testing.T) {
		// Early local tomorrow is still one calendar day ahead.
		tomorrow := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
		assert.NoError(t, checker.CheckAdvanceWindow(pol, tomorrow, now))
	})

	t.Run("day 30 accepted", func(t *testing.T) {
		assert.NoError(t, checker.CheckAdvanceWindow(pol, now.AddDate(0, 0, 30), now))
	})

	t.Run("day 31 rejected", func(t *testing.T) {
		err := checker.CheckAdvanceWindow(pol, now.AddDate(0, 0, 31), now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "more than 30 days")
	})
}

func TestCheckAdvanceWindow_TutorZoneDecidesDate(t *testing.T) {
	checker := NewChecker(nil)
	pol := models.TutorPolicy{
		TutorID:               "tutor-1",
		AdvanceBookingDaysMin: 1,
		AdvanceBookingDaysMax: 365,
		Timezone:              "America/New_York",
	}

	// 23:30 UTC on Mar 2 is 18:30 Mar 2 in New York; 03:00 UTC on Mar 3 is
	// still 22:00 Mar 2 locally, so it violates the one-day minimum.
	now := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	sameLocalDay := time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)

	err := checker.CheckAdvanceWindow(pol, sameLocalDay, now)
	require.Error(t, err)

	nextLocalDay := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	assert.NoError(t, checker.CheckAdvanceWindow(pol, nextLocalDay, now))
}

func TestCheckAdvanceWindow_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	checker := NewChecker(nil)
	pol := models.TutorPolicy{
		TutorID:               "tutor-1",
		AdvanceBookingDaysMin: 0,
		AdvanceBookingDaysMax: 365,
		Timezone:              "Not/AZone",
	}
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	assert.NoError(t, checker.CheckAdvanceWindow(pol, now.AddDate(0, 0, 5), now))
}

func TestCheckCapacity_SkipsQueryWhenUncapped(t *testing.T) {
	checker := NewChecker(nil)
	counter := new(mockCounter)
	pol := models.DefaultTutorPolicy("tutor-1")

	err := checker.CheckCapacity(context.Background(), counter, pol, time.Now(), "")
	assert.NoError(t, err)
	counter.AssertNotCalled(t, "CountBookings")
}

func TestCheckCapacity_DayCap(t *testing.T) {
	checker := NewChecker(nil)
	ctx := context.Background()
	pol := models.TutorPolicy{
		TutorID:          "tutor-1",
		MaxLessonsPerDay: intPtr(2),
		Timezone:         "UTC",
	}
	scheduledAt := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	dayStart := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	t.Run("at cap rejected", func(t *testing.T) {
		counter := new(mockCounter)
		counter.On("CountBookings", ctx, "tutor-1", dayStart, dayStart.AddDate(0, 0, 1), "").
			Return(2, nil).Once()

		err := checker.CheckCapacity(ctx, counter, pol, scheduledAt, "")
		require.Error(t, err)
		assert.Equal(t, models.KindPolicyViolation, models.KindOf(err))
		assert.Contains(t, err.Error(), "daily lesson limit (2)")
		counter.AssertExpectations(t)
	})

	t.Run("below cap accepted", func(t *testing.T) {
		counter := new(mockCounter)
		counter.On("CountBookings", ctx, "tutor-1", dayStart, dayStart.AddDate(0, 0, 1), "").
			Return(1, nil).Once()

		assert.NoError(t, checker.CheckCapacity(ctx, counter, pol, scheduledAt, ""))
		counter.AssertExpectations(t)
	})
}

func TestCheckCapacity_WeekStartsSunday(t *testing.T) {
	checker := NewChecker(nil)
	ctx := context.Background()
	pol := models.TutorPolicy{
		TutorID:           "tutor-1",
		MaxLessonsPerWeek: intPtr(5),
		Timezone:          "UTC",
	}

	// Wednesday 2026-03-04; its week starts Sunday 2026-03-01.
	scheduledAt := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	weekStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	counter := new(mockCounter)
	counter.On("CountBookings", ctx, "tutor-1", weekStart, weekStart.AddDate(0, 0, 7), "bk-9").
		Return(5, nil).Once()

	err := checker.CheckCapacity(ctx, counter, pol, scheduledAt, "bk-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekly lesson limit (5)")
	counter.AssertExpectations(t)
}
