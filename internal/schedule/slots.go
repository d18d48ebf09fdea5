package schedule

import (
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lessonbook/internal/models"
)

// Slot is one bookable interval produced by the generator.
type Slot struct {
	Start time.Time
	End   time.Time
}

// SlotRequest carries everything the generator needs. The generator itself is
// agnostic to "current time"; callers filter past slots with FilterPast.
type SlotRequest struct {
	Availability        []models.AvailabilityWindow
	Blocked             []models.BlockedInterval
	Busy                []models.BusyWindow
	Bookings            []models.Booking
	BufferMinutes       int
	Timezone            string
	HorizonStart        time.Time
	HorizonEnd          time.Time
	SlotDurationMinutes int
}

// Generator expands recurring availability into discrete bookable slots.
type Generator struct {
	logger *zerolog.Logger
}

// NewGenerator creates a slot generator.
func NewGenerator(logger *zerolog.Logger) *Generator {
	return &Generator{logger: logger}
}

// Slots returns a lazy, finite, restartable chronological sequence of open
// slots over [HorizonStart, HorizonEnd). A candidate is dropped when, after
// expanding by the buffer on both sides, it overlaps any blocked interval,
// busy window, or existing non-cancelled booking. Wall-clock times resolve
// through the tutor's IANA zone; local times erased or doubled by a DST
// transition are skipped, never shifted.
func (g *Generator) Slots(req SlotRequest) iter.Seq[Slot] {
	loc := g.location(req.Timezone)

	slotMinutes := req.SlotDurationMinutes
	if slotMinutes <= 0 {
		slotMinutes = 30
	}
	buffer := time.Duration(req.BufferMinutes) * time.Minute
	occupied := occupiedIntervals(req)

	return func(yield func(Slot) bool) {
		localStart := req.HorizonStart.In(loc)
		day := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc)

		for ; day.Before(req.HorizonEnd); day = day.AddDate(0, 0, 1) {
			for _, w := range windowsForDay(req.Availability, day.Weekday()) {
				startMin, err := parseClock(w.StartTime)
				if err != nil {
					g.warn(err, w)
					continue
				}
				endMin, err := parseClock(w.EndTime)
				if err != nil {
					g.warn(err, w)
					continue
				}

				// A slot that does not fit the window remainder is dropped,
				// not truncated.
				for cur := startMin; cur+slotMinutes <= endMin; cur += slotMinutes {
					slotStart, ok := resolveLocal(day, cur, loc)
					if !ok {
						continue
					}
					slotEnd, ok := resolveLocal(day, cur+slotMinutes, loc)
					if !ok || !slotEnd.After(slotStart) {
						continue
					}
					if slotStart.Before(req.HorizonStart) || !slotStart.Before(req.HorizonEnd) {
						continue
					}

					candidate := models.Interval{Start: slotStart, End: slotEnd}.Expand(buffer)
					if overlapsAny(candidate, occupied) {
						continue
					}

					if !yield(Slot{Start: slotStart, End: slotEnd}) {
						return
					}
				}
			}
		}
	}
}

// FilterPast drops slots that start at or before now.
func FilterPast(slots iter.Seq[Slot], now time.Time) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		for s := range slots {
			if !s.Start.After(now) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Collect drains a slot sequence into a slice.
func Collect(slots iter.Seq[Slot]) []Slot {
	var out []Slot
	for s := range slots {
		out = append(out, s)
	}
	return out
}

func (g *Generator) location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil || name == "" {
		if g.logger != nil {
			g.logger.Warn().Str("timezone", name).Msg("invalid timezone, falling back to UTC")
		}
		return time.UTC
	}
	return loc
}

func (g *Generator) warn(err error, w models.AvailabilityWindow) {
	if g.logger != nil {
		g.logger.Warn().Err(err).
			Str("tutor_id", w.TutorID).
			Int("day_of_week", int(w.DayOfWeek)).
			Msg("skipping malformed availability window")
	}
}

func occupiedIntervals(req SlotRequest) []models.Interval {
	out := make([]models.Interval, 0, len(req.Blocked)+len(req.Busy)+len(req.Bookings))
	for _, b := range req.Blocked {
		out = append(out, b.Interval())
	}
	for _, w := range req.Busy {
		out = append(out, w.Interval())
	}
	for _, b := range req.Bookings {
		if b.Status.IsCancelled() {
			continue
		}
		out = append(out, b.Interval())
	}
	return out
}

func windowsForDay(availability []models.AvailabilityWindow, day time.Weekday) []models.AvailabilityWindow {
	var matched []models.AvailabilityWindow
	for _, w := range availability {
		if w.IsAvailable && w.DayOfWeek == day {
			matched = append(matched, w)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartTime < matched[j].StartTime
	})
	return matched
}

func overlapsAny(candidate models.Interval, occupied []models.Interval) bool {
	for _, o := range occupied {
		if candidate.Overlaps(o) {
			return true
		}
	}
	return false
}

// resolveLocal maps minutes-past-midnight on the given local date to an
// instant. It reports false for wall-clock times a DST transition removed
// (spring forward) or duplicated (fall back).
func resolveLocal(day time.Time, minutes int, loc *time.Location) (time.Time, bool) {
	d := day.AddDate(0, 0, minutes/(24*60))
	mins := minutes % (24 * 60)
	hour, minute := mins/60, mins%60

	t := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
	if t.Hour() != hour || t.Minute() != minute || t.Day() != d.Day() {
		return time.Time{}, false // normalized away: the local time never existed
	}
	if sameWallClock(t.Add(-time.Hour), d, hour, minute) || sameWallClock(t.Add(time.Hour), d, hour, minute) {
		return time.Time{}, false // repeated hour: the local time is ambiguous
	}
	return t, true
}

func sameWallClock(t time.Time, day time.Time, hour, minute int) bool {
	return t.Day() == day.Day() && t.Hour() == hour && t.Minute() == minute
}

func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}
