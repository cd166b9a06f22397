// Package slots computes bookable start times for a day from working hours,
// a slot interval and the reservations already taken.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"agenda/internal/model"
)

// ConfigurationError reports a schedule misconfiguration. It is meant for the
// administrator, not for the booking client.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Slot is an atomic slot [StartTime, EndTime).
type Slot struct {
	StartTime time.Time
	EndTime   time.Time
}

// Request holds everything needed to resolve one day.
type Request struct {
	Date            time.Time
	Hours           model.WorkingHours
	IntervalMinutes int
	Reservations    []model.Reservation
	DurationMinutes int
	People          int
}

// Resolve returns the ascending start times of every bookable window on
// req.Date. An empty result means no availability and is not an error.
func Resolve(req Request) ([]time.Time, error) {
	if req.IntervalMinutes <= 0 {
		return nil, &ConfigurationError{Field: "slot_interval_minutes", Reason: "must be positive"}
	}
	if req.DurationMinutes <= 0 || req.People < 1 {
		return nil, nil
	}

	all := GenerateSlots(req.Date, req.Hours, req.IntervalMinutes)
	free := FreeSlots(all, req.Reservations)
	required := RequiredSlots(req.DurationMinutes, req.IntervalMinutes, req.People)

	return Windows(free, req.IntervalMinutes, required), nil
}

// GenerateSlots returns the atomic slots of a working day. The last slot ends
// at or before the closing time. Non-working days and malformed hours yield nil.
func GenerateSlots(date time.Time, hours model.WorkingHours, intervalMinutes int) []Slot {
	if !hours.IsWorkDay || intervalMinutes <= 0 {
		return nil
	}

	startTime, err := OnDate(date, hours.StartTime)
	if err != nil {
		return nil
	}
	endTime, err := OnDate(date, hours.EndTime)
	if err != nil {
		return nil
	}
	if !startTime.Before(endTime) {
		return nil
	}

	step := time.Duration(intervalMinutes) * time.Minute
	var slots []Slot
	for cursor := startTime; !cursor.Add(step).After(endTime); cursor = cursor.Add(step) {
		slots = append(slots, Slot{StartTime: cursor, EndTime: cursor.Add(step)})
	}
	return slots
}

// FreeSlots drops every slot that overlaps a reservation. Appointments and
// personal blocks are treated alike.
func FreeSlots(slots []Slot, reservations []model.Reservation) []Slot {
	free := make([]Slot, 0, len(slots))
	for _, s := range slots {
		taken := false
		for i := range reservations {
			if Overlaps(reservations[i].StartTime, reservations[i].EndTime, s.StartTime, s.EndTime) {
				taken = true
				break
			}
		}
		if !taken {
			free = append(free, s)
		}
	}
	return free
}

// Windows returns the first start of every run of required consecutive free
// slots. Consecutive means exactly one interval apart. Runs may overlap.
func Windows(free []Slot, intervalMinutes, required int) []time.Time {
	if required < 1 || len(free) < required {
		return nil
	}

	step := time.Duration(intervalMinutes) * time.Minute
	var starts []time.Time
	run := 0
	for i := range free {
		if i > 0 && free[i].StartTime.Equal(free[i-1].StartTime.Add(step)) {
			run++
		} else {
			run = 1
		}
		if run >= required {
			starts = append(starts, free[i-required+1].StartTime)
		}
	}
	return starts
}

// RequiredSlots is the number of consecutive atomic slots a booking needs:
// one per person, and never fewer than the slots needed to cover the duration.
func RequiredSlots(durationMinutes, intervalMinutes, people int) int {
	if intervalMinutes <= 0 {
		return 0
	}
	n := (durationMinutes + intervalMinutes - 1) / intervalMinutes
	if people > n {
		n = people
	}
	return n
}

// Overlaps is the half-open intersection test. Touching endpoints do not overlap.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(clock string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid time format: %s", clock)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute: %w", err)
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, 0, fmt.Errorf("time out of range: %s", clock)
	}
	return hour, minute, nil
}

// OnDate places an "HH:MM" clock time on the civil date of date, in date's location.
func OnDate(date time.Time, clock string) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

// DayBounds returns [00:00, next 00:00) of date in its location.
func DayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

// FormatDuration formats minutes as a short human-readable string.
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%dh %dmin", hours, mins)
}
