package slots

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/model"
)

var testDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) // Tuesday

func at(hour, min int) time.Time {
	return time.Date(testDay.Year(), testDay.Month(), testDay.Day(), hour, min, 0, 0, time.UTC)
}

func workday(start, end string) model.WorkingHours {
	return model.WorkingHours{DayOfWeek: int(testDay.Weekday()), IsWorkDay: true, StartTime: start, EndTime: end}
}

func booked(start, end time.Time) model.Reservation {
	return model.Reservation{StartTime: start, EndTime: end}
}

func TestResolve_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		hours        model.WorkingHours
		interval     int
		reservations []model.Reservation
		duration     int
		people       int
		expected     []time.Time
	}{
		{
			name:         "one reservation in the middle",
			hours:        workday("09:00", "12:00"),
			interval:     60,
			reservations: []model.Reservation{booked(at(10, 0), at(11, 0))},
			duration:     60,
			people:       1,
			expected:     []time.Time{at(9, 0), at(11, 0)},
		},
		{
			name:     "two people need contiguous pairs",
			hours:    workday("09:00", "12:00"),
			interval: 60,
			duration: 60,
			people:   2,
			expected: []time.Time{at(9, 0), at(10, 0)},
		},
		{
			name:     "duration longer than interval chains slots",
			hours:    workday("09:00", "11:00"),
			interval: 30,
			duration: 45,
			people:   1,
			expected: []time.Time{at(9, 0), at(9, 30), at(10, 0)},
		},
		{
			name:         "reservation splits the chain",
			hours:        workday("09:00", "11:00"),
			interval:     30,
			reservations: []model.Reservation{booked(at(9, 30), at(10, 0))},
			duration:     60,
			people:       1,
			expected:     []time.Time{at(10, 0)},
		},
		{
			name:         "partial overlap removes both touched slots",
			hours:        workday("09:00", "12:00"),
			interval:     60,
			reservations: []model.Reservation{booked(at(9, 30), at(10, 30))},
			duration:     60,
			people:       1,
			expected:     []time.Time{at(11, 0)},
		},
		{
			name:         "touching reservations do not exclude a slot",
			hours:        workday("09:00", "12:00"),
			interval:     60,
			reservations: []model.Reservation{booked(at(8, 0), at(10, 0)), booked(at(11, 0), at(12, 0))},
			duration:     60,
			people:       1,
			expected:     []time.Time{at(10, 0)},
		},
		{
			name:     "last slot must fit before closing",
			hours:    workday("09:00", "10:45"),
			interval: 30,
			duration: 30,
			people:   1,
			expected: []time.Time{at(9, 0), at(9, 30), at(10, 0)},
		},
		{
			name:         "fully booked",
			hours:        workday("09:00", "12:00"),
			interval:     60,
			reservations: []model.Reservation{booked(at(9, 0), at(12, 0))},
			duration:     60,
			people:       1,
			expected:     nil,
		},
		{
			name:     "non working day",
			hours:    model.WorkingHours{IsWorkDay: false, StartTime: "09:00", EndTime: "18:00"},
			interval: 60,
			duration: 60,
			people:   1,
			expected: nil,
		},
		{
			name:     "start after end",
			hours:    workday("18:00", "09:00"),
			interval: 60,
			duration: 60,
			people:   1,
			expected: nil,
		},
		{
			name:     "malformed hours",
			hours:    workday("nine", "12:00"),
			interval: 60,
			duration: 60,
			people:   1,
			expected: nil,
		},
		{
			name:     "zero duration",
			hours:    workday("09:00", "12:00"),
			interval: 60,
			duration: 0,
			people:   1,
			expected: nil,
		},
		{
			name:     "more people than the day holds",
			hours:    workday("09:00", "12:00"),
			interval: 60,
			duration: 60,
			people:   4,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(Request{
				Date:            testDay,
				Hours:           tt.hours,
				IntervalMinutes: tt.interval,
				Reservations:    tt.reservations,
				DurationMinutes: tt.duration,
				People:          tt.people,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolve_InvalidInterval(t *testing.T) {
	for _, interval := range []int{0, -15} {
		_, err := Resolve(Request{
			Date:            testDay,
			Hours:           workday("09:00", "12:00"),
			IntervalMinutes: interval,
			DurationMinutes: 60,
			People:          1,
		})
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr), "interval %d", interval)
		assert.Equal(t, "slot_interval_minutes", cfgErr.Field)
	}
}

func TestResolve_NonWorkDayIgnoresEverythingElse(t *testing.T) {
	closed := model.WorkingHours{IsWorkDay: false, StartTime: "00:00", EndTime: "23:00"}
	for _, people := range []int{1, 2, 5} {
		for _, duration := range []int{15, 60, 240} {
			got, err := Resolve(Request{
				Date: testDay, Hours: closed, IntervalMinutes: 15,
				DurationMinutes: duration, People: people,
			})
			require.NoError(t, err)
			assert.Empty(t, got)
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	req := Request{
		Date:            testDay,
		Hours:           workday("08:00", "20:00"),
		IntervalMinutes: 15,
		Reservations: []model.Reservation{
			booked(at(9, 10), at(9, 50)),
			booked(at(13, 0), at(14, 0)),
			booked(at(17, 45), at(18, 0)),
		},
		DurationMinutes: 40,
		People:          2,
	}

	first, err := Resolve(req)
	require.NoError(t, err)
	second, err := Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].Before(first[i]), "windows must be strictly ascending")
	}
}

func TestResolve_ContiguityLaw(t *testing.T) {
	const interval = 15
	reservations := []model.Reservation{
		booked(at(9, 10), at(9, 50)),
		booked(at(11, 0), at(11, 15)),
		booked(at(13, 0), at(14, 0)),
	}
	step := interval * time.Minute

	for people := 1; people <= 4; people++ {
		got, err := Resolve(Request{
			Date: testDay, Hours: workday("08:00", "16:00"), IntervalMinutes: interval,
			Reservations: reservations, DurationMinutes: interval, People: people,
		})
		require.NoError(t, err)
		require.NotEmpty(t, got)

		for _, start := range got {
			for k := 0; k < people; k++ {
				slotStart := start.Add(time.Duration(k) * step)
				slotEnd := slotStart.Add(step)
				assert.False(t, slotEnd.After(at(16, 0)), "slot %s past closing", slotStart.Format("15:04"))
				for _, r := range reservations {
					assert.False(t, Overlaps(r.StartTime, r.EndTime, slotStart, slotEnd),
						"window %s slot %d overlaps reservation", start.Format("15:04"), k)
				}
			}
		}
	}
}

func TestResolve_SingleSlotMatchesFreeSlots(t *testing.T) {
	hours := workday("09:00", "13:00")
	reservations := []model.Reservation{booked(at(10, 0), at(10, 30))}

	got, err := Resolve(Request{
		Date: testDay, Hours: hours, IntervalMinutes: 30,
		Reservations: reservations, DurationMinutes: 30, People: 1,
	})
	require.NoError(t, err)

	free := FreeSlots(GenerateSlots(testDay, hours, 30), reservations)
	require.Len(t, got, len(free))
	for i := range free {
		assert.Equal(t, free[i].StartTime, got[i])
	}
}

func TestGenerateSlots(t *testing.T) {
	tests := []struct {
		name          string
		hours         model.WorkingHours
		interval      int
		expectedCount int
	}{
		{name: "full day 30 min", hours: workday("09:00", "18:00"), interval: 30, expectedCount: 18},
		{name: "60 minute slots", hours: workday("09:00", "12:00"), interval: 60, expectedCount: 3},
		{name: "interval longer than day", hours: workday("09:00", "09:30"), interval: 60, expectedCount: 0},
		{name: "closed day", hours: model.WorkingHours{}, interval: 30, expectedCount: 0},
		{name: "midnight close", hours: workday("22:00", "24:00"), interval: 60, expectedCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := GenerateSlots(testDay, tt.hours, tt.interval)
			assert.Len(t, slots, tt.expectedCount)
			for _, s := range slots {
				assert.Equal(t, time.Duration(tt.interval)*time.Minute, s.EndTime.Sub(s.StartTime))
			}
		})
	}
}

func TestRequiredSlots(t *testing.T) {
	assert.Equal(t, 1, RequiredSlots(60, 60, 1))
	assert.Equal(t, 2, RequiredSlots(61, 60, 1))
	assert.Equal(t, 2, RequiredSlots(60, 60, 2))
	assert.Equal(t, 4, RequiredSlots(120, 30, 3))
	assert.Equal(t, 3, RequiredSlots(30, 30, 3))
	assert.Equal(t, 0, RequiredSlots(30, 0, 1))
}

func TestOnDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	date := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)

	got, err := OnDate(date, "09:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, loc), got)

	for _, bad := range []string{"", "9", "ab:00", "25:00", "10:60", "24:30"} {
		_, err := OnDate(date, bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		minutes  int
		expected string
	}{
		{30, "30 min"},
		{60, "1 hour"},
		{90, "1h 30min"},
		{120, "2 hours"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.minutes))
		})
	}
}
