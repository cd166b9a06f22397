package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENDA_TEST_KEY", "secret-key")

	path := writeFile(t, dir, "config.yaml", `
http:
  admin_api_key: ${AGENDA_TEST_KEY}
database:
  path: `+filepath.Join(dir, "data", "agenda.db")+`
booking:
  timezone: UTC
  min_advance_minutes: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.HTTP.AdminAPIKey)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, filepath.Join(dir, "schedule.yaml"), cfg.ScheduleConfigPath)
	assert.Equal(t, 30*time.Minute, cfg.BookingMinAdvance())
	assert.Equal(t, 60*24*time.Hour, cfg.BookingMaxAdvance())
	assert.Equal(t, 5, cfg.MaxPeople())
	assert.Equal(t, time.Duration(0), cfg.CacheTTL())
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())

	perSecond, burst := cfg.RateLimit()
	assert.InDelta(t, 2.0, perSecond, 0.0001)
	assert.Equal(t, 20, burst)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoad_RejectsUnknownTimezone(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "agenda.db")+`
booking:
  timezone: Mars/Olympus
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadScheduleConfig_Week(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "schedule.yaml", `
slot_interval_minutes: 30
allow_client_reschedule: false
defaults:
  start_time: "09:00"
  end_time: "18:00"
days_off: [0]
days:
  - day_of_week: 6
    start_time: "10:00"
    end_time: "14:00"
  - day_of_week: 3
    closed: true
`)

	cfg, err := LoadScheduleConfig(path)
	require.NoError(t, err)

	week := cfg.Week()
	require.Len(t, week, 7)
	assert.False(t, week[0].IsWorkDay)
	assert.True(t, week[1].IsWorkDay)
	assert.Equal(t, "09:00", week[1].StartTime)
	assert.Equal(t, "18:00", week[1].EndTime)
	assert.False(t, week[3].IsWorkDay)
	assert.True(t, week[6].IsWorkDay)
	assert.Equal(t, "10:00", week[6].StartTime)
	assert.Equal(t, "14:00", week[6].EndTime)

	settings := cfg.Settings()
	assert.Equal(t, 30, settings.SlotIntervalMinutes)
	assert.False(t, settings.AllowClientReschedule)
}

func TestScheduleConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ScheduleConfig
		ok   bool
	}{
		{
			name: "valid",
			cfg:  ScheduleConfig{SlotIntervalMinutes: 60, Defaults: HoursConfig{StartTime: "09:00", EndTime: "17:00"}},
			ok:   true,
		},
		{
			name: "end before start",
			cfg:  ScheduleConfig{SlotIntervalMinutes: 60, Defaults: HoursConfig{StartTime: "17:00", EndTime: "09:00"}},
		},
		{
			name: "missing start",
			cfg:  ScheduleConfig{SlotIntervalMinutes: 60, Defaults: HoursConfig{EndTime: "09:00"}},
		},
		{
			name: "bad day off",
			cfg:  ScheduleConfig{SlotIntervalMinutes: 60, Defaults: HoursConfig{StartTime: "09:00", EndTime: "17:00"}, DaysOff: []int{7}},
		},
		{
			name: "duplicate day",
			cfg: ScheduleConfig{
				SlotIntervalMinutes: 60,
				Defaults:            HoursConfig{StartTime: "09:00", EndTime: "17:00"},
				Days:                []DayConfig{{DayOfWeek: 1, Closed: true}, {DayOfWeek: 1, Closed: true}},
			},
		},
		{
			name: "negative interval",
			cfg:  ScheduleConfig{SlotIntervalMinutes: -5, Defaults: HoursConfig{StartTime: "09:00", EndTime: "17:00"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWatchSchedule_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "schedule.yaml", `
slot_interval_minutes: 60
defaults:
  start_time: "09:00"
  end_time: "18:00"
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lastInterval atomic.Int64
	err := WatchSchedule(ctx, path, 10*time.Millisecond, func(cfg *ScheduleConfig) {
		lastInterval.Store(int64(cfg.SlotIntervalMinutes))
	})
	require.NoError(t, err)

	// No callback for the initial load.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(0), lastInterval.Load())

	writeFile(t, dir, "schedule.yaml", `
slot_interval_minutes: 15
defaults:
  start_time: "09:00"
  end_time: "18:00"
`)
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool { return lastInterval.Load() == 15 }, time.Second, 10*time.Millisecond)
}

func TestWatchSchedule_MissingFile(t *testing.T) {
	err := WatchSchedule(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), time.Second, nil)
	assert.Error(t, err)
}
