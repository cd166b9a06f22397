package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"agenda/internal/model"
)

// HoursConfig is a working-hours range.
type HoursConfig struct {
	StartTime string `yaml:"start_time"` // "09:00"
	EndTime   string `yaml:"end_time"`   // "18:00"
}

// DayConfig overrides the default hours for one weekday.
type DayConfig struct {
	DayOfWeek int    `yaml:"day_of_week"` // 0=Sun, 6=Sat
	Closed    bool   `yaml:"closed"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

// ScheduleConfig is the root configuration for schedule.yaml.
type ScheduleConfig struct {
	SlotIntervalMinutes   int         `yaml:"slot_interval_minutes"`
	AllowClientReschedule *bool       `yaml:"allow_client_reschedule"`
	Defaults              HoursConfig `yaml:"defaults"`
	DaysOff               []int       `yaml:"days_off"`
	Days                  []DayConfig `yaml:"days"`
}

// LoadScheduleConfig loads and validates the weekly schedule from YAML file.
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	if path == "" {
		path = "configs/schedule.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule config: %w", err)
	}

	var cfg ScheduleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse schedule config: %w", err)
	}

	if cfg.SlotIntervalMinutes == 0 {
		cfg.SlotIntervalMinutes = model.DefaultSlotInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate schedule config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *ScheduleConfig) Validate() error {
	if c.SlotIntervalMinutes < 0 {
		return fmt.Errorf("slot_interval_minutes must be positive")
	}
	if err := validateHours(c.Defaults.StartTime, c.Defaults.EndTime, "defaults"); err != nil {
		return err
	}

	for i, d := range c.DaysOff {
		if d < 0 || d > 6 {
			return fmt.Errorf("days_off[%d]: invalid day %d, must be 0-6 (0=Sun)", i, d)
		}
	}

	seen := make(map[int]bool)
	for i, d := range c.Days {
		if d.DayOfWeek < 0 || d.DayOfWeek > 6 {
			return fmt.Errorf("days[%d]: invalid day_of_week %d, must be 0-6 (0=Sun)", i, d.DayOfWeek)
		}
		if seen[d.DayOfWeek] {
			return fmt.Errorf("days[%d]: duplicate day_of_week %d", i, d.DayOfWeek)
		}
		seen[d.DayOfWeek] = true
		if d.Closed {
			continue
		}
		if err := validateHours(d.StartTime, d.EndTime, fmt.Sprintf("days[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func validateHours(start, end, prefix string) error {
	if start == "" {
		return fmt.Errorf("%s.start_time is required", prefix)
	}
	if end == "" {
		return fmt.Errorf("%s.end_time is required", prefix)
	}

	startTime, err := time.Parse("15:04", start)
	if err != nil {
		return fmt.Errorf("%s.start_time: invalid format '%s', expected HH:MM", prefix, start)
	}
	endTime, err := time.Parse("15:04", end)
	if err != nil {
		return fmt.Errorf("%s.end_time: invalid format '%s', expected HH:MM", prefix, end)
	}
	if !endTime.After(startTime) {
		return fmt.Errorf("%s: end_time must be after start_time", prefix)
	}
	return nil
}

// Week expands the configuration into seven WorkingHours records, Sunday first.
func (c *ScheduleConfig) Week() []model.WorkingHours {
	week := make([]model.WorkingHours, 7)
	for day := range week {
		week[day] = model.WorkingHours{
			DayOfWeek: day,
			IsWorkDay: true,
			StartTime: c.Defaults.StartTime,
			EndTime:   c.Defaults.EndTime,
		}
	}
	for _, d := range c.DaysOff {
		week[d].IsWorkDay = false
	}
	for _, d := range c.Days {
		if d.Closed {
			week[d.DayOfWeek].IsWorkDay = false
			continue
		}
		week[d.DayOfWeek].IsWorkDay = true
		week[d.DayOfWeek].StartTime = d.StartTime
		week[d.DayOfWeek].EndTime = d.EndTime
	}
	return week
}

// Settings returns the settings carried by the schedule file.
func (c *ScheduleConfig) Settings() model.Settings {
	s := model.DefaultSettings()
	if c.SlotIntervalMinutes > 0 {
		s.SlotIntervalMinutes = c.SlotIntervalMinutes
	}
	if c.AllowClientReschedule != nil {
		s.AllowClientReschedule = *c.AllowClientReschedule
	}
	return s
}

// String returns a summary of the configuration.
func (c *ScheduleConfig) String() string {
	open := 0
	for _, d := range c.Week() {
		if d.IsWorkDay {
			open++
		}
	}
	return fmt.Sprintf("ScheduleConfig: %d working days, %d min slots", open, c.SlotIntervalMinutes)
}
