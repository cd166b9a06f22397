package model

import "time"

// WorkingHours is the weekly schedule entry for one weekday.
type WorkingHours struct {
	DayOfWeek int       `json:"day_of_week"` // 0-6 (Sunday-Saturday)
	IsWorkDay bool      `json:"is_work_day"`
	StartTime string    `json:"start_time"` // "09:00"
	EndTime   string    `json:"end_time"`   // "18:00"
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Setting keys stored in the settings table.
const (
	SettingSlotInterval          = "slot_interval_minutes"
	SettingAllowClientReschedule = "allow_client_reschedule"
)

// DefaultSlotInterval is used when no interval has been configured.
const DefaultSlotInterval = 60

// Settings is the typed view of the settings table.
type Settings struct {
	SlotIntervalMinutes   int  `json:"slot_interval_minutes"`
	AllowClientReschedule bool `json:"allow_client_reschedule"`
}

// DefaultSettings returns settings used for missing rows.
func DefaultSettings() Settings {
	return Settings{
		SlotIntervalMinutes:   DefaultSlotInterval,
		AllowClientReschedule: true,
	}
}
