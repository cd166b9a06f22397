package model

import "time"

// Status is the lifecycle state of a client appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Reservation is an occupied interval [StartTime, EndTime). It is either a
// client appointment or a personal block created by the owner.
type Reservation struct {
	ID              int64     `json:"id"`
	Reference       string    `json:"reference"`
	ClientID        *int64    `json:"client_id,omitempty"`
	ClientName      string    `json:"client_name,omitempty"`
	ClientPhone     string    `json:"client_phone,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Notes           string    `json:"notes"`
	Status          Status    `json:"status"`
	IsPersonalBlock bool      `json:"is_personal_block"`
	TotalPrice      float64   `json:"total_price"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the length of the reservation.
func (r *Reservation) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// DurationMinutes returns the length of the reservation in whole minutes.
func (r *Reservation) DurationMinutes() int {
	return int(r.Duration() / time.Minute)
}

// Overlaps reports whether the reservation intersects [start, end).
// Touching endpoints do not overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}
