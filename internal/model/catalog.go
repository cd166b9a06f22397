package model

import "time"

// Service is a bookable offering from the catalog.
type Service struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Price           float64   `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Client is a person who books appointments, identified by phone number.
type Client struct {
	ID          int64     `json:"id"`
	FullName    string    `json:"full_name"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Admin struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	InvitedBy string    `json:"invited_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type BlockedPhone struct {
	PhoneNumber string    `json:"phone_number"`
	Reason      string    `json:"reason,omitempty"`
	BlockedBy   string    `json:"blocked_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
