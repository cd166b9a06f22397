// Package events is the in-process pub/sub used to fan booking changes out
// to notifications, the spreadsheet mirror and metrics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agenda/internal/model"
)

// Event types.
const (
	AppointmentCreated       = "appointment.created"
	AppointmentRescheduled   = "appointment.rescheduled"
	AppointmentCancelled     = "appointment.cancelled"
	AppointmentStatusChanged = "appointment.status_changed"
	BlocksCreated            = "blocks.created"
)

// Types lists every event type published by the booking core.
var Types = []string{
	AppointmentCreated,
	AppointmentRescheduled,
	AppointmentCancelled,
	AppointmentStatusChanged,
	BlocksCreated,
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// NewEvent encodes payload as JSON.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data, CreatedAt: time.Now()}, nil
}

// Reservation decodes a single-reservation payload.
func (e Event) Reservation() (*model.Reservation, error) {
	var r model.Reservation
	if err := json.Unmarshal(e.Payload, &r); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return &r, nil
}

// Reservations decodes a blocks.created payload.
func (e Event) Reservations() ([]model.Reservation, error) {
	var out []model.Reservation
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return out, nil
}

// Handler reacts to an event.
type Handler func(ctx context.Context, event Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for the given event types, or for all of
// them when none are given.
func (b *Bus) Subscribe(handler Handler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = Types
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish runs the subscribers of the event type synchronously. A failing
// handler is logged and the remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}
