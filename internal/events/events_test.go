package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/model"
)

func TestBus_PublishContinuesAfterHandlerError(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var calls []string
	bus.Subscribe(func(ctx context.Context, e Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	}, AppointmentCreated)
	bus.Subscribe(func(ctx context.Context, e Event) error {
		calls = append(calls, "second")
		return nil
	}, AppointmentCreated)
	bus.Subscribe(func(ctx context.Context, e Event) error {
		calls = append(calls, "other")
		return nil
	}, AppointmentCancelled)

	bus.Publish(context.Background(), Event{Type: AppointmentCreated})
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	seen := map[string]int{}
	bus.Subscribe(func(ctx context.Context, e Event) error {
		seen[e.Type]++
		return nil
	})

	for _, typ := range Types {
		bus.Publish(context.Background(), Event{Type: typ})
	}
	assert.Len(t, seen, len(Types))
}

func TestEvent_ReservationPayload(t *testing.T) {
	r := &model.Reservation{
		ID:        7,
		Reference: "abc",
		StartTime: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC),
		Status:    model.StatusPending,
	}

	e, err := NewEvent(AppointmentCreated, r)
	require.NoError(t, err)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := e.Reservation()
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.True(t, got.StartTime.Equal(r.StartTime))

	batch, err := NewEvent(BlocksCreated, []*model.Reservation{r, r})
	require.NoError(t, err)
	list, err := batch.Reservations()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
