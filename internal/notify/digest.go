package notify

import (
	"context"
	"time"

	"agenda/internal/model"
)

// DaySource returns the reservations of a civil date.
type DaySource interface {
	DaySchedule(ctx context.Context, date time.Time) ([]model.Reservation, error)
}

// RunDigest sends the day's agenda every day at hour (business time zone)
// until ctx is done.
func (n *Notifier) RunDigest(ctx context.Context, source DaySource, hour int) {
	timer := time.NewTimer(untilNextHour(time.Now().In(n.loc), hour))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := n.SendDigest(ctx, source, time.Now().In(n.loc)); err != nil {
				n.logger.Error().Err(err).Msg("daily digest failed")
			}
			timer.Reset(untilNextHour(time.Now().In(n.loc), hour))
		}
	}
}

// SendDigest queues the agenda of day.
func (n *Notifier) SendDigest(ctx context.Context, source DaySource, day time.Time) error {
	list, err := source.DaySchedule(ctx, day)
	if err != nil {
		return err
	}
	n.Enqueue(KindDigest, FormatDigest(day, list, n.loc))
	return nil
}

func untilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
