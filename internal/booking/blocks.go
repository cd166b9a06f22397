package booking

import (
	"context"
	"time"

	"agenda/internal/events"
	"agenda/internal/model"
	"agenda/internal/slots"
)

const (
	blockNote     = "Personal block"
	maxBlockRange = 366
)

// BlockSlots creates one interval-long personal block at each start.
func (s *Service) BlockSlots(ctx context.Context, starts []time.Time, note string) ([]model.Reservation, error) {
	if len(starts) == 0 {
		return nil, invalid("starts", "select at least one slot")
	}

	settings, err := s.schedule.GetSettings(ctx)
	if err != nil {
		return nil, storeError("load settings", err)
	}
	if settings.SlotIntervalMinutes <= 0 {
		return nil, &ConfigurationError{Field: model.SettingSlotInterval, Reason: "must be positive"}
	}
	interval := time.Duration(settings.SlotIntervalMinutes) * time.Minute

	batch := make([]*model.Reservation, 0, len(starts))
	for _, st := range starts {
		if st.IsZero() {
			return nil, invalid("starts", "contains an empty time")
		}
		batch = append(batch, s.newBlock(st, st.Add(interval), note))
	}
	return s.commitBlocks(ctx, batch)
}

// BlockRange blocks fromClock to toClock on every date from fromDate through toDate.
func (s *Service) BlockRange(ctx context.Context, fromDate, toDate time.Time, fromClock, toClock, note string) ([]model.Reservation, error) {
	days, err := s.dateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}

	fh, fm, err := slots.ParseClock(fromClock)
	if err != nil {
		return nil, invalid("from_time", "expected HH:MM")
	}
	th, tm, err := slots.ParseClock(toClock)
	if err != nil {
		return nil, invalid("to_time", "expected HH:MM")
	}
	if th*60+tm <= fh*60+fm {
		return nil, invalid("to_time", "must be after from_time")
	}

	batch := make([]*model.Reservation, 0, len(days))
	for _, day := range days {
		start, _ := slots.OnDate(day, fromClock)
		end, _ := slots.OnDate(day, toClock)
		batch = append(batch, s.newBlock(start, end, note))
	}
	return s.commitBlocks(ctx, batch)
}

// BlockFullDays blocks the working hours of every date from fromDate through
// toDate. Days off are skipped.
func (s *Service) BlockFullDays(ctx context.Context, fromDate, toDate time.Time, note string) ([]model.Reservation, error) {
	days, err := s.dateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}

	batch := make([]*model.Reservation, 0, len(days))
	for _, day := range days {
		hours, err := s.schedule.GetWorkingHours(ctx, day.Weekday())
		if err != nil {
			return nil, storeError("load working hours", err)
		}
		if !hours.IsWorkDay {
			continue
		}
		start, err := slots.OnDate(day, hours.StartTime)
		if err != nil {
			continue
		}
		end, err := slots.OnDate(day, hours.EndTime)
		if err != nil || !end.After(start) {
			continue
		}
		batch = append(batch, s.newBlock(start, end, note))
	}
	if len(batch) == 0 {
		return []model.Reservation{}, nil
	}
	return s.commitBlocks(ctx, batch)
}

func (s *Service) dateRange(fromDate, toDate time.Time) ([]time.Time, error) {
	from, to := s.civilDate(fromDate), s.civilDate(toDate)
	if to.Before(from) {
		return nil, invalid("to_date", "must not be before from_date")
	}

	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
		if len(days) > maxBlockRange {
			return nil, invalid("to_date", "range is too long")
		}
	}
	return days, nil
}

func (s *Service) newBlock(start, end time.Time, note string) *model.Reservation {
	if note == "" {
		note = blockNote
	}
	return &model.Reservation{
		StartTime:       start,
		EndTime:         end,
		Notes:           note,
		Status:          model.StatusPending,
		IsPersonalBlock: true,
	}
}

// commitBlocks stores the batch atomically; any overlap rejects all of it.
func (s *Service) commitBlocks(ctx context.Context, batch []*model.Reservation) ([]model.Reservation, error) {
	if err := s.reservations.CreateReservations(ctx, batch); err != nil {
		return nil, storeError("create blocks", err)
	}

	out := make([]model.Reservation, 0, len(batch))
	for _, r := range batch {
		s.localize(r)
		out = append(out, *r)
	}
	s.invalidate(ctx)
	s.logger.Info().Int("count", len(out)).Msg("personal blocks created")
	s.publish(ctx, events.BlocksCreated, out)
	return out, nil
}
