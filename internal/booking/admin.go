package booking

import (
	"context"
	"strings"

	"agenda/internal/model"
	"agenda/internal/slots"
)

// Schedule returns the weekly working hours, Sunday first, and the settings.
func (s *Service) Schedule(ctx context.Context) ([]model.WorkingHours, model.Settings, error) {
	week, err := s.schedule.ListWorkingHours(ctx)
	if err != nil {
		return nil, model.Settings{}, storeError("load schedule", err)
	}
	settings, err := s.schedule.GetSettings(ctx)
	if err != nil {
		return nil, model.Settings{}, storeError("load settings", err)
	}
	return week, settings, nil
}

// UpdateSchedule replaces the working hours of the given weekdays.
func (s *Service) UpdateSchedule(ctx context.Context, week []model.WorkingHours) error {
	for _, h := range week {
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			return invalid("day_of_week", "must be between 0 and 6")
		}
		if !h.IsWorkDay {
			continue
		}
		sh, sm, err := slots.ParseClock(h.StartTime)
		if err != nil {
			return invalid("start_time", "expected HH:MM")
		}
		eh, em, err := slots.ParseClock(h.EndTime)
		if err != nil {
			return invalid("end_time", "expected HH:MM")
		}
		if eh*60+em <= sh*60+sm {
			return invalid("end_time", "must be after start_time")
		}
	}

	if err := s.schedule.SaveWorkingHours(ctx, week); err != nil {
		return storeError("save schedule", err)
	}
	s.invalidate(ctx)
	s.logger.Info().Int("days", len(week)).Msg("working hours updated")
	return nil
}

// UpdateSettings stores the booking settings.
func (s *Service) UpdateSettings(ctx context.Context, settings model.Settings) error {
	if settings.SlotIntervalMinutes <= 0 {
		return invalid(model.SettingSlotInterval, "must be positive")
	}
	if err := s.schedule.SaveSettings(ctx, settings); err != nil {
		return storeError("save settings", err)
	}
	s.invalidate(ctx)
	s.logger.Info().
		Int("slot_interval_minutes", settings.SlotIntervalMinutes).
		Bool("allow_client_reschedule", settings.AllowClientReschedule).
		Msg("settings updated")
	return nil
}

func (s *Service) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	list, err := s.catalog.ListServices(ctx, activeOnly)
	if err != nil {
		return nil, storeError("list services", err)
	}
	return list, nil
}

// SaveService creates or updates a catalog entry.
func (s *Service) SaveService(ctx context.Context, svc *model.Service) error {
	svc.Name = strings.TrimSpace(svc.Name)
	switch {
	case svc.Name == "":
		return invalid("name", "is required")
	case svc.DurationMinutes <= 0:
		return invalid("duration_minutes", "must be positive")
	case svc.Price < 0:
		return invalid("price", "must not be negative")
	}
	if err := s.catalog.SaveService(ctx, svc); err != nil {
		return storeError("save service", err)
	}
	return nil
}

func (s *Service) DeleteService(ctx context.Context, id int64) error {
	return storeError("delete service", s.catalog.DeleteService(ctx, id))
}

func (s *Service) ListClients(ctx context.Context, search string) ([]model.Client, error) {
	list, err := s.clients.ListClients(ctx, search)
	if err != nil {
		return nil, storeError("list clients", err)
	}
	return list, nil
}

// SaveClient creates or updates a client.
func (s *Service) SaveClient(ctx context.Context, c *model.Client) error {
	c.FullName = strings.TrimSpace(c.FullName)
	c.PhoneNumber = NormalizePhone(c.PhoneNumber)
	if c.FullName == "" {
		return invalid("full_name", "is required")
	}
	if !phonePattern.MatchString(c.PhoneNumber) {
		return invalid("phone_number", "is not a valid phone number")
	}
	if err := s.clients.SaveClient(ctx, c); err != nil {
		return storeError("save client", err)
	}
	return nil
}

// DeleteClient removes a client together with their appointments.
func (s *Service) DeleteClient(ctx context.Context, id int64) error {
	if err := s.clients.DeleteClient(ctx, id); err != nil {
		return storeError("delete client", err)
	}
	s.invalidate(ctx)
	s.logger.Info().Int64("client_id", id).Msg("client deleted")
	return nil
}

// Settings returns the stored booking settings.
func (s *Service) Settings(ctx context.Context) (model.Settings, error) {
	settings, err := s.schedule.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, storeError("load settings", err)
	}
	return settings, nil
}
