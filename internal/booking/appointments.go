package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"agenda/internal/events"
	"agenda/internal/model"
	"agenda/internal/slots"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{5,15}$`)

// NormalizePhone strips formatting characters from a phone number.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// BookingRequest is a client's request to book services at a start time.
type BookingRequest struct {
	FullName   string
	Phone      string
	ServiceIDs []int64
	People     int
	Start      time.Time
	// Manual marks bookings entered by an administrator. They skip the
	// booking horizon and working-hours checks.
	Manual bool
}

// Book resolves the requested services, registers the client and commits the
// appointment.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*model.Reservation, error) {
	name := strings.TrimSpace(req.FullName)
	phone := NormalizePhone(req.Phone)
	switch {
	case name == "":
		return nil, invalid("full_name", "is required")
	case !phonePattern.MatchString(phone):
		return nil, invalid("phone", "is not a valid phone number")
	case len(req.ServiceIDs) == 0:
		return nil, invalid("service_ids", "select at least one service")
	case req.People < 1 || req.People > s.opts.MaxPeople:
		return nil, invalid("people", fmt.Sprintf("must be between 1 and %d", s.opts.MaxPeople))
	case req.Start.IsZero():
		return nil, invalid("start_time", "is required")
	}

	blocked, err := s.clients.IsPhoneBlocked(ctx, phone)
	if err != nil {
		return nil, storeError("check blocklist", err)
	}
	if blocked {
		s.logger.Info().Str("phone", phone).Msg("booking from blocked phone rejected")
		return nil, ErrBlockedClient
	}

	services, err := s.resolveServices(ctx, req.ServiceIDs)
	if err != nil {
		return nil, err
	}

	perPerson, price := 0, 0.0
	names := make([]string, 0, len(services))
	for _, svc := range services {
		perPerson += svc.DurationMinutes
		price += svc.Price
		names = append(names, svc.Name)
	}
	duration := perPerson * req.People
	price *= float64(req.People)

	source := SourcePublic
	if req.Manual {
		source = SourceAdmin
	} else {
		interval, err := s.checkWindow(ctx, req.Start, duration, req.People)
		if err != nil {
			return nil, err
		}
		// Hold every slot the window check required, one per person at least.
		duration = max(duration, req.People*interval)
	}

	client, err := s.clients.LookupOrCreateClient(ctx, name, phone)
	if err != nil {
		return nil, storeError("lookup client", err)
	}

	return s.ValidateAndCommit(ctx, req.Start, duration, OwnerRef{
		ClientID:    &client.ID,
		ClientName:  client.FullName,
		ClientPhone: client.PhoneNumber,
		Notes:       fmt.Sprintf("%d person(s): %s", req.People, strings.Join(names, ", ")),
		TotalPrice:  price,
		Source:      source,
	})
}

func (s *Service) resolveServices(ctx context.Context, ids []int64) ([]model.Service, error) {
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	services, err := s.catalog.GetServicesByIDs(ctx, unique)
	if err != nil {
		return nil, storeError("load services", err)
	}
	active := services[:0]
	for _, svc := range services {
		if svc.IsActive {
			active = append(active, svc)
		}
	}
	if len(active) != len(unique) {
		return nil, invalid("service_ids", "unknown or inactive service")
	}
	return active, nil
}

// checkWindow verifies that start is inside the booking horizon and on the
// day's slot grid, ignoring existing reservations, and returns the slot
// interval it checked against. Overlaps are left to the guarded commit so
// that a lost race surfaces as ErrConflict.
func (s *Service) checkWindow(ctx context.Context, start time.Time, durationMinutes, people int) (int, error) {
	now := s.opts.Now()
	if start.Before(now.Add(s.opts.MinAdvance)) {
		return 0, invalid("start_time", "is too soon")
	}
	if s.opts.MaxAdvance > 0 && start.After(now.Add(s.opts.MaxAdvance)) {
		return 0, invalid("start_time", "is too far ahead")
	}

	day := s.civilDate(start)
	hours, err := s.schedule.GetWorkingHours(ctx, day.Weekday())
	if err != nil {
		return 0, storeError("load working hours", err)
	}
	settings, err := s.schedule.GetSettings(ctx)
	if err != nil {
		return 0, storeError("load settings", err)
	}

	grid, err := slots.Resolve(slots.Request{
		Date:            day,
		Hours:           hours,
		IntervalMinutes: settings.SlotIntervalMinutes,
		DurationMinutes: durationMinutes,
		People:          people,
	})
	if err != nil {
		return 0, err
	}
	for _, st := range grid {
		if st.Equal(start) {
			return settings.SlotIntervalMinutes, nil
		}
	}
	return 0, invalid("start_time", "is not a bookable time")
}

// Get returns a reservation by id.
func (s *Service) Get(ctx context.Context, id int64) (*model.Reservation, error) {
	r, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return nil, storeError("get reservation", err)
	}
	s.localize(r)
	return r, nil
}

// Lookup returns a reservation by its public reference.
func (s *Service) Lookup(ctx context.Context, reference string) (*model.Reservation, error) {
	r, err := s.reservations.GetReservationByReference(ctx, reference)
	if err != nil {
		return nil, storeError("get reservation", err)
	}
	s.localize(r)
	return r, nil
}

// Reschedule moves reservation id to newStart, keeping its duration. Clients
// may only do so while the allow_client_reschedule setting is on, and only to
// a bookable time.
func (s *Service) Reschedule(ctx context.Context, id int64, newStart time.Time, byClient bool) (*model.Reservation, error) {
	if newStart.IsZero() {
		return nil, invalid("start_time", "is required")
	}

	r, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return nil, storeError("get reservation", err)
	}
	duration := r.Duration()

	if byClient {
		settings, err := s.schedule.GetSettings(ctx)
		if err != nil {
			return nil, storeError("load settings", err)
		}
		if !settings.AllowClientReschedule {
			return nil, ErrRescheduleDisabled
		}
		if r.IsPersonalBlock {
			return nil, ErrNotFound
		}
		if _, err := s.checkWindow(ctx, newStart, r.DurationMinutes(), 1); err != nil {
			return nil, err
		}
	}

	newEnd := newStart.Add(duration)
	if err := s.reservations.UpdateReservationTimes(ctx, id, newStart, newEnd); err != nil {
		err = storeError("reschedule reservation", err)
		if errors.Is(err, ErrConflict) {
			s.logger.Info().Int64("reservation_id", id).Time("start", newStart).Msg("reschedule conflict")
		}
		return nil, err
	}

	previous := r.StartTime
	r.StartTime = newStart
	r.EndTime = newEnd
	s.localize(r)
	s.invalidate(ctx)
	s.logger.Info().
		Int64("reservation_id", id).
		Time("from", previous).
		Time("to", r.StartTime).
		Bool("by_client", byClient).
		Msg("reservation rescheduled")
	s.publish(ctx, events.AppointmentRescheduled, r)
	return r, nil
}

// RescheduleOptions lists the starts on date that reservation id could move
// to. Its own interval counts as free and its current start is always offered
// when it falls on date.
func (s *Service) RescheduleOptions(ctx context.Context, id int64, date time.Time) ([]time.Time, error) {
	r, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return nil, storeError("get reservation", err)
	}

	day := s.civilDate(date)
	starts, err := s.resolveDay(ctx, day, r.DurationMinutes(), 1, r.ID)
	if err != nil {
		return nil, err
	}
	starts = s.withinAdvance(starts)

	if s.civilDate(r.StartTime).Equal(day) {
		current := r.StartTime.In(s.opts.Location)
		found := false
		for _, st := range starts {
			if st.Equal(current) {
				found = true
				break
			}
		}
		if !found {
			starts = append(starts, current)
			sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
		}
	}
	return starts, nil
}

// Cancel deletes a reservation.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	r, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return storeError("get reservation", err)
	}
	if err := s.reservations.DeleteReservation(ctx, id); err != nil {
		return storeError("delete reservation", err)
	}

	s.localize(r)
	s.invalidate(ctx)
	s.logger.Info().Int64("reservation_id", id).Time("start", r.StartTime).Msg("reservation cancelled")
	s.publish(ctx, events.AppointmentCancelled, r)
	return nil
}

// SetStatus moves a client appointment to status. Personal blocks have no status.
func (s *Service) SetStatus(ctx context.Context, id int64, status model.Status) (*model.Reservation, error) {
	if !status.Valid() {
		return nil, invalid("status", "must be pending, completed or no_show")
	}

	r, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return nil, storeError("get reservation", err)
	}
	if r.IsPersonalBlock {
		return nil, invalid("status", "personal blocks have no status")
	}
	if err := s.reservations.UpdateReservationStatus(ctx, id, status); err != nil {
		return nil, storeError("update status", err)
	}

	r.Status = status
	s.localize(r)
	s.logger.Info().Int64("reservation_id", id).Str("status", string(status)).Msg("reservation status changed")
	s.publish(ctx, events.AppointmentStatusChanged, r)
	return r, nil
}

// History returns the appointments booked with phone, newest first.
func (s *Service) History(ctx context.Context, phone string) ([]model.Reservation, error) {
	phone = NormalizePhone(phone)
	if !phonePattern.MatchString(phone) {
		return nil, invalid("phone", "is not a valid phone number")
	}
	list, err := s.reservations.ListReservationsByPhone(ctx, phone)
	if err != nil {
		return nil, storeError("load history", err)
	}
	return s.localizeAll(list), nil
}

// DaySchedule returns every reservation intersecting date, ordered by start.
func (s *Service) DaySchedule(ctx context.Context, date time.Time) ([]model.Reservation, error) {
	return s.Reservations(ctx, s.civilDate(date), s.civilDate(date).AddDate(0, 0, 1))
}

// Reservations returns reservations intersecting [from, to).
func (s *Service) Reservations(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	list, err := s.reservations.ListReservations(ctx, from, to)
	if err != nil {
		return nil, storeError("load reservations", err)
	}
	return s.localizeAll(list), nil
}
