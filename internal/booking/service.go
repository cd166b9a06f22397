// Package booking is the booking core: availability, the guarded commit and
// the appointment lifecycle on top of the store.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"agenda/internal/events"
	"agenda/internal/metrics"
	"agenda/internal/model"
	"agenda/internal/slots"
)

var tracer = otel.Tracer("agenda.internal.booking")

// DateLayout is the wire format of civil dates.
const DateLayout = "2006-01-02"

// Sources label who created a reservation.
const (
	SourcePublic = "public"
	SourceAdmin  = "admin"
	SourceBlock  = "block"
)

type ScheduleStore interface {
	GetWorkingHours(ctx context.Context, weekday time.Weekday) (model.WorkingHours, error)
	ListWorkingHours(ctx context.Context) ([]model.WorkingHours, error)
	SaveWorkingHours(ctx context.Context, week []model.WorkingHours) error
	GetSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error
}

// ReservationStore persists reservations. CreateReservation(s) and
// UpdateReservationTimes must reject overlaps atomically.
type ReservationStore interface {
	ListReservations(ctx context.Context, from, to time.Time) ([]model.Reservation, error)
	ListReservationsByPhone(ctx context.Context, phone string) ([]model.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	GetReservationByReference(ctx context.Context, reference string) (*model.Reservation, error)
	CreateReservation(ctx context.Context, r *model.Reservation) error
	CreateReservations(ctx context.Context, batch []*model.Reservation) error
	UpdateReservationTimes(ctx context.Context, id int64, start, end time.Time) error
	UpdateReservationStatus(ctx context.Context, id int64, status model.Status) error
	DeleteReservation(ctx context.Context, id int64) error
}

type ClientDirectory interface {
	LookupOrCreateClient(ctx context.Context, fullName, phone string) (*model.Client, error)
	ListClients(ctx context.Context, search string) ([]model.Client, error)
	SaveClient(ctx context.Context, c *model.Client) error
	DeleteClient(ctx context.Context, id int64) error
	IsPhoneBlocked(ctx context.Context, phone string) (bool, error)
}

type CatalogStore interface {
	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
	GetServicesByIDs(ctx context.Context, ids []int64) ([]model.Service, error)
	SaveService(ctx context.Context, s *model.Service) error
	DeleteService(ctx context.Context, id int64) error
}

// AvailabilityCache memoizes resolver output. Implementations must treat
// errors as misses. The key returned on a miss is bound to the cache state at
// lookup time; a result stored under it after an Invalidate is never served.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, date string, durationMinutes, people int) (starts []time.Time, key string, ok bool)
	SetAvailability(ctx context.Context, key string, starts []time.Time)
	Invalidate(ctx context.Context)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Options tune the booking rules.
type Options struct {
	Location   *time.Location
	MinAdvance time.Duration
	MaxAdvance time.Duration
	MaxPeople  int
	Now        func() time.Time
}

// Service implements the booking operations.
type Service struct {
	schedule     ScheduleStore
	reservations ReservationStore
	clients      ClientDirectory
	catalog      CatalogStore
	cache        AvailabilityCache
	publisher    Publisher
	opts         Options
	logger       zerolog.Logger
}

func NewService(
	schedule ScheduleStore,
	reservations ReservationStore,
	clients ClientDirectory,
	catalog CatalogStore,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxPeople <= 0 {
		opts.MaxPeople = 5
	}
	return &Service{
		schedule:     schedule,
		reservations: reservations,
		clients:      clients,
		catalog:      catalog,
		opts:         opts,
		logger:       logger.With().Str("component", "booking").Logger(),
	}
}

// MaxPeople is the largest party a single booking may seat.
func (s *Service) MaxPeople() int {
	return s.opts.MaxPeople
}

// SetCache enables availability caching.
func (s *Service) SetCache(c AvailabilityCache) {
	s.cache = c
}

// SetPublisher sets where booking events are sent.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// Location is the business time zone.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// ParseDate parses a YYYY-MM-DD civil date in the business time zone.
func (s *Service) ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, value, s.opts.Location)
	if err != nil {
		return time.Time{}, invalid("date", "expected YYYY-MM-DD")
	}
	return d, nil
}

// civilDate returns midnight of t's calendar day in the business time zone.
func (s *Service) civilDate(t time.Time) time.Time {
	t = t.In(s.opts.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.opts.Location)
}

// ComputeAvailability returns the window starts on date for a service of
// durationMinutes booked for people persons. An empty result means the day
// is fully booked or closed, or the party is too large; a store failure is
// returned as an error.
func (s *Service) ComputeAvailability(ctx context.Context, date time.Time, durationMinutes, people int) ([]time.Time, error) {
	ctx, span := tracer.Start(ctx, "booking.compute_availability")
	defer span.End()

	day := s.civilDate(date)
	dateKey := day.Format(DateLayout)
	span.SetAttributes(
		attribute.String("agenda.date", dateKey),
		attribute.Int("agenda.duration_minutes", durationMinutes),
		attribute.Int("agenda.people", people),
	)

	// No window can seat a party larger than a single booking allows.
	if people > s.opts.MaxPeople {
		return []time.Time{}, nil
	}

	var cacheKey string
	if s.cache != nil {
		starts, key, ok := s.cache.GetAvailability(ctx, dateKey, durationMinutes, people)
		if ok {
			metrics.IncCacheHit()
			return s.withinAdvance(starts), nil
		}
		cacheKey = key
		metrics.IncCacheMiss()
	}

	starts, err := s.resolveDay(ctx, day, durationMinutes, people, 0)
	if err != nil {
		span.RecordError(err)
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			s.logger.Error().Err(err).Str("date", dateKey).Msg("schedule misconfigured")
		}
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetAvailability(ctx, cacheKey, starts)
	}
	return s.withinAdvance(starts), nil
}

// resolveDay runs the resolver for day against the stored schedule and
// reservations, ignoring the reservation with id excludeID.
func (s *Service) resolveDay(ctx context.Context, day time.Time, durationMinutes, people int, excludeID int64) ([]time.Time, error) {
	hours, err := s.schedule.GetWorkingHours(ctx, day.Weekday())
	if err != nil {
		return nil, storeError("load working hours", err)
	}
	settings, err := s.schedule.GetSettings(ctx)
	if err != nil {
		return nil, storeError("load settings", err)
	}

	from, to := slots.DayBounds(day)
	reservations, err := s.reservations.ListReservations(ctx, from, to)
	if err != nil {
		return nil, storeError("load reservations", err)
	}
	if excludeID != 0 {
		kept := reservations[:0]
		for _, r := range reservations {
			if r.ID != excludeID {
				kept = append(kept, r)
			}
		}
		reservations = kept
	}

	started := time.Now()
	starts, err := slots.Resolve(slots.Request{
		Date:            day,
		Hours:           hours,
		IntervalMinutes: settings.SlotIntervalMinutes,
		Reservations:    reservations,
		DurationMinutes: durationMinutes,
		People:          people,
	})
	metrics.ObserveResolve(time.Since(started))
	return starts, err
}

// withinAdvance keeps starts inside the booking horizon.
func (s *Service) withinAdvance(starts []time.Time) []time.Time {
	now := s.opts.Now()
	earliest := now.Add(s.opts.MinAdvance)
	out := make([]time.Time, 0, len(starts))
	for _, st := range starts {
		if st.Before(earliest) {
			continue
		}
		if s.opts.MaxAdvance > 0 && st.After(now.Add(s.opts.MaxAdvance)) {
			continue
		}
		out = append(out, st.In(s.opts.Location))
	}
	return out
}

// OwnerRef describes who a reservation belongs to.
type OwnerRef struct {
	ClientID      *int64
	ClientName    string
	ClientPhone   string
	Notes         string
	TotalPrice    float64
	PersonalBlock bool
	Source        string
}

// ValidateAndCommit stores [start, start+duration) for owner. The overlap
// check and the write are atomic in the store; when the window was taken in
// the meantime ErrConflict is returned and nothing is written. It never retries.
func (s *Service) ValidateAndCommit(ctx context.Context, start time.Time, durationMinutes int, owner OwnerRef) (*model.Reservation, error) {
	ctx, span := tracer.Start(ctx, "booking.validate_and_commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("agenda.start", start.Format(time.RFC3339)),
		attribute.Int("agenda.duration_minutes", durationMinutes),
		attribute.String("agenda.source", owner.Source),
	)

	if start.IsZero() {
		return nil, invalid("start_time", "is required")
	}
	if durationMinutes <= 0 {
		return nil, invalid("duration", "must be positive")
	}

	r := &model.Reservation{
		ClientID:        owner.ClientID,
		ClientName:      owner.ClientName,
		ClientPhone:     owner.ClientPhone,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(durationMinutes) * time.Minute),
		Notes:           owner.Notes,
		Status:          model.StatusPending,
		IsPersonalBlock: owner.PersonalBlock,
		TotalPrice:      owner.TotalPrice,
	}
	if err := s.reservations.CreateReservation(ctx, r); err != nil {
		err = storeError("commit reservation", err)
		span.RecordError(err)
		if errors.Is(err, ErrConflict) {
			metrics.IncConflict()
			s.logger.Info().Time("start", start).Int("duration", durationMinutes).Msg("booking conflict")
		} else {
			s.logger.Error().Err(err).Msg("commit reservation failed")
		}
		return nil, err
	}

	s.invalidate(ctx)
	s.localize(r)
	metrics.IncBookingCreated(owner.Source)
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("reference", r.Reference).
		Time("start", r.StartTime).
		Str("source", owner.Source).
		Msg("reservation created")
	s.publish(ctx, events.AppointmentCreated, r)
	return r, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("build event")
		return
	}
	s.publisher.Publish(ctx, event)
}

func (s *Service) localize(r *model.Reservation) {
	r.StartTime = r.StartTime.In(s.opts.Location)
	r.EndTime = r.EndTime.In(s.opts.Location)
}

func (s *Service) localizeAll(list []model.Reservation) []model.Reservation {
	for i := range list {
		s.localize(&list[i])
	}
	return list
}
