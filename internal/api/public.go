package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"agenda/internal/booking"
	"agenda/internal/metrics"
	"agenda/internal/model"
)

const localStartLayout = "2006-01-02T15:04"

type slotResponse struct {
	Start time.Time `json:"start"`
	Time  string    `json:"time"`
}

type availabilityResponse struct {
	Date            string         `json:"date"`
	DurationMinutes int            `json:"duration_minutes"`
	People          int            `json:"people"`
	Slots           []slotResponse `json:"slots"`
}

// BookRequest is the body of POST /api/bookings and POST /api/admin/appointments.
type BookRequest struct {
	FullName   string  `json:"full_name"`
	Phone      string  `json:"phone"`
	ServiceIDs []int64 `json:"service_ids"`
	People     int     `json:"people"`
	StartTime  string  `json:"start_time"` // RFC3339 or YYYY-MM-DDTHH:MM in the business time zone
}

// RescheduleRequest is the body of the reschedule routes. Phone is required
// on the public route and must match the booking.
type RescheduleRequest struct {
	Phone     string `json:"phone,omitempty"`
	StartTime string `json:"start_time"`
}

func (s *Server) parseStart(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localStartLayout, value, s.booking.Location())
	if err != nil {
		return time.Time{}, &booking.ValidationError{Field: "start_time", Message: "expected RFC3339 or YYYY-MM-DDTHH:MM"}
	}
	return t, nil
}

func (s *Server) slots(starts []time.Time) []slotResponse {
	out := make([]slotResponse, 0, len(starts))
	for _, st := range starts {
		local := st.In(s.booking.Location())
		out = append(out, slotResponse{Start: local, Time: local.Format("15:04")})
	}
	return out
}

// handleServices returns the active catalog.
// GET /api/services
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("services")
	services, err := s.booking.ListServices(r.Context(), true)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if services == nil {
		services = []model.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// handleAvailability returns bookable start times for a date.
// GET /api/availability?date=YYYY-MM-DD&duration=MIN&people=N
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	q := r.URL.Query()
	date, err := s.booking.ParseDate(q.Get("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	duration, err := queryInt(r, "duration", 0)
	if err != nil || duration <= 0 {
		writeError(w, http.StatusBadRequest, "duration must be a positive number of minutes")
		return
	}
	people, err := queryInt(r, "people", 1)
	if err != nil || people < 1 {
		writeError(w, http.StatusBadRequest, "people must be at least 1")
		return
	}
	if people > s.booking.MaxPeople() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("people must be at most %d", s.booking.MaxPeople()))
		return
	}

	starts, err := s.booking.ComputeAvailability(r.Context(), date, duration, people)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		Date:            date.Format(booking.DateLayout),
		DurationMinutes: duration,
		People:          people,
		Slots:           s.slots(starts),
	})
}

// handleBook creates an appointment for a client.
// POST /api/bookings
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("book")
	s.book(w, r, false)
}

func (s *Server) book(w http.ResponseWriter, r *http.Request, manual bool) {
	var req BookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := s.parseStart(req.StartTime)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, err := s.booking.Book(r.Context(), booking.BookingRequest{
		FullName:   req.FullName,
		Phone:      req.Phone,
		ServiceIDs: req.ServiceIDs,
		People:     req.People,
		Start:      start,
		Manual:     manual,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleHistory returns a client's appointments.
// GET /api/history?phone=...
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("history")
	list, err := s.booking.History(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// clientReservation loads the booking addressed by the reference path param
// and owned by phone. Personal blocks and phone mismatches are reported as
// not found on public routes.
func (s *Server) clientReservation(w http.ResponseWriter, r *http.Request, phone string) (*model.Reservation, bool) {
	res, err := s.booking.Lookup(r.Context(), chi.URLParam(r, "reference"))
	if err == nil && (res.IsPersonalBlock || booking.NormalizePhone(phone) != res.ClientPhone) {
		err = booking.ErrNotFound
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return res, true
}

// GET /api/bookings/{reference}/reschedule-options?date=YYYY-MM-DD&phone=...
func (s *Server) handleClientRescheduleOptions(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("client_reschedule_options")

	settings, err := s.booking.Settings(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !settings.AllowClientReschedule {
		s.writeServiceError(w, r, booking.ErrRescheduleDisabled)
		return
	}

	res, ok := s.clientReservation(w, r, r.URL.Query().Get("phone"))
	if !ok {
		return
	}
	s.rescheduleOptions(w, r, res)
}

func (s *Server) rescheduleOptions(w http.ResponseWriter, r *http.Request, res *model.Reservation) {
	date, err := s.booking.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	starts, err := s.booking.RescheduleOptions(r.Context(), res.ID, date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		Date:            date.Format(booking.DateLayout),
		DurationMinutes: res.DurationMinutes(),
		People:          1,
		Slots:           s.slots(starts),
	})
}

// POST /api/bookings/{reference}/reschedule
func (s *Server) handleClientReschedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("client_reschedule")

	var req RescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, ok := s.clientReservation(w, r, req.Phone)
	if !ok {
		return
	}
	s.reschedule(w, r, res.ID, req.StartTime, true)
}

func (s *Server) reschedule(w http.ResponseWriter, r *http.Request, id int64, startTime string, byClient bool) {
	start, err := s.parseStart(startTime)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	moved, err := s.booking.Reschedule(r.Context(), id, start, byClient)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moved)
}
