package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agenda/internal/booking"
	"agenda/internal/metrics"
	"agenda/internal/model"
)

// GET /api/admin/appointments?date=YYYY-MM-DD
// GET /api/admin/appointments?from=YYYY-MM-DD&to=YYYY-MM-DD (to is inclusive)
func (s *Server) handleAdminAppointments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_appointments")

	q := r.URL.Query()
	var (
		list []model.Reservation
		err  error
	)
	if q.Get("from") != "" {
		from, ferr := s.booking.ParseDate(q.Get("from"))
		to, terr := s.booking.ParseDate(q.Get("to"))
		if ferr != nil || terr != nil {
			writeError(w, http.StatusBadRequest, "invalid date range; expected YYYY-MM-DD")
			return
		}
		list, err = s.booking.Reservations(r.Context(), from, to.AddDate(0, 0, 1))
	} else {
		date := time.Now()
		if q.Get("date") != "" {
			if date, err = s.booking.ParseDate(q.Get("date")); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
		}
		list, err = s.booking.DaySchedule(r.Context(), date)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// POST /api/admin/appointments
func (s *Server) handleAdminBook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_book")
	s.book(w, r, true)
}

// GET /api/admin/appointments/{id}/reschedule-options?date=YYYY-MM-DD
func (s *Server) handleAdminRescheduleOptions(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_reschedule_options")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.booking.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.rescheduleOptions(w, r, res)
}

// POST /api/admin/appointments/{id}/reschedule
func (s *Server) handleAdminReschedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_reschedule")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.reschedule(w, r, id, req.StartTime, false)
}

// PATCH /api/admin/appointments/{id}/status
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_set_status")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status model.Status `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.booking.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DELETE /api/admin/appointments/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_cancel")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.booking.Cancel(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/admin/blocks/slots
func (s *Server) handleBlockSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_block_slots")
	var req struct {
		Starts []string `json:"starts"`
		Note   string   `json:"note"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	starts := make([]time.Time, 0, len(req.Starts))
	for _, raw := range req.Starts {
		st, err := s.parseStart(raw)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		starts = append(starts, st)
	}

	blocks, err := s.booking.BlockSlots(r.Context(), starts, req.Note)
	s.writeBlocks(w, r, blocks, err)
}

type blockRangeRequest struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
	FromTime string `json:"from_time,omitempty"`
	ToTime   string `json:"to_time,omitempty"`
	Note     string `json:"note"`
}

func (s *Server) parseDates(req blockRangeRequest) (time.Time, time.Time, error) {
	from, err := s.booking.ParseDate(req.FromDate)
	if err != nil {
		return time.Time{}, time.Time{}, &booking.ValidationError{Field: "from_date", Message: "expected YYYY-MM-DD"}
	}
	to := from
	if req.ToDate != "" {
		if to, err = s.booking.ParseDate(req.ToDate); err != nil {
			return time.Time{}, time.Time{}, &booking.ValidationError{Field: "to_date", Message: "expected YYYY-MM-DD"}
		}
	}
	return from, to, nil
}

// POST /api/admin/blocks/range
func (s *Server) handleBlockRange(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_block_range")
	var req blockRangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	from, to, err := s.parseDates(req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	blocks, err := s.booking.BlockRange(r.Context(), from, to, req.FromTime, req.ToTime, req.Note)
	s.writeBlocks(w, r, blocks, err)
}

// POST /api/admin/blocks/full-day
func (s *Server) handleBlockFullDays(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_block_full_day")
	var req blockRangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	from, to, err := s.parseDates(req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	blocks, err := s.booking.BlockFullDays(r.Context(), from, to, req.Note)
	s.writeBlocks(w, r, blocks, err)
}

func (s *Server) writeBlocks(w http.ResponseWriter, r *http.Request, blocks []model.Reservation, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if blocks == nil {
		blocks = []model.Reservation{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"blocks": blocks})
}

type scheduleResponse struct {
	Days     []model.WorkingHours `json:"days"`
	Settings model.Settings       `json:"settings"`
}

// GET /api/admin/schedule
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_schedule")
	week, settings, err := s.booking.Schedule(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{Days: week, Settings: settings})
}

// PUT /api/admin/schedule
func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_update_schedule")
	var req struct {
		Days []model.WorkingHours `json:"days"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.booking.UpdateSchedule(r.Context(), req.Days); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.handleGetSchedule(w, r)
}

// GET /api/admin/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_settings")
	settings, err := s.booking.Settings(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PUT /api/admin/settings
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_update_settings")
	var req model.Settings
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.booking.UpdateSettings(r.Context(), req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type serviceRequest struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	IsActive        *bool   `json:"is_active"`
}

func (req serviceRequest) toService(id int64) *model.Service {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &model.Service{
		ID:              id,
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
		IsActive:        active,
	}
}

// GET /api/admin/services
func (s *Server) handleAdminServices(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_services")
	services, err := s.booking.ListServices(r.Context(), false)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if services == nil {
		services = []model.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// POST /api/admin/services
func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_create_service")
	var req serviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	svc := req.toService(0)
	if err := s.booking.SaveService(r.Context(), svc); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// PUT /api/admin/services/{id}
func (s *Server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_update_service")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req serviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	svc := req.toService(id)
	if err := s.booking.SaveService(r.Context(), svc); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// DELETE /api/admin/services/{id}
func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_delete_service")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.booking.DeleteService(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type clientRequest struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
}

// GET /api/admin/clients?search=
func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_clients")
	clients, err := s.booking.ListClients(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if clients == nil {
		clients = []model.Client{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

// POST /api/admin/clients
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_create_client")
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c := &model.Client{FullName: req.FullName, PhoneNumber: req.PhoneNumber}
	if err := s.booking.SaveClient(r.Context(), c); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// PUT /api/admin/clients/{id}
func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_update_client")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c := &model.Client{ID: id, FullName: req.FullName, PhoneNumber: req.PhoneNumber}
	if err := s.booking.SaveClient(r.Context(), c); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DELETE /api/admin/clients/{id}
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_delete_client")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.booking.DeleteClient(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/admin/admins
func (s *Server) handleAdmins(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_admins")
	admins, err := s.access.ListAdmins(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if admins == nil {
		admins = []model.Admin{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

// POST /api/admin/admins
func (s *Server) handleInviteAdmin(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_invite")
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.access.InviteAdmin(r.Context(), req.Email, actor(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"email": req.Email})
}

// DELETE /api/admin/admins/{id}
func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_remove")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.access.RemoveAdmin(r.Context(), id, actor(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/admin/blocklist
func (s *Server) handleBlocklist(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_blocklist")
	list, err := s.access.ListBlocked(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []model.BlockedPhone{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked": list})
}

// POST /api/admin/blocklist
func (s *Server) handleBlockPhone(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_block_phone")
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Reason      string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	phone := booking.NormalizePhone(req.PhoneNumber)
	if err := s.access.BlockPhone(r.Context(), phone, req.Reason, actor(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"phone_number": phone})
}

// DELETE /api/admin/blocklist/{phone}
func (s *Server) handleUnblockPhone(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_unblock_phone")
	phone := booking.NormalizePhone(chi.URLParam(r, "phone"))
	if err := s.access.UnblockPhone(r.Context(), phone); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExport streams the monthly workbook.
// GET /api/admin/export?month=YYYY-MM
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_export")
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "export is disabled")
		return
	}

	raw := r.URL.Query().Get("month")
	month, err := time.ParseInLocation("2006-01", raw, s.booking.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month; expected YYYY-MM")
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.ExportMonth(r.Context(), month, &buf); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="appointments_%s.xlsx"`, month.Format("2006-01")))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
