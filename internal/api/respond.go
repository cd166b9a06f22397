package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"agenda/internal/access"
	"agenda/internal/booking"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps booking and access errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *booking.ValidationError
		cfgErr     *booking.ConfigurationError
		denied     *access.AccessDeniedError
		badInput   *access.InvalidInputError
	)

	switch {
	case errors.Is(err, booking.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: "the selected time is no longer available, please pick another one",
			Code:  "conflict",
		})
	case errors.Is(err, booking.ErrStoreUnavailable):
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "service temporarily unavailable, please retry",
			Code:  "store_unavailable",
		})
	case errors.As(err, &cfgErr):
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("schedule misconfigured")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "booking is temporarily unavailable",
			Code:  "configuration",
		})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Error(), Code: "validation", Field: validation.Field})
	case errors.As(err, &badInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: badInput.Error(), Code: "validation", Field: badInput.Field})
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, access.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"})
	case errors.Is(err, booking.ErrRescheduleDisabled), errors.Is(err, booking.ErrBlockedClient):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: "forbidden"})
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: denied.Error(), Code: "forbidden"})
	case errors.Is(err, access.ErrLastAdmin):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "last_admin"})
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
