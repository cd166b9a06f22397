// Package api exposes the booking core over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"agenda/internal/access"
	"agenda/internal/booking"
)

// Exporter writes the monthly appointment workbook.
type Exporter interface {
	ExportMonth(ctx context.Context, month time.Time, w io.Writer) error
}

// Config holds API settings.
type Config struct {
	AdminAPIKey    string
	RatePerSecond  float64
	RateBurst      int
	RequestTimeout time.Duration
	// TrustProxy enables middleware.RealIP, so rate limits key on the
	// forwarded client address.
	TrustProxy     bool
}

// Server is the HTTP API.
type Server struct {
	booking  *booking.Service
	access   *access.Service
	exporter Exporter
	apiKey   string
	timeout  time.Duration
	proxied  bool
	limiter  *ipLimiter
	logger   zerolog.Logger
}

// NewServer builds the API. exporter may be nil, which disables the export route.
func NewServer(bookingSvc *booking.Service, accessSvc *access.Service, exporter Exporter, cfg Config, logger zerolog.Logger) *Server {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &Server{
		booking:  bookingSvc,
		access:   accessSvc,
		exporter: exporter,
		apiKey:   cfg.AdminAPIKey,
		timeout:  cfg.RequestTimeout,
		proxied:  cfg.TrustProxy,
		limiter:  newIPLimiter(cfg.RatePerSecond, cfg.RateBurst),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.proxied {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Timeout(s.timeout))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(public chi.Router) {
			public.Use(s.rateLimit)
			public.Get("/services", s.handleServices)
			public.Get("/availability", s.handleAvailability)
			public.Post("/bookings", s.handleBook)
			public.Get("/history", s.handleHistory)
			public.Get("/bookings/{reference}/reschedule-options", s.handleClientRescheduleOptions)
			public.Post("/bookings/{reference}/reschedule", s.handleClientReschedule)
		})

		r.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireAPIKey)

			admin.Get("/appointments", s.handleAdminAppointments)
			admin.Post("/appointments", s.handleAdminBook)
			admin.Get("/appointments/{id}/reschedule-options", s.handleAdminRescheduleOptions)
			admin.Post("/appointments/{id}/reschedule", s.handleAdminReschedule)
			admin.Patch("/appointments/{id}/status", s.handleSetStatus)
			admin.Delete("/appointments/{id}", s.handleCancel)

			admin.Post("/blocks/slots", s.handleBlockSlots)
			admin.Post("/blocks/range", s.handleBlockRange)
			admin.Post("/blocks/full-day", s.handleBlockFullDays)

			admin.Get("/schedule", s.handleGetSchedule)
			admin.Put("/schedule", s.handlePutSchedule)
			admin.Get("/settings", s.handleGetSettings)
			admin.Put("/settings", s.handlePutSettings)

			admin.Get("/services", s.handleAdminServices)
			admin.Post("/services", s.handleCreateService)
			admin.Put("/services/{id}", s.handleUpdateService)
			admin.Delete("/services/{id}", s.handleDeleteService)

			admin.Get("/clients", s.handleClients)
			admin.Post("/clients", s.handleCreateClient)
			admin.Put("/clients/{id}", s.handleUpdateClient)
			admin.Delete("/clients/{id}", s.handleDeleteClient)

			admin.Get("/admins", s.handleAdmins)
			admin.Post("/admins", s.handleInviteAdmin)
			admin.Delete("/admins/{id}", s.handleRemoveAdmin)

			admin.Get("/blocklist", s.handleBlocklist)
			admin.Post("/blocklist", s.handleBlockPhone)
			admin.Delete("/blocklist/{phone}", s.handleUnblockPhone)

			admin.Get("/export", s.handleExport)
		})
	})

	return r
}

// actor is the admin acting on the request, when the caller names one.
func actor(r *http.Request) string {
	return r.Header.Get("X-Admin-Email")
}

// PruneLimiter drops idle per-client rate limiters until ctx is done.
func (s *Server) PruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.limiter.prune(now, 30*time.Minute)
		}
	}
}
