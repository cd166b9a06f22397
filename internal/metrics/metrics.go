package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agenda/internal/events"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "booking_created_total",
			Help:      "Count of reservations created by source.",
		},
		[]string{"source"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "booking_conflicts_total",
			Help:      "Count of commits rejected because the window was taken.",
		},
	)

	domainEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "events_total",
			Help:      "Count of published booking events by type.",
		},
		[]string{"type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route.",
		},
		[]string{"route"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "availability_cache_total",
			Help:      "Availability cache lookups by result.",
		},
		[]string{"result"},
	)

	resolveSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agenda",
			Name:      "availability_resolve_seconds",
			Help:      "Time spent computing availability for a day.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingConflicts, domainEvents, httpRequests, cacheLookups, resolveSeconds)
	})
}

func IncBookingCreated(source string) {
	bookingCreated.WithLabelValues(source).Inc()
}

func IncConflict() {
	bookingConflicts.Inc()
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func IncCacheHit() {
	cacheLookups.WithLabelValues("hit").Inc()
}

func IncCacheMiss() {
	cacheLookups.WithLabelValues("miss").Inc()
}

func ObserveResolve(d time.Duration) {
	resolveSeconds.Observe(d.Seconds())
}

// CountEvent is an events.Handler that counts published events by type.
func CountEvent(_ context.Context, e events.Event) error {
	domainEvents.WithLabelValues(e.Type).Inc()
	return nil
}
