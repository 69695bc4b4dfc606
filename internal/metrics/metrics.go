package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking flow and the HTTP API.
type BookingMetrics struct {
	created     *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	expired     prometheus.Counter
	httpLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Bookings created, by specialty",
		}, []string{"specialty"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "conflicts_total",
			Help:      "Booking attempts refused because of a conflict",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions applied, by target status",
		}, []string{"status"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "expired_total",
			Help:      "Requested bookings cancelled by the expiry worker",
		}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.created, m.conflicts, m.transitions, m.expired, m.httpLatency)
	return m
}

func (m *BookingMetrics) ObserveCreated(specialty string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(specialty).Inc()
}

// ObserveConflict counts a refused booking. reason is one of occupied,
// duplicate or locked.
func (m *BookingMetrics) ObserveConflict(reason string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *BookingMetrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
