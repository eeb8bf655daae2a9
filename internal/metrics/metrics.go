package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the service exports. A nil *Collector is valid
// and records nothing, which keeps tests free of registry setup.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingsTotal      *prometheus.CounterVec
	CancellationsTotal *prometheus.CounterVec
	RefundedAmount     prometheus.Counter
	TransitionsTotal   *prometheus.CounterVec

	JobsExecutedTotal *prometheus.CounterVec
	JobLag            *prometheus.HistogramVec

	NotificationsTotal *prometheus.CounterVec
}

func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		}, []string{"outcome"}),

		CancellationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "cancellations_total",
			Help:      "Cancellations by refund tier.",
		}, []string{"tier"}),

		RefundedAmount: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "refunded_amount_total",
			Help:      "Sum of refund amounts issued on cancellation.",
		}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status.",
		}, []string{"status"}),

		JobsExecutedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "executed_total",
			Help:      "Deferred jobs executed by kind and result.",
		}, []string{"kind", "result"}),

		JobLag: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "fire_lag_seconds",
			Help:      "Delay between a job's fire time and its execution.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
		}, []string{"kind"}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notifications dispatched by kind and result.",
		}, []string{"kind", "result"}),
	}
}

func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) Booking(outcome string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) Cancellation(tier string, refund float64) {
	if c == nil {
		return
	}
	c.CancellationsTotal.WithLabelValues(tier).Inc()
	c.RefundedAmount.Add(refund)
}

func (c *Collector) Transition(status string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(status).Inc()
}

func (c *Collector) JobExecuted(kind, result string, lag time.Duration) {
	if c == nil {
		return
	}
	c.JobsExecutedTotal.WithLabelValues(kind, result).Inc()
	if lag > 0 {
		c.JobLag.WithLabelValues(kind).Observe(lag.Seconds())
	}
}

func (c *Collector) Notification(kind, result string) {
	if c == nil {
		return
	}
	c.NotificationsTotal.WithLabelValues(kind, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
