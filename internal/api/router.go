package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/metrics"
)

var errNotConfigured = errors.New("dependency not configured")

type RouterConfig struct {
	Appointments   AppointmentService
	Referrals      ReferralService
	Postgres       Pinger
	Redis          Pinger
	Logger         zerolog.Logger
	Metrics        *metrics.Collector
	MetricsHandler http.Handler
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(RecoverMiddleware)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/book/{clinicId}", bookAppointmentHandler(cfg.Appointments))
		r.Post("/cancel/{id}", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/initiatePayment/{id}", initiatePaymentHandler(cfg.Appointments))
		r.Post("/confirmPayment/{id}", confirmPaymentHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
	})

	r.Get("/patients/{patientId}/appointments", listPatientAppointmentsHandler(cfg.Appointments))
	r.Get("/clinics/{clinicId}/availability", availabilityHandler(cfg.Appointments))

	if cfg.Referrals != nil {
		r.Post("/referrals/invite", inviteHandler(cfg.Referrals))
		r.Post("/referrals/attach", attachReferralHandler(cfg.Referrals))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

type OpsConfig struct {
	Postgres       Pinger
	Logger         zerolog.Logger
	MetricsHandler http.Handler
	Env            string
	Version        string
}

// NewOpsRouter serves health and metrics for processes without a public API.
func NewOpsRouter(cfg OpsConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, nil))
	r.Use(RecoverMiddleware)

	health := NewHealthHandler(cfg.Postgres, nil, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}
	return r
}
