package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/consultation-scheduling/internal/clocktime"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/metrics"
	"github.com/hackgods/consultation-scheduling/internal/notify"
	"github.com/hackgods/consultation-scheduling/internal/payment"
	redisclient "github.com/hackgods/consultation-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventDiscountApplied      = "DISCOUNT_APPLIED"
	EventPaymentInitiated     = "PAYMENT_INITIATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventPaymentFailed        = "PAYMENT_FAILED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

// ReferralDiscountRate is taken off the fee once per referral side.
const ReferralDiscountRate = 0.20

var (
	ErrValidation              = errors.New("validation failed")
	ErrSlotConflict            = errors.New("slot conflicts with an existing appointment")
	ErrSlotBeingBooked         = fmt.Errorf("%w: slot is currently being booked, please retry", ErrSlotConflict)
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrPaymentNotSuccessful    = errors.New("payment was not successful")
)

// FollowUpScheduler registers the deferred jobs of a confirmed online
// appointment.
type FollowUpScheduler interface {
	ScheduleFollowUps(ctx context.Context, a *Appointment) error
}

type BookRequest struct {
	ClinicID         uuid.UUID
	PatientID        uuid.UUID
	Date             string // YYYY-MM-DD
	StartTime        string // 12-hour clock, "11:00 AM"
	ConsultationType string
}

type Cancellation struct {
	Appointment  *Appointment
	RefundAmount float64
	Tier         RefundTier
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Notifier
	gateway  payment.Gateway
	cfg      config.Config
	policy   Policy
	log      zerolog.Logger
	metrics  *metrics.Collector
	now      func() time.Time
	tracer   trace.Tracer

	mu        sync.RWMutex
	followUps FollowUpScheduler
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Notifier, gateway payment.Gateway, cfg config.Config, log zerolog.Logger, opts ...Option) *Service {
	loc := cfg.ClinicLocation
	if loc == nil {
		loc = time.UTC
		cfg.ClinicLocation = loc
	}

	s := &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		gateway:  gateway,
		cfg:      cfg,
		policy:   DefaultPolicy(loc),
		log:      log.With().Str("component", "appointment").Logger(),
		now:      time.Now,
		tracer:   otel.Tracer("github.com/hackgods/consultation-scheduling/internal/appointment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFollowUps installs the deferred job planner. It is set after
// construction because the planner itself calls back into the service.
func (s *Service) SetFollowUps(f FollowUpScheduler) {
	s.mu.Lock()
	s.followUps = f
	s.mu.Unlock()
}

func (s *Service) Location() *time.Location { return s.cfg.ClinicLocation }

func (s *Service) Now() time.Time { return s.now() }

// Book validates the request against the booking policy and the doctor's
// existing schedule, then stores a pending appointment. The conflict check
// and the insert run under a per-doctor-day lock.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.Book", trace.WithAttributes(
		attribute.String("clinic.id", req.ClinicID.String()),
		attribute.String("appointment.date", req.Date),
		attribute.String("appointment.start_time", req.StartTime),
	))
	defer span.End()

	appt, err := s.book(ctx, req)
	s.metrics.Booking(bookingOutcome(err))
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("appointment.id", appt.ID.String()))
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.ClinicID == uuid.Nil || req.PatientID == uuid.Nil ||
		strings.TrimSpace(req.Date) == "" || strings.TrimSpace(req.StartTime) == "" ||
		strings.TrimSpace(req.ConsultationType) == "" {
		return nil, fmt.Errorf("%w: please provide all the required details", ErrValidation)
	}

	ctype := ConsultationType(strings.ToLower(strings.TrimSpace(req.ConsultationType)))
	if !ctype.IsValid() {
		return nil, fmt.Errorf("%w: consultation type must be online or offline", ErrValidation)
	}

	day, err := ParseDay(req.Date, s.Location())
	if err != nil {
		return nil, err
	}

	start, err := clocktime.To24h(req.StartTime)
	if err != nil {
		return nil, err
	}

	clinic, err := s.repo.GetClinicByID(ctx, req.ClinicID)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	now := s.now()
	slot, err := s.policy.Check(now, *clinic, day, start)
	if err != nil {
		return nil, err
	}

	var created *Appointment
	lockKey := fmt.Sprintf("doctor:%s:%s", clinic.DoctorID, day.Format(dateLayout))

	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		// Inside the critical section re-read the doctor's day.
		existing, err := s.repo.ListActiveForDoctorDay(lockCtx, clinic.DoctorID, day)
		if err != nil {
			return fmt.Errorf("load doctor schedule: %w", err)
		}
		if c := DetectConflict(existing, clinic.DoctorID, slot); c.Found() {
			return conflictError(c)
		}

		appt := NewAppointment(*clinic, req.PatientID, slot, ctype, now)
		if err := s.repo.InsertAppointment(lockCtx, appt); err != nil {
			if errors.Is(err, ErrSlotConflict) {
				return err
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"clinic_id":         clinic.ID.String(),
			"doctor_id":         clinic.DoctorID.String(),
			"patient_id":        req.PatientID.String(),
			"appointment_date":  day.Format(dateLayout),
			"start_time":        slot.StartTime,
			"consultation_type": string(ctype),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("date", day.Format(dateLayout)).
		Str("start", created.StartTime).
		Msg("appointment booked")

	return created, nil
}

func conflictError(c Conflict) error {
	if c.Exact {
		return fmt.Errorf("%w: %s to %s is already booked", ErrSlotConflict, c.With.StartTime, c.With.EndTime)
	}
	return fmt.Errorf("%w: overlaps the booking from %s to %s", ErrSlotConflict, c.With.StartTime, c.With.EndTime)
}

// ApplyReferralDiscount takes 20% off a pending appointment when the patient
// holds an unclaimed referral. It applies at most once per appointment.
func (s *Service) ApplyReferralDiscount(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DiscountApplied {
		return appt, nil
	}
	if appt.Status != StatusPending || appt.PaymentStatus == PaymentSuccessful {
		return nil, fmt.Errorf("%w: discount only applies before payment", ErrInvalidStatusTransition)
	}

	updated, role, err := s.repo.ApplyReferralDiscount(ctx, id, appt.PatientID, ReferralDiscountRate, s.now())
	switch {
	case errors.Is(err, ErrNoReferral):
		return appt, nil
	case errors.Is(err, ErrStatusChanged):
		return s.load(ctx, id)
	case err != nil:
		return nil, fmt.Errorf("apply referral discount: %w", err)
	}

	s.logEvent(ctx, id, EventDiscountApplied, map[string]any{
		"role":         string(role),
		"original_fee": appt.Fee,
		"fee":          updated.Fee,
	})
	return updated, nil
}

// InitiatePayment applies any referral discount and opens a payment intent
// for the remaining fee.
func (s *Service) InitiatePayment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.InitiatePayment", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()

	appt, err := s.load(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if appt.PaymentStatus == PaymentSuccessful {
		return nil, fmt.Errorf("%w: appointment already confirmed", ErrInvalidStatusTransition)
	}
	if appt.Status != StatusPending {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidStatusTransition, appt.Status)
	}

	appt, err = s.ApplyReferralDiscount(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, toMinor(appt.Fee), s.cfg.PaymentCurrency, appt.ID.String())
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	updated, err := s.repo.SetPaymentIntent(ctx, id, intent.ID, s.now())
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			err = fmt.Errorf("%w: appointment changed while initiating payment", ErrInvalidStatusTransition)
		}
		recordError(span, err)
		return nil, err
	}

	s.logEvent(ctx, id, EventPaymentInitiated, map[string]any{
		"intent_id":    intent.ID,
		"amount_minor": intent.AmountMinor,
		"currency":     intent.Currency,
	})
	return updated, nil
}

// ConfirmPayment settles the payment intent and moves the appointment to
// confirmed. Online appointments get their follow-up jobs registered.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, methodID string) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.ConfirmPayment", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()

	appt, err := s.confirmPayment(ctx, id, methodID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return appt, nil
}

func (s *Service) confirmPayment(ctx context.Context, id uuid.UUID, methodID string) (*Appointment, error) {
	if strings.TrimSpace(methodID) == "" {
		return nil, fmt.Errorf("%w: payment method is required", ErrValidation)
	}

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusConfirmed && appt.PaymentStatus == PaymentSuccessful {
		return appt, nil
	}
	if appt.Status != StatusPending {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidStatusTransition, appt.Status)
	}
	if appt.PaymentIntentID == nil {
		return nil, fmt.Errorf("%w: payment has not been initiated", ErrValidation)
	}

	intent, err := s.gateway.ConfirmIntent(ctx, *appt.PaymentIntentID, methodID)
	if err != nil {
		return nil, fmt.Errorf("confirm payment intent: %w", err)
	}

	now := s.now()
	if intent.Status != payment.IntentSucceeded {
		failed := PaymentFailed
		if _, err := s.repo.UpdateStatus(ctx, id, StatusPending, StatusChange{
			Status:          StatusPending,
			PaymentStatus:   &failed,
			PaymentMethodID: &methodID,
			At:              now,
		}); err != nil {
			s.log.Error().Err(err).Str("appointment_id", id.String()).Msg("failed to record failed payment")
		}
		s.logEvent(ctx, id, EventPaymentFailed, map[string]any{
			"intent_id": intent.ID,
			"status":    string(intent.Status),
		})
		return nil, ErrPaymentNotSuccessful
	}

	successful := PaymentSuccessful
	updated, err := s.repo.UpdateStatus(ctx, id, StatusPending, StatusChange{
		Status:          StatusConfirmed,
		PaymentStatus:   &successful,
		PaymentMethodID: &methodID,
		At:              now,
	})
	if err != nil {
		if !errors.Is(err, ErrStatusChanged) {
			return nil, fmt.Errorf("confirm appointment: %w", err)
		}
		current, lerr := s.load(ctx, id)
		if lerr != nil {
			return nil, lerr
		}
		if current.Status == StatusConfirmed {
			return current, nil
		}
		s.log.Error().
			Str("appointment_id", id.String()).
			Str("intent_id", intent.ID).
			Str("status", string(current.Status)).
			Msg("payment captured for appointment that is no longer pending")
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidStatusTransition, current.Status)
	}

	s.metrics.Transition(string(StatusConfirmed))
	s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{
		"intent_id": intent.ID,
		"fee":       updated.Fee,
	})

	s.notifyPatient(ctx, updated, notify.KindConfirmation, map[string]string{
		"fee": strconv.FormatFloat(updated.Fee, 'f', 2, 64),
	})

	if updated.ConsultationType == ConsultationOnline {
		s.mu.RLock()
		f := s.followUps
		s.mu.RUnlock()
		if f != nil {
			// The daily sweep re-registers anything missed here.
			if err := f.ScheduleFollowUps(ctx, updated); err != nil {
				s.log.Error().Err(err).Str("appointment_id", id.String()).Msg("failed to schedule follow-ups")
			}
		}
	}

	return updated, nil
}

// Cancel cancels a pending or confirmed appointment and records the refund
// owed under the cancellation tiers.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Cancellation, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.Cancel", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()

	c, err := s.cancel(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("refund.tier", string(c.Tier)))
	return c, nil
}

func (s *Service) cancel(ctx context.Context, id uuid.UUID) (*Cancellation, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		appt, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		switch appt.Status {
		case StatusCancelled:
			return nil, ErrAlreadyCancelled
		case StatusCompleted:
			return nil, fmt.Errorf("%w: appointment is already completed", ErrCancellationWindowClosed)
		}

		now := s.now()
		refund, tier, err := RefundFor(now, appt)
		if err != nil {
			return nil, err
		}

		refunded := PaymentRefunded
		updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusChange{
			Status:        StatusCancelled,
			PaymentStatus: &refunded,
			RefundAmount:  &refund,
			At:            now,
		})
		if errors.Is(err, ErrStatusChanged) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cancel appointment: %w", err)
		}

		s.metrics.Transition(string(StatusCancelled))
		s.metrics.Cancellation(string(tier), refund)
		s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{
			"from":          string(appt.Status),
			"refund_amount": refund,
			"tier":          string(tier),
		})

		s.notifyPatient(ctx, updated, notify.KindCancellation, map[string]string{
			"refund_amount": strconv.FormatFloat(refund, 'f', 2, 64),
			"refund_url":    strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/appointments/" + id.String() + "/refund",
		})

		return &Cancellation{Appointment: updated, RefundAmount: refund, Tier: tier}, nil
	}

	return nil, fmt.Errorf("cancel appointment %s: %w", id, ErrStatusChanged)
}

// Complete marks a confirmed appointment as completed. Repeated calls are
// no-ops, and an appointment cancelled in the meantime is left untouched.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch appt.Status {
	case StatusCompleted:
		return appt, nil
	case StatusCancelled:
		s.log.Warn().Str("appointment_id", id.String()).Msg("completion skipped: appointment was cancelled")
		return appt, nil
	case StatusPending:
		return nil, fmt.Errorf("%w: appointment was never confirmed", ErrInvalidStatusTransition)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusConfirmed, StatusChange{
		Status: StatusCompleted,
		At:     s.now(),
	})
	if err != nil {
		if !errors.Is(err, ErrStatusChanged) {
			return nil, fmt.Errorf("complete appointment: %w", err)
		}
		current, lerr := s.load(ctx, id)
		if lerr != nil {
			return nil, lerr
		}
		if current.Status == StatusCompleted || current.Status == StatusCancelled {
			return current, nil
		}
		return nil, fmt.Errorf("complete appointment %s: %w", id, err)
	}

	s.metrics.Transition(string(StatusCompleted))
	s.logEvent(ctx, id, EventAppointmentCompleted, map[string]any{})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, id)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return p, nil
}

// ListByPatient retrieves appointments for a specific patient
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// Availability lists the open slots of a clinic's doctor on date.
func (s *Service) Availability(ctx context.Context, clinicID uuid.UUID, date string) ([]Slot, error) {
	day, err := ParseDay(date, s.Location())
	if err != nil {
		return nil, err
	}

	clinic, err := s.repo.GetClinicByID(ctx, clinicID)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	existing, err := s.repo.ListActiveForDoctorDay(ctx, clinic.DoctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load doctor schedule: %w", err)
	}

	return s.policy.OpenSlots(s.now(), *clinic, day, existing)
}

// FollowUpCandidates returns the confirmed, paid, online appointments of day.
func (s *Service) FollowUpCandidates(ctx context.Context, day time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListFollowUpCandidates(ctx, DayOf(day, s.Location()))
	if err != nil {
		return nil, fmt.Errorf("list follow-up candidates: %w", err)
	}
	return appts, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// notifyPatient is best-effort: delivery failures are logged, never returned.
func (s *Service) notifyPatient(ctx context.Context, a *Appointment, kind notify.Kind, extra map[string]string) {
	patient, err := s.repo.GetPatientByID(ctx, a.PatientID)
	if err != nil {
		s.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Str("kind", string(kind)).Msg("notification skipped: patient lookup failed")
		return
	}
	if patient.Email == nil || *patient.Email == "" {
		s.log.Warn().Str("appointment_id", a.ID.String()).Str("kind", string(kind)).Msg("notification skipped: patient has no email")
		return
	}

	payload := map[string]string{
		"appointment_id":    a.ID.String(),
		"appointment_date":  a.Day.Format(dateLayout),
		"start_time":        a.StartTime,
		"end_time":          a.EndTime,
		"consultation_type": string(a.ConsultationType),
	}
	for k, v := range extra {
		payload[k] = v
	}

	if err := s.notifier.Notify(ctx, notify.New(kind, *patient.Email, patient.Name, payload)); err != nil {
		s.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Str("kind", string(kind)).Msg("notification failed")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Str("appointment_id", appointmentID.String()).Msg("failed to insert event log")
	}
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotBeingBooked):
		return "busy"
	case errors.Is(err, ErrSlotConflict):
		return "conflict"
	case errors.Is(err, ErrValidation), errors.Is(err, clocktime.ErrInvalidTimeFormat),
		errors.Is(err, ErrOutsideBookingWindow), errors.Is(err, ErrLunchBlackout),
		errors.Is(err, ErrOutsideClinicHours), errors.Is(err, ErrInvalidSlotAlignment),
		errors.Is(err, ErrClinicNotFound), errors.Is(err, ErrPatientNotFound):
		return "rejected"
	default:
		return "error"
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
