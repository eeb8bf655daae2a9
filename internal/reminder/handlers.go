package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/jobs"
	"github.com/hackgods/consultation-scheduling/internal/notify"
)

// Lifecycle is the part of the appointment service the job handlers use.
type Lifecycle interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*appointment.Patient, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	FollowUpCandidates(ctx context.Context, day time.Time) ([]appointment.Appointment, error)
}

type Handlers struct {
	appointments   Lifecycle
	planner        *Planner
	notifier       notify.Notifier
	meetingBaseURL string
	log            zerolog.Logger
}

func NewHandlers(appointments Lifecycle, planner *Planner, notifier notify.Notifier, meetingBaseURL string, log zerolog.Logger) *Handlers {
	return &Handlers{
		appointments:   appointments,
		planner:        planner,
		notifier:       notifier,
		meetingBaseURL: meetingBaseURL,
		log:            log.With().Str("component", "reminder").Logger(),
	}
}

// Register binds every follow-up kind to s.
func (h *Handlers) Register(s *jobs.Scheduler) {
	s.Handle(jobs.KindSendReminder, h.SendReminder)
	s.Handle(jobs.KindSendMeetingLink, h.SendMeetingLink)
	s.Handle(jobs.KindMarkCompleted, h.MarkCompleted)
	s.Handle(jobs.KindDailySweep, h.DailySweep)
}

// MeetingURL is the video room of an appointment.
func MeetingURL(base string, id uuid.UUID) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "appointment_" + id.String()
}

func (h *Handlers) SendReminder(ctx context.Context, job jobs.Job) error {
	appt, ok, err := h.liveAppointment(ctx, job)
	if err != nil || !ok {
		return err
	}
	return h.send(ctx, appt, notify.KindReminder, nil)
}

func (h *Handlers) SendMeetingLink(ctx context.Context, job jobs.Job) error {
	appt, ok, err := h.liveAppointment(ctx, job)
	if err != nil || !ok {
		return err
	}
	return h.send(ctx, appt, notify.KindMeetingLink, map[string]string{
		"meeting_url": MeetingURL(h.meetingBaseURL, appt.ID),
	})
}

func (h *Handlers) MarkCompleted(ctx context.Context, job jobs.Job) error {
	id, err := appointmentID(job)
	if err != nil {
		return err
	}

	appt, err := h.appointments.Complete(ctx, id)
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, appointment.ErrInvalidStatusTransition):
		return jobs.Permanent(err)
	case err != nil:
		return err
	}

	h.log.Info().Str("appointment_id", id.String()).Str("status", string(appt.Status)).Msg("completion job processed")
	return nil
}

// DailySweep re-registers the follow-ups of every paid online appointment of
// the day, sends their reminders now and plans the next day's sweep.
func (h *Handlers) DailySweep(ctx context.Context, job jobs.Job) error {
	var p sweepPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	day, err := time.ParseInLocation(dateLayout, p.Day, h.planner.loc)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("sweep day %q: %w", p.Day, err))
	}

	candidates, err := h.appointments.FollowUpCandidates(ctx, day)
	if err != nil {
		return err
	}

	now := h.planner.now()
	var errs []error
	for i := range candidates {
		if err := h.planner.schedule(ctx, &candidates[i], now); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := h.planner.ScheduleSweep(ctx, day.AddDate(0, 0, 1)); err != nil {
		errs = append(errs, fmt.Errorf("schedule next sweep: %w", err))
	}

	h.log.Info().Str("day", p.Day).Int("appointments", len(candidates)).Msg("daily sweep done")
	return errors.Join(errs...)
}

// liveAppointment loads the job's appointment and reports whether it still
// needs the follow-up.
func (h *Handlers) liveAppointment(ctx context.Context, job jobs.Job) (*appointment.Appointment, bool, error) {
	id, err := appointmentID(job)
	if err != nil {
		return nil, false, err
	}

	appt, err := h.appointments.Get(ctx, id)
	if errors.Is(err, appointment.ErrAppointmentNotFound) {
		return nil, false, jobs.Permanent(err)
	}
	if err != nil {
		return nil, false, err
	}

	if !appt.NeedsFollowUp() {
		h.log.Info().
			Str("key", job.Key).
			Str("status", string(appt.Status)).
			Str("payment_status", string(appt.PaymentStatus)).
			Msg("follow-up skipped")
		return nil, false, nil
	}
	return appt, true, nil
}

func (h *Handlers) send(ctx context.Context, appt *appointment.Appointment, kind notify.Kind, extra map[string]string) error {
	patient, err := h.appointments.GetPatient(ctx, appt.PatientID)
	if errors.Is(err, appointment.ErrPatientNotFound) {
		return jobs.Permanent(err)
	}
	if err != nil {
		return err
	}
	if patient.Email == nil || *patient.Email == "" {
		h.log.Warn().Str("appointment_id", appt.ID.String()).Str("kind", string(kind)).Msg("notification skipped: patient has no email")
		return nil
	}

	payload := map[string]string{
		"appointment_id":   appt.ID.String(),
		"appointment_date": appt.Day.Format(dateLayout),
		"start_time":       appt.StartTime,
		"end_time":         appt.EndTime,
	}
	for k, v := range extra {
		payload[k] = v
	}

	return h.notifier.Notify(ctx, notify.New(kind, *patient.Email, patient.Name, payload))
}

func appointmentID(job jobs.Job) (uuid.UUID, error) {
	var p appointmentPayload
	if err := job.Decode(&p); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(p.AppointmentID)
	if err != nil {
		return uuid.Nil, jobs.Permanent(fmt.Errorf("appointment id %q: %w", p.AppointmentID, err))
	}
	return id, nil
}
