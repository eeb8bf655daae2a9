// Package reminder plans and executes the deferred follow-ups of online
// appointments: the day-of reminder, the meeting link ten minutes before the
// start and the automatic completion once the slot has ended.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/clocktime"
	"github.com/hackgods/consultation-scheduling/internal/jobs"
)

const (
	MeetingLinkLead = 10 * time.Minute
	SlotLength      = 30 * time.Minute
)

const dateLayout = "2006-01-02"

type appointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
}

type sweepPayload struct {
	Day string `json:"day"`
}

// Planner turns appointments into scheduled jobs. Keys are derived from the
// appointment id, so planning the same appointment twice is harmless.
type Planner struct {
	jobs      jobs.Enqueuer
	loc       *time.Location
	triggerAt int // minute of day of the daily sweep
	now       func() time.Time
	log       zerolog.Logger
}

// NewPlanner parses dailyTriggerAt ("6:00 AM") in the clinic location.
func NewPlanner(enq jobs.Enqueuer, loc *time.Location, dailyTriggerAt string, now func() time.Time, log zerolog.Logger) (*Planner, error) {
	trigger, err := clocktime.To24h(dailyTriggerAt)
	if err != nil {
		return nil, fmt.Errorf("daily trigger time: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Planner{
		jobs:      enq,
		loc:       loc,
		triggerAt: trigger,
		now:       now,
		log:       log.With().Str("component", "reminder").Logger(),
	}, nil
}

// ScheduleFollowUps registers the reminder, meeting link and completion jobs
// of a confirmed online appointment. The reminder fires at the daily trigger
// time on the appointment day, or immediately when that time has passed.
func (p *Planner) ScheduleFollowUps(ctx context.Context, a *appointment.Appointment) error {
	if a.ConsultationType != appointment.ConsultationOnline {
		return nil
	}

	reminderAt := p.triggerTime(a.Day)
	if now := p.now(); reminderAt.Before(now) {
		reminderAt = now
	}
	return p.schedule(ctx, a, reminderAt)
}

func (p *Planner) schedule(ctx context.Context, a *appointment.Appointment, reminderAt time.Time) error {
	start := a.StartsAt()
	payload := appointmentPayload{AppointmentID: a.ID.String()}
	subject := a.ID.String()

	plan := []struct {
		kind jobs.Kind
		at   time.Time
	}{
		{jobs.KindSendReminder, reminderAt},
		{jobs.KindSendMeetingLink, start.Add(-MeetingLinkLead)},
		{jobs.KindMarkCompleted, start.Add(SlotLength)},
	}

	var errs []error
	for _, step := range plan {
		job, err := jobs.NewJob(step.kind, subject, step.at, payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		created, err := p.jobs.Enqueue(ctx, job)
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", job.Key, err))
			continue
		}
		if created {
			p.log.Debug().Str("key", job.Key).Time("fire_at", step.at).Msg("follow-up scheduled")
		}
	}
	return errors.Join(errs...)
}

// ScheduleSweep registers the daily sweep of day at the trigger time.
func (p *Planner) ScheduleSweep(ctx context.Context, day time.Time) (bool, error) {
	day = appointment.DayOf(day, p.loc)
	job, err := jobs.NewJob(jobs.KindDailySweep, day.Format(dateLayout), p.triggerTime(day), sweepPayload{Day: day.Format(dateLayout)})
	if err != nil {
		return false, err
	}
	return p.jobs.Enqueue(ctx, job)
}

// SeedNextSweep makes sure the next daily sweep exists: today's when its
// trigger time is still ahead, tomorrow's otherwise.
func (p *Planner) SeedNextSweep(ctx context.Context) error {
	now := p.now()
	day := appointment.DayOf(now, p.loc)
	if !p.triggerTime(day).After(now) {
		day = day.AddDate(0, 0, 1)
	}
	created, err := p.ScheduleSweep(ctx, day)
	if err != nil {
		return fmt.Errorf("seed daily sweep: %w", err)
	}
	if created {
		p.log.Info().Str("day", day.Format(dateLayout)).Msg("daily sweep seeded")
	}
	return nil
}

func (p *Planner) triggerTime(day time.Time) time.Time {
	y, m, d := day.In(p.loc).Date()
	return time.Date(y, m, d, p.triggerAt/60, p.triggerAt%60, 0, 0, p.loc)
}
