package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentSuccessful PaymentStatus = "successful"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type ConsultationType string

const (
	ConsultationOnline  ConsultationType = "online"
	ConsultationOffline ConsultationType = "offline"
)

func (t ConsultationType) IsValid() bool {
	return t == ConsultationOnline || t == ConsultationOffline
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clinic is owned by the clinic directory; the engine only reads the fields
// the booking policy needs.
type Clinic struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	Name            string
	OpeningTime     string
	ClosingTime     string
	ConsultationFee float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	ClinicID         uuid.UUID
	PatientID        uuid.UUID
	Day              time.Time // 00:00 of the appointment date in the clinic location
	StartMinutes     int
	EndMinutes       int
	StartTime        string
	EndTime          string
	ConsultationType ConsultationType
	Fee              float64
	DiscountApplied  bool
	Status           AppointmentStatus
	PaymentStatus    PaymentStatus
	PaymentIntentID  *string
	PaymentMethodID  *string
	RefundAmount     *float64
	CancelledAt      *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewAppointment builds a pending booking for slot with the clinic fee
// snapshotted at booking time.
func NewAppointment(clinic Clinic, patientID uuid.UUID, slot Slot, ctype ConsultationType, now time.Time) *Appointment {
	return &Appointment{
		ID:               uuid.New(),
		DoctorID:         clinic.DoctorID,
		ClinicID:         clinic.ID,
		PatientID:        patientID,
		Day:              slot.Day,
		StartMinutes:     slot.StartMinutes,
		EndMinutes:       slot.EndMinutes,
		StartTime:        slot.StartTime,
		EndTime:          slot.EndTime,
		ConsultationType: ctype,
		Fee:              clinic.ConsultationFee,
		Status:           StatusPending,
		PaymentStatus:    PaymentPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// StartsAt is the wall-clock start of the appointment.
func (a *Appointment) StartsAt() time.Time {
	return atMinute(a.Day, a.StartMinutes)
}

func (a *Appointment) EndsAt() time.Time {
	return atMinute(a.Day, a.EndMinutes)
}

// State transitions:
//
//	pending → confirmed → completed
//	pending → cancelled
//	confirmed → cancelled
func (a *Appointment) CanTransitionTo(next AppointmentStatus) bool {
	allowed := map[AppointmentStatus][]AppointmentStatus{
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
		StatusCompleted: {},
		StatusCancelled: {},
	}

	for _, s := range allowed[a.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// NeedsFollowUp reports whether the deferred reminder, meeting link and
// completion jobs apply to this appointment.
func (a *Appointment) NeedsFollowUp() bool {
	return a.Status == StatusConfirmed &&
		a.PaymentStatus == PaymentSuccessful &&
		a.ConsultationType == ConsultationOnline
}

// StatusChange is applied by Repository.UpdateStatus only when the stored
// status still equals the expected one.
type StatusChange struct {
	Status          AppointmentStatus
	PaymentStatus   *PaymentStatus
	PaymentMethodID *string
	RefundAmount    *float64
	At              time.Time
}

type ReferralRole string

const (
	RoleReferred ReferralRole = "referred"
	RoleReferrer ReferralRole = "referrer"
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

const dateLayout = "2006-01-02"

// ParseDay reads a calendar date ("2006-01-02" or an RFC 3339 timestamp) and
// returns midnight of that date in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DayOf(t, loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: appointment date %q must be YYYY-MM-DD", ErrValidation, s)
}

// DayOf returns midnight, in loc, of the calendar day containing instant t.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// dateIn reinterprets the calendar fields of t (as scanned from a DATE column)
// as a date in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func atMinute(day time.Time, minutes int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, day.Location())
}

func addDays(day time.Time, n int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, day.Location())
}
