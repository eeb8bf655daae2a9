package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrStatusChanged is returned by compare-and-set updates when the stored
	// status no longer matches the expected one.
	ErrStatusChanged = errors.New("appointment status changed concurrently")

	// ErrNoReferral means the patient has no unclaimed referral discount.
	ErrNoReferral = errors.New("no unclaimed referral")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks
	ListActiveForDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error)

	// InsertAppointment fails with ErrSlotConflict when another live booking
	// holds the same doctor, day and start.
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from AppointmentStatus, change StatusChange) (*Appointment, error)
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) (*Appointment, error)

	// ApplyReferralDiscount reduces the fee by rate and claims one referral
	// side in a single transaction. The referred side is preferred.
	ApplyReferralDiscount(ctx context.Context, id, patientID uuid.UUID, rate float64, at time.Time) (*Appointment, ReferralRole, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Daily sweep
	ListFollowUpCandidates(ctx context.Context, day time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
