package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryReferral struct {
	referrerID        uuid.UUID
	referredID        uuid.UUID
	claimedByReferrer bool
	claimedByReferred bool
}

// MemoryRepository is a Repository held in process memory. It enforces the
// same live-slot uniqueness as the Postgres index.
type MemoryRepository struct {
	mu           sync.Mutex
	clinics      map[uuid.UUID]Clinic
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	referrals    []*memoryReferral
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clinics:      make(map[uuid.UUID]Clinic),
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *MemoryRepository) AddClinic(c Clinic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clinics[c.ID] = c
}

func (m *MemoryRepository) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

// AddReferral records that referrer invited referred, with both discounts
// still unclaimed.
func (m *MemoryRepository) AddReferral(referrerID, referredID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.referrals = append(m.referrals, &memoryReferral{referrerID: referrerID, referredID: referredID})
}

func (m *MemoryRepository) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EventLog(nil), m.events...)
}

// Appointments returns a snapshot of every stored appointment.
func (m *MemoryRepository) Appointments() []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Appointment, 0, len(m.appointments))
	for _, a := range m.appointments {
		out = append(out, a)
	}
	sortAppointments(out)
	return out
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) GetClinicByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) ListActiveForDoctorDay(_ context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && sameDate(a.Day, day) && a.Status != StatusCancelled {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (m *MemoryRepository) InsertAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appointments {
		if existing.Status != StatusCancelled &&
			existing.DoctorID == a.DoctorID &&
			sameDate(existing.Day, a.Day) &&
			existing.StartMinutes == a.StartMinutes {
			return fmt.Errorf("%w: %s is already booked", ErrSlotConflict, a.StartTime)
		}
	}
	m.appointments[a.ID] = *a
	return nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from AppointmentStatus, change StatusChange) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}

	a.Status = change.Status
	if change.PaymentStatus != nil {
		a.PaymentStatus = *change.PaymentStatus
	}
	if change.PaymentMethodID != nil {
		method := *change.PaymentMethodID
		a.PaymentMethodID = &method
	}
	if change.RefundAmount != nil {
		refund := *change.RefundAmount
		a.RefundAmount = &refund
	}
	at := change.At
	switch change.Status {
	case StatusCancelled:
		a.CancelledAt = &at
	case StatusCompleted:
		a.CompletedAt = &at
	}
	a.UpdatedAt = at

	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) SetPaymentIntent(_ context.Context, id uuid.UUID, intentID string, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusPending || a.PaymentStatus == PaymentSuccessful {
		return nil, ErrStatusChanged
	}
	a.PaymentIntentID = &intentID
	a.PaymentStatus = PaymentPending
	a.UpdatedAt = at
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) ApplyReferralDiscount(_ context.Context, id, patientID uuid.UUID, rate float64, at time.Time) (*Appointment, ReferralRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, "", ErrAppointmentNotFound
	}
	if a.Status != StatusPending || a.DiscountApplied {
		return nil, "", ErrStatusChanged
	}

	var ref *memoryReferral
	role := RoleReferred
	for _, r := range m.referrals {
		if r.referredID == patientID && !r.claimedByReferred {
			ref = r
			break
		}
	}
	if ref == nil {
		role = RoleReferrer
		for _, r := range m.referrals {
			if r.referrerID == patientID && r.referredID != uuid.Nil && !r.claimedByReferrer {
				ref = r
				break
			}
		}
	}
	if ref == nil {
		return nil, "", ErrNoReferral
	}

	if role == RoleReferred {
		ref.claimedByReferred = true
	} else {
		ref.claimedByReferrer = true
	}
	a.Fee = roundMoney(a.Fee * (1 - rate))
	a.DiscountApplied = true
	a.UpdatedAt = at
	m.appointments[id] = a
	return &a, role, nil
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.After(out[j].Day)
		}
		return out[i].StartMinutes > out[j].StartMinutes
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListFollowUpCandidates(_ context.Context, day time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if sameDate(a.Day, day) && a.NeedsFollowUp() {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].Day.Equal(appts[j].Day) {
			return appts[i].Day.Before(appts[j].Day)
		}
		return appts[i].StartMinutes < appts[j].StartMinutes
	})
}
