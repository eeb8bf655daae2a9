package referral

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
)

// MemoryRepository is a Repository held in process memory.
type MemoryRepository struct {
	mu        sync.Mutex
	patients  map[uuid.UUID]appointment.Patient
	referrals map[string]*Referral // by code
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:  make(map[uuid.UUID]appointment.Patient),
		referrals: make(map[string]*Referral),
	}
}

func (m *MemoryRepository) AddPatient(p appointment.Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, appointment.ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) EmailRegistered(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.Email != nil && strings.EqualFold(*p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) Insert(_ context.Context, r *Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.referrals[r.Code] = &cp
	return nil
}

func (m *MemoryRepository) GetByCode(_ context.Context, code string) (*Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.referrals[code]
	if !ok {
		return nil, ErrReferralNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) AttachReferred(_ context.Context, code string, patientID uuid.UUID) (*Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.referrals[code]
	if !ok {
		return nil, ErrReferralNotFound
	}
	if r.ReferredPatientID != nil {
		return nil, ErrReferralUsed
	}
	id := patientID
	r.ReferredPatientID = &id
	cp := *r
	return &cp, nil
}
