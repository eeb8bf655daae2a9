// Package referral lets a patient invite someone by email. Once the invitee
// registers with the code, both sides hold a one-time consultation discount
// that the appointment service claims at payment time.
package referral

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/notify"
)

var (
	ErrReferralNotFound = errors.New("referral not found")
	ErrReferralUsed     = errors.New("referral code has already been used")
)

type Referral struct {
	ID                uuid.UUID
	ReferrerID        uuid.UUID
	Code              string
	InviteeEmail      string
	ReferredPatientID *uuid.UUID
	ClaimedByReferrer bool
	ClaimedByReferred bool
	CreatedAt         time.Time
}

type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*appointment.Patient, error)
	EmailRegistered(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, r *Referral) error
	GetByCode(ctx context.Context, code string) (*Referral, error)
	// AttachReferred sets the referred patient when the code is still unused.
	AttachReferred(ctx context.Context, code string, patientID uuid.UUID) (*Referral, error)
}

type Service struct {
	repo          Repository
	notifier      notify.Notifier
	publicBaseURL string
	log           zerolog.Logger
	now           func() time.Time
}

func NewService(repo Repository, notifier notify.Notifier, publicBaseURL string, log zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		notifier:      notifier,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log.With().Str("component", "referral").Logger(),
		now:           time.Now,
	}
}

// Invite creates a referral code for email and sends the invitation.
func (s *Service) Invite(ctx context.Context, referrerID uuid.UUID, email string) (*Referral, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if referrerID == uuid.Nil || email == "" {
		return nil, fmt.Errorf("%w: referrer and email are required", appointment.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", appointment.ErrValidation, email)
	}

	referrer, err := s.repo.GetPatientByID(ctx, referrerID)
	if err != nil {
		if errors.Is(err, appointment.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load referrer: %w", err)
	}

	registered, err := s.repo.EmailRegistered(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if registered {
		return nil, fmt.Errorf("%w: a patient with this email already exists", appointment.ErrValidation)
	}

	ref := &Referral{
		ID:           uuid.New(),
		ReferrerID:   referrerID,
		Code:         newCode(),
		InviteeEmail: email,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Insert(ctx, ref); err != nil {
		return nil, fmt.Errorf("insert referral: %w", err)
	}

	n := notify.New(notify.KindReferralInvite, email, "", map[string]string{
		"referrer_name": referrer.Name,
		"code":          ref.Code,
		"signup_url":    s.publicBaseURL + "/signup?ref=" + ref.Code,
	})
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("referral_id", ref.ID.String()).Msg("referral invite not delivered")
	}

	s.log.Info().Str("referral_id", ref.ID.String()).Str("referrer_id", referrerID.String()).Msg("referral created")
	return ref, nil
}

// Attach records that patientID registered with code.
func (s *Service) Attach(ctx context.Context, code string, patientID uuid.UUID) (*Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: code and patient are required", appointment.ErrValidation)
	}

	ref, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if ref.ReferrerID == patientID {
		return nil, fmt.Errorf("%w: patients cannot refer themselves", appointment.ErrValidation)
	}
	if ref.ReferredPatientID != nil {
		return nil, ErrReferralUsed
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, appointment.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	return s.repo.AttachReferred(ctx, code, patientID)
}

func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
