package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
)

const referralColumns = `id, referrer_id, code, invitee_email, referred_patient_id, claimed_by_referrer, claimed_by_referred, created_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanReferral(row pgx.Row) (*Referral, error) {
	var r Referral

	err := row.Scan(
		&r.ID,
		&r.ReferrerID,
		&r.Code,
		&r.InviteeEmail,
		&r.ReferredPatientID,
		&r.ClaimedByReferrer,
		&r.ClaimedByReferred,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}

	return &r, nil
}

func (p *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*appointment.Patient, error) {
	var pt appointment.Patient
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&pt.ID, &pt.Name, &pt.Email, &pt.CreatedAt, &pt.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, appointment.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func (p *PgRepository) EmailRegistered(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE lower(email) = lower($1))`, email).Scan(&exists)
	return exists, err
}

func (p *PgRepository) Insert(ctx context.Context, r *Referral) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, code, invitee_email, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.ReferrerID, r.Code, r.InviteeEmail, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

func (p *PgRepository) GetByCode(ctx context.Context, code string) (*Referral, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+referralColumns+` FROM referrals WHERE code = $1`, code)
	return scanReferral(row)
}

func (p *PgRepository) AttachReferred(ctx context.Context, code string, patientID uuid.UUID) (*Referral, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE referrals
		SET referred_patient_id = $2
		WHERE code = $1
		  AND referred_patient_id IS NULL
		RETURNING `+referralColumns,
		code, patientID,
	)
	r, err := scanReferral(row)
	if errors.Is(err, ErrReferralNotFound) {
		return nil, ErrReferralUsed
	}
	return r, err
}
