package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/consultation-scheduling/internal/db"
)

const activeSlotIndex = "appointments_active_slot_uniq"

const appointmentColumns = `
	id, doctor_id, clinic_id, patient_id, appointment_date,
	start_minutes, end_minutes, start_time, end_time, consultation_type,
	fee::float8, discount_applied, status, payment_status,
	payment_intent_id, payment_method_id, refund_amount::float8,
	cancelled_at, completed_at, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPgRepository reads appointment dates as calendar days in loc.
func NewPgRepository(pool *pgxpool.Pool, loc *time.Location) *PgRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PgRepository{pool: pool, loc: loc}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic

	err := row.Scan(
		&c.ID,
		&c.DoctorID,
		&c.Name,
		&c.OpeningTime,
		&c.ClosingTime,
		&c.ConsultationFee,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}

	return &c, nil
}

func (r *PgRepository) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var day time.Time

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.ClinicID,
		&a.PatientID,
		&day,
		&a.StartMinutes,
		&a.EndMinutes,
		&a.StartTime,
		&a.EndTime,
		&a.ConsultationType,
		&a.Fee,
		&a.DiscountApplied,
		&a.Status,
		&a.PaymentStatus,
		&a.PaymentIntentID,
		&a.PaymentMethodID,
		&a.RefundAmount,
		&a.CancelledAt,
		&a.CompletedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Day = dateIn(day, r.loc)
	return &a, nil
}

func (r *PgRepository) collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, name, opening_time, closing_time, consultation_fee::float8, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return r.scanAppointment(row)
}

func (r *PgRepository) ListActiveForDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2::date
		  AND status <> 'cancelled'
		ORDER BY start_minutes
	`, doctorID, day.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, doctor_id, clinic_id, patient_id, appointment_date,
			start_minutes, end_minutes, start_time, end_time, consultation_type,
			fee, discount_applied, status, payment_status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`,
		a.ID, a.DoctorID, a.ClinicID, a.PatientID, a.Day.Format(dateLayout),
		a.StartMinutes, a.EndMinutes, a.StartTime, a.EndTime, a.ConsultationType,
		a.Fee, a.DiscountApplied, a.Status, a.PaymentStatus, a.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotIndex) {
			return fmt.Errorf("%w: %s is already booked", ErrSlotConflict, a.StartTime)
		}
		return err
	}
	return nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from AppointmentStatus, change StatusChange) (*Appointment, error) {
	var cancelledAt, completedAt *time.Time
	switch change.Status {
	case StatusCancelled:
		cancelledAt = &change.At
	case StatusCompleted:
		completedAt = &change.At
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    payment_status = COALESCE($4, payment_status),
		    payment_method_id = COALESCE($5, payment_method_id),
		    refund_amount = COALESCE($6, refund_amount),
		    cancelled_at = COALESCE($7, cancelled_at),
		    completed_at = COALESCE($8, completed_at),
		    updated_at = $9
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns,
		id, from, change.Status, change.PaymentStatus, change.PaymentMethodID,
		change.RefundAmount, cancelledAt, completedAt, change.At,
	)

	a, err := r.scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, r.missOrChanged(ctx, id)
	}
	return a, err
}

func (r *PgRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET payment_intent_id = $2,
		    payment_status = 'pending',
		    updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		  AND payment_status <> 'successful'
		RETURNING `+appointmentColumns,
		id, intentID, at,
	)

	a, err := r.scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, r.missOrChanged(ctx, id)
	}
	return a, err
}

func (r *PgRepository) ApplyReferralDiscount(ctx context.Context, id, patientID uuid.UUID, rate float64, at time.Time) (*Appointment, ReferralRole, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var referralID uuid.UUID
	role := RoleReferred

	err = tx.QueryRow(ctx, `
		SELECT id
		FROM referrals
		WHERE referred_patient_id = $1
		  AND NOT claimed_by_referred
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, patientID).Scan(&referralID)
	if errors.Is(err, pgx.ErrNoRows) {
		role = RoleReferrer
		err = tx.QueryRow(ctx, `
			SELECT id
			FROM referrals
			WHERE referrer_id = $1
			  AND referred_patient_id IS NOT NULL
			  AND NOT claimed_by_referrer
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, patientID).Scan(&referralID)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNoReferral
	}
	if err != nil {
		return nil, "", fmt.Errorf("find referral: %w", err)
	}

	claim := `UPDATE referrals SET claimed_by_referred = true WHERE id = $1`
	if role == RoleReferrer {
		claim = `UPDATE referrals SET claimed_by_referrer = true WHERE id = $1`
	}
	if _, err := tx.Exec(ctx, claim, referralID); err != nil {
		return nil, "", fmt.Errorf("claim referral: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET fee = round(fee * (1 - $2::numeric), 2),
		    discount_applied = true,
		    updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		  AND NOT discount_applied
		RETURNING `+appointmentColumns,
		id, rate, at,
	)
	a, err := r.scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, "", ErrStatusChanged
	}
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit tx: %w", err)
	}
	return a, role, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, start_minutes DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *PgRepository) ListFollowUpCandidates(ctx context.Context, day time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date = $1::date
		  AND status = 'confirmed'
		  AND payment_status = 'successful'
		  AND consultation_type = 'online'
		ORDER BY start_minutes
	`, day.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// missOrChanged distinguishes a missing row from a failed status guard.
func (r *PgRepository) missOrChanged(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrAppointmentNotFound
	}
	return ErrStatusChanged
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
