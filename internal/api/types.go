package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/referral"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// Envelope wraps every response body.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type BookAppointmentRequest struct {
	PatientID        string `json:"patient_id"`
	AppointmentDate  string `json:"appointment_date"`
	StartTime        string `json:"start_time"`
	ConsultationType string `json:"consultation_type"`
}

type ConfirmPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

type InviteRequest struct {
	ReferrerID string `json:"referrer_id"`
	Email      string `json:"email"`
}

type AttachReferralRequest struct {
	Code      string `json:"code"`
	PatientID string `json:"patient_id"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	ClinicID         uuid.UUID  `json:"clinic_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	AppointmentDate  string     `json:"appointment_date"`
	StartTime        string     `json:"start_time"`
	EndTime          string     `json:"end_time"`
	ConsultationType string     `json:"consultation_type"`
	Fee              float64    `json:"fee"`
	DiscountApplied  bool       `json:"discount_applied"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentIntentID  *string    `json:"payment_intent_id,omitempty"`
	RefundAmount     *float64   `json:"refund_amount,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		DoctorID:         a.DoctorID,
		ClinicID:         a.ClinicID,
		PatientID:        a.PatientID,
		AppointmentDate:  a.Day.Format("2006-01-02"),
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		ConsultationType: string(a.ConsultationType),
		Fee:              a.Fee,
		DiscountApplied:  a.DiscountApplied,
		Status:           string(a.Status),
		PaymentStatus:    string(a.PaymentStatus),
		PaymentIntentID:  a.PaymentIntentID,
		RefundAmount:     a.RefundAmount,
		CancelledAt:      a.CancelledAt,
		CompletedAt:      a.CompletedAt,
		CreatedAt:        a.CreatedAt,
	}
}

type CancellationResponse struct {
	Appointment  AppointmentResponse `json:"appointment"`
	RefundAmount float64             `json:"refund_amount"`
	RefundTier   string              `json:"refund_tier"`
}

type SlotResponse struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type AvailabilityResponse struct {
	ClinicID uuid.UUID      `json:"clinic_id"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

type ReferralResponse struct {
	ID                uuid.UUID  `json:"id"`
	ReferrerID        uuid.UUID  `json:"referrer_id"`
	Code              string     `json:"code"`
	InviteeEmail      string     `json:"invitee_email"`
	ReferredPatientID *uuid.UUID `json:"referred_patient_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toReferralResponse(r *referral.Referral) ReferralResponse {
	return ReferralResponse{
		ID:                r.ID,
		ReferrerID:        r.ReferrerID,
		Code:              r.Code,
		InviteeEmail:      r.InviteeEmail,
		ReferredPatientID: r.ReferredPatientID,
		CreatedAt:         r.CreatedAt,
	}
}
