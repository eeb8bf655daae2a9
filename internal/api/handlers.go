package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/clocktime"
	"github.com/hackgods/consultation-scheduling/internal/referral"
)

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*appointment.Cancellation, error)
	InitiatePayment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, methodID string) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	Availability(ctx context.Context, clinicID uuid.UUID, date string) ([]appointment.Slot, error)
}

type ReferralService interface {
	Invite(ctx context.Context, referrerID uuid.UUID, email string) (*referral.Referral, error)
	Attach(ctx context.Context, code string, patientID uuid.UUID) (*referral.Referral, error)
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := uuidParam(w, r, "clinicId")
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			ClinicID:         clinicID,
			PatientID:        patientID,
			Date:             req.AppointmentDate,
			StartTime:        req.StartTime,
			ConsultationType: req.ConsultationType,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeSuccess(w, http.StatusCreated, "appointment booked", toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		c, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeSuccess(w, http.StatusOK, "appointment cancelled", CancellationResponse{
			Appointment:  toAppointmentResponse(c.Appointment),
			RefundAmount: c.RefundAmount,
			RefundTier:   string(c.Tier),
		})
	}
}

func initiatePaymentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.InitiatePayment(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeSuccess(w, http.StatusOK, "payment initiated", toAppointmentResponse(appt))
	}
}

func confirmPaymentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req ConfirmPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		appt, err := svc.ConfirmPayment(r.Context(), id, req.PaymentMethodID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeSuccess(w, http.StatusOK, "appointment confirmed", toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeSuccess(w, http.StatusOK, "", toAppointmentResponse(appt))
	}
}

func listPatientAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := uuidParam(w, r, "patientId")
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeSuccess(w, http.StatusOK, "", resp)
	}
}

func availabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := uuidParam(w, r, "clinicId")
		if !ok {
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "date query parameter is required")
			return
		}

		slots, err := svc.Availability(r.Context(), clinicID, date)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := AvailabilityResponse{ClinicID: clinicID, Date: date, Slots: make([]SlotResponse, 0, len(slots))}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{StartTime: s.StartTime, EndTime: s.EndTime})
		}
		writeSuccess(w, http.StatusOK, "", resp)
	}
}

func inviteHandler(svc ReferralService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InviteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		referrerID, err := uuid.Parse(req.ReferrerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "referrer_id must be a valid UUID")
			return
		}

		ref, err := svc.Invite(r.Context(), referrerID, req.Email)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeSuccess(w, http.StatusCreated, "referral invitation sent", toReferralResponse(ref))
	}
}

func attachReferralHandler(svc ReferralService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AttachReferralRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "patient_id must be a valid UUID")
			return
		}

		ref, err := svc.Attach(r.Context(), req.Code, patientID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeSuccess(w, http.StatusOK, "referral applied", toReferralResponse(ref))
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// handleError maps domain errors to HTTP statuses. Anything unrecognised is
// logged and reported without internal detail.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrClinicNotFound),
		errors.Is(err, appointment.ErrPatientNotFound),
		errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, referral.ErrReferralNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, appointment.ErrValidation),
		errors.Is(err, clocktime.ErrInvalidTimeFormat),
		errors.Is(err, appointment.ErrOutsideBookingWindow),
		errors.Is(err, appointment.ErrOutsideClinicHours),
		errors.Is(err, appointment.ErrLunchBlackout),
		errors.Is(err, appointment.ErrInvalidSlotAlignment),
		errors.Is(err, appointment.ErrSlotConflict),
		errors.Is(err, appointment.ErrAlreadyCancelled),
		errors.Is(err, appointment.ErrCancellationWindowClosed),
		errors.Is(err, appointment.ErrPaymentNotSuccessful),
		errors.Is(err, appointment.ErrInvalidStatusTransition),
		errors.Is(err, referral.ErrReferralUsed):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
