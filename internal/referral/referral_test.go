package referral

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/notify"
)

func setup(t *testing.T) (*Service, *MemoryRepository, *notify.Recorder, appointment.Patient) {
	t.Helper()
	repo := NewMemoryRepository()
	email := "meera@example.com"
	referrer := appointment.Patient{ID: uuid.New(), Name: "Meera", Email: &email}
	repo.AddPatient(referrer)
	notes := &notify.Recorder{}
	return NewService(repo, notes, "http://localhost:8080/", zerolog.Nop()), repo, notes, referrer
}

func TestInvite_SendsCode(t *testing.T) {
	svc, _, notes, referrer := setup(t)

	ref, err := svc.Invite(context.Background(), referrer.ID, " Ravi@Example.com ")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if ref.InviteeEmail != "ravi@example.com" || len(ref.Code) != 10 {
		t.Fatalf("referral = %+v", ref)
	}

	sent := notes.OfKind(notify.KindReferralInvite)
	if len(sent) != 1 {
		t.Fatalf("invites = %d, want 1", len(sent))
	}
	if sent[0].Recipient != "ravi@example.com" || sent[0].Payload["referrer_name"] != "Meera" {
		t.Fatalf("invite = %+v", sent[0])
	}
	if !strings.HasSuffix(sent[0].Payload["signup_url"], "/signup?ref="+ref.Code) ||
		strings.Contains(sent[0].Payload["signup_url"], "8080//") {
		t.Fatalf("signup url = %s", sent[0].Payload["signup_url"])
	}
}

func TestInvite_Rejections(t *testing.T) {
	svc, _, _, referrer := setup(t)
	ctx := context.Background()

	if _, err := svc.Invite(ctx, referrer.ID, "MEERA@example.com"); !errors.Is(err, appointment.ErrValidation) {
		t.Fatalf("existing email err = %v, want ErrValidation", err)
	}
	if _, err := svc.Invite(ctx, referrer.ID, "not-an-email"); !errors.Is(err, appointment.ErrValidation) {
		t.Fatalf("bad email err = %v, want ErrValidation", err)
	}
	if _, err := svc.Invite(ctx, uuid.New(), "ravi@example.com"); !errors.Is(err, appointment.ErrPatientNotFound) {
		t.Fatalf("unknown referrer err = %v, want ErrPatientNotFound", err)
	}
}

func TestInvite_NotificationFailureStillCreatesReferral(t *testing.T) {
	svc, repo, notes, referrer := setup(t)
	notes.Err = errors.New("broker down")

	ref, err := svc.Invite(context.Background(), referrer.ID, "ravi@example.com")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := repo.GetByCode(context.Background(), ref.Code); err != nil {
		t.Fatalf("referral not stored: %v", err)
	}
}

func TestAttach(t *testing.T) {
	svc, repo, _, referrer := setup(t)
	ctx := context.Background()

	ref, err := svc.Invite(ctx, referrer.ID, "ravi@example.com")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	email := "ravi@example.com"
	invitee := appointment.Patient{ID: uuid.New(), Name: "Ravi", Email: &email}
	repo.AddPatient(invitee)

	if _, err := svc.Attach(ctx, ref.Code, referrer.ID); !errors.Is(err, appointment.ErrValidation) {
		t.Fatalf("self referral err = %v", err)
	}

	got, err := svc.Attach(ctx, strings.ToLower(ref.Code), invitee.ID)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got.ReferredPatientID == nil || *got.ReferredPatientID != invitee.ID {
		t.Fatalf("referred = %v", got.ReferredPatientID)
	}

	other := appointment.Patient{ID: uuid.New(), Name: "Kiran"}
	repo.AddPatient(other)
	if _, err := svc.Attach(ctx, ref.Code, other.ID); !errors.Is(err, ErrReferralUsed) {
		t.Fatalf("reuse err = %v, want ErrReferralUsed", err)
	}
	if _, err := svc.Attach(ctx, "NOPE", other.ID); !errors.Is(err, ErrReferralNotFound) {
		t.Fatalf("unknown code err = %v, want ErrReferralNotFound", err)
	}
}
