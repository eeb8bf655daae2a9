package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/clocktime"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/notify"
	"github.com/hackgods/consultation-scheduling/internal/payment"
	redisclient "github.com/hackgods/consultation-scheduling/internal/redis"
)

type recordingFollowUps struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *recordingFollowUps) ScheduleFollowUps(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, a.ID)
	return nil
}

func (r *recordingFollowUps) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// noLocker runs fn without any mutual exclusion.
type noLocker struct{}

func (noLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fixture struct {
	svc       *Service
	repo      *MemoryRepository
	notes     *notify.Recorder
	followUps *recordingFollowUps
	clinic    Clinic
	patient   Patient
	now       time.Time
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	return newFixtureIn(t, locker, time.UTC, testNow)
}

// newFixtureIn reads clinic wall-clock times in loc.
func newFixtureIn(t *testing.T, locker redisclient.Locker, loc *time.Location, now time.Time) *fixture {
	t.Helper()

	f := &fixture{
		repo:      NewMemoryRepository(),
		notes:     &notify.Recorder{},
		followUps: &recordingFollowUps{},
		clinic:    testClinic(),
		now:       now,
	}
	f.patient = f.addPatient("Asha", "asha@example.com")
	f.repo.AddClinic(f.clinic)

	cfg := config.Config{
		ClinicLocation:  loc,
		PaymentCurrency: "inr",
		PublicBaseURL:   "http://localhost:8080",
	}
	f.svc = NewService(f.repo, locker, f.notes, payment.NewSandboxGateway(), cfg, zerolog.Nop(),
		WithClock(func() time.Time { return f.now }))
	f.svc.SetFollowUps(f.followUps)
	return f
}

func (f *fixture) addPatient(name, email string) Patient {
	p := Patient{ID: uuid.New(), Name: name, Email: &email}
	f.repo.AddPatient(p)
	return p
}

func (f *fixture) book(t *testing.T, patientID uuid.UUID, start, ctype string) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), BookRequest{
		ClinicID:         f.clinic.ID,
		PatientID:        patientID,
		Date:             "2026-10-21",
		StartTime:        start,
		ConsultationType: ctype,
	})
	if err != nil {
		t.Fatalf("Book %s: %v", start, err)
	}
	return appt
}

func (f *fixture) pay(t *testing.T, id uuid.UUID) *Appointment {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.InitiatePayment(ctx, id); err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	appt, err := f.svc.ConfirmPayment(ctx, id, "pm_card_visa")
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	return appt
}

func countEvents(repo *MemoryRepository, eventType string) int {
	n := 0
	for _, ev := range repo.Events() {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func TestBook_CreatesPendingAppointment(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())

	appt := f.book(t, f.patient.ID, "11:00 AM", "online")

	if appt.Status != StatusPending || appt.PaymentStatus != PaymentPending {
		t.Fatalf("status = %s/%s, want pending/pending", appt.Status, appt.PaymentStatus)
	}
	if appt.StartTime != "11:00 AM" || appt.EndTime != "11:30 AM" {
		t.Fatalf("times = %s-%s", appt.StartTime, appt.EndTime)
	}
	if appt.Fee != 500 || appt.DoctorID != f.clinic.DoctorID {
		t.Fatalf("fee/doctor = %v/%s", appt.Fee, appt.DoctorID)
	}
	if !appt.StartsAt().Equal(time.Date(2026, 10, 21, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartsAt = %v", appt.StartsAt())
	}
	if countEvents(f.repo, EventAppointmentCreated) != 1 {
		t.Fatal("expected one APPOINTMENT_CREATED event")
	}
}

func TestBook_RejectsConflictsAndPolicyViolations(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	f.book(t, f.patient.ID, "11:00 AM", "online")
	other := f.addPatient("Ravi", "ravi@example.com")

	tests := []struct {
		name string
		req  BookRequest
		want error
	}{
		{"same slot", BookRequest{f.clinic.ID, other.ID, "2026-10-21", "11:00 AM", "offline"}, ErrSlotConflict},
		{"misaligned", BookRequest{f.clinic.ID, other.ID, "2026-10-21", "11:15 AM", "offline"}, ErrInvalidSlotAlignment},
		{"lunch", BookRequest{f.clinic.ID, other.ID, "2026-10-21", "1:30 PM", "offline"}, ErrLunchBlackout},
		{"closing", BookRequest{f.clinic.ID, other.ID, "2026-10-21", "5:00 PM", "offline"}, ErrOutsideClinicHours},
		{"too soon", BookRequest{f.clinic.ID, other.ID, "2026-10-19", "11:00 AM", "offline"}, ErrOutsideBookingWindow},
		{"missing field", BookRequest{f.clinic.ID, other.ID, "2026-10-21", "", "offline"}, ErrValidation},
		{"bad type", BookRequest{f.clinic.ID, other.ID, "2026-10-21", "11:30 AM", "phone"}, ErrValidation},
		{"bad date", BookRequest{f.clinic.ID, other.ID, "21-10-2026", "11:30 AM", "online"}, ErrValidation},
		{"bad time", BookRequest{f.clinic.ID, other.ID, "2026-10-21", "25:00", "online"}, clocktime.ErrInvalidTimeFormat},
		{"unknown clinic", BookRequest{uuid.New(), other.ID, "2026-10-21", "11:30 AM", "online"}, ErrClinicNotFound},
		{"unknown patient", BookRequest{f.clinic.ID, uuid.New(), "2026-10-21", "11:30 AM", "online"}, ErrPatientNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBook_MisalignedStartNeverReachesConflictCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, redisclient.NewLocalLocker())
	f.book(t, f.patient.ID, "11:00 AM", "online")

	// 11:15 would overlap 11:00-11:30, but the grid rule rejects it first.
	_, err := f.svc.Book(ctx, BookRequest{f.clinic.ID, f.patient.ID, "2026-10-21", "11:15 AM", "online"})
	if !errors.Is(err, ErrInvalidSlotAlignment) {
		t.Fatalf("11:15 err = %v, want ErrInvalidSlotAlignment", err)
	}
	if errors.Is(err, ErrSlotConflict) {
		t.Fatal("misaligned start reported as a conflict")
	}

	other := f.addPatient("Ravi", "ravi@example.com")
	_, err = f.svc.Book(ctx, BookRequest{f.clinic.ID, other.ID, "2026-10-21", "11:00 AM", "offline"})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("second patient err = %v, want ErrSlotConflict", err)
	}
}

func TestBook_ClinicLocationOutsideUTC(t *testing.T) {
	ctx := context.Background()
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	f := newFixtureIn(t, redisclient.NewLocalLocker(), kolkata,
		time.Date(2026, time.October, 18, 10, 0, 0, 0, kolkata))

	appt := f.book(t, f.patient.ID, "11:00 AM", "online")
	if !appt.Day.Equal(time.Date(2026, time.October, 21, 0, 0, 0, 0, kolkata)) {
		t.Fatalf("Day = %v, want 21 Oct midnight in Kolkata", appt.Day)
	}
	if !appt.StartsAt().Equal(time.Date(2026, time.October, 21, 11, 0, 0, 0, kolkata)) {
		t.Fatalf("StartsAt = %v", appt.StartsAt())
	}
	if appt.EndTime != "11:30 AM" || appt.Fee != 500 {
		t.Fatalf("end/fee = %s/%v", appt.EndTime, appt.Fee)
	}
	later := f.book(t, f.patient.ID, "3:30 PM", "offline")

	// 20 Oct 23:30 in Kolkata is 18:00 UTC, still the day before.
	f.now = time.Date(2026, time.October, 20, 23, 30, 0, 0, kolkata)
	c, err := f.svc.Cancel(ctx, appt.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c.Tier != RefundFull || c.RefundAmount != 500 {
		t.Fatalf("refund = %v (%s), want 500 (full)", c.RefundAmount, c.Tier)
	}

	// 21 Oct 00:30 in Kolkata is still 20 Oct in UTC, but the clinic day has begun.
	f.now = time.Date(2026, time.October, 21, 0, 30, 0, 0, kolkata)
	c, err = f.svc.Cancel(ctx, later.ID)
	if err != nil {
		t.Fatalf("Cancel same day: %v", err)
	}
	if c.Tier != RefundHalf || c.RefundAmount != 250 {
		t.Fatalf("refund = %v (%s), want 250 (half)", c.RefundAmount, c.Tier)
	}
}

func TestBook_CancelledSlotCanBeRebooked(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	appt := f.book(t, f.patient.ID, "11:00 AM", "online")

	if _, err := f.svc.Cancel(context.Background(), appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	f.book(t, f.patient.ID, "11:00 AM", "offline")
}

func TestBook_LockBusy(t *testing.T) {
	f := newFixture(t, busyLocker{})

	_, err := f.svc.Book(context.Background(), BookRequest{f.clinic.ID, f.patient.ID, "2026-10-21", "11:00 AM", "online"})
	if !errors.Is(err, ErrSlotBeingBooked) {
		t.Fatalf("err = %v, want ErrSlotBeingBooked", err)
	}
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatal("busy lock should read as a slot conflict")
	}
}

func assertDisjoint(t *testing.T, appts []Appointment) {
	t.Helper()
	for i := range appts {
		for j := i + 1; j < len(appts); j++ {
			a, b := appts[i], appts[j]
			if a.Status == StatusCancelled || b.Status == StatusCancelled {
				continue
			}
			if a.DoctorID == b.DoctorID && sameDate(a.Day, b.Day) &&
				overlaps(a.StartMinutes, a.EndMinutes, b.StartMinutes, b.EndMinutes) {
				t.Fatalf("overlapping bookings %s and %s at %s", a.ID, b.ID, a.StartTime)
			}
		}
	}
}

func concurrentBookings(t *testing.T, f *fixture, starts []string, perSlot int) (booked, conflicts int) {
	t.Helper()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, start := range starts {
		for i := 0; i < perSlot; i++ {
			wg.Add(1)
			go func(start string) {
				defer wg.Done()
				_, err := f.svc.Book(context.Background(), BookRequest{f.clinic.ID, f.patient.ID, "2026-10-21", start, "online"})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					booked++
				case errors.Is(err, ErrSlotConflict):
					conflicts++
				default:
					t.Errorf("Book %s: %v", start, err)
				}
			}(start)
		}
	}
	wg.Wait()
	return booked, conflicts
}

func TestBook_ConcurrentRequestsStayDisjoint(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	starts := []string{"9:00 AM", "9:30 AM", "10:00 AM", "10:30 AM"}

	booked, conflicts := concurrentBookings(t, f, starts, 10)

	if booked != len(starts) {
		t.Fatalf("booked = %d, want %d", booked, len(starts))
	}
	if conflicts != len(starts)*9 {
		t.Fatalf("conflicts = %d, want %d", conflicts, len(starts)*9)
	}
	assertDisjoint(t, f.repo.Appointments())
}

func TestBook_StorageBackstopWithoutLock(t *testing.T) {
	f := newFixture(t, noLocker{})

	booked, _ := concurrentBookings(t, f, []string{"11:00 AM"}, 20)

	if booked != 1 {
		t.Fatalf("booked = %d, want 1", booked)
	}
	assertDisjoint(t, f.repo.Appointments())
}

func TestCancel_RefundTiers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, redisclient.NewLocalLocker())

	early := f.book(t, f.patient.ID, "9:00 AM", "online")
	sameDay := f.book(t, f.patient.ID, "11:00 AM", "online")
	late := f.book(t, f.patient.ID, "12:00 PM", "offline")

	c, err := f.svc.Cancel(ctx, early.ID)
	if err != nil {
		t.Fatalf("Cancel early: %v", err)
	}
	if c.RefundAmount != 500 || c.Tier != RefundFull {
		t.Fatalf("early refund = %v (%s), want 500 (full)", c.RefundAmount, c.Tier)
	}

	f.now = time.Date(2026, 10, 21, 10, 58, 0, 0, time.UTC)
	c, err = f.svc.Cancel(ctx, sameDay.ID)
	if err != nil {
		t.Fatalf("Cancel same day: %v", err)
	}
	if c.RefundAmount != 250 || c.Tier != RefundHalf {
		t.Fatalf("same-day refund = %v (%s), want 250 (half)", c.RefundAmount, c.Tier)
	}
	got := c.Appointment
	if got.Status != StatusCancelled || got.PaymentStatus != PaymentRefunded || got.RefundAmount == nil || *got.RefundAmount != 250 {
		t.Fatalf("cancelled appointment = %+v", got)
	}

	if _, err := f.svc.Cancel(ctx, sameDay.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("second cancel err = %v, want ErrAlreadyCancelled", err)
	}

	f.now = time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC)
	if _, err := f.svc.Cancel(ctx, late.ID); !errors.Is(err, ErrCancellationWindowClosed) {
		t.Fatalf("late cancel err = %v, want ErrCancellationWindowClosed", err)
	}
	stored, _ := f.svc.Get(ctx, late.ID)
	if stored.Status != StatusPending {
		t.Fatalf("rejected cancel changed status to %s", stored.Status)
	}

	sent := f.notes.OfKind(notify.KindCancellation)
	if len(sent) != 2 {
		t.Fatalf("cancellation notices = %d, want 2", len(sent))
	}
	if sent[1].Payload["refund_amount"] != "250.00" {
		t.Fatalf("refund payload = %q", sent[1].Payload["refund_amount"])
	}
}

func TestCancel_NotificationFailureDoesNotFailCancel(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	appt := f.book(t, f.patient.ID, "11:00 AM", "online")
	f.notes.Err = errors.New("smtp down")

	if _, err := f.svc.Cancel(context.Background(), appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestCancel_Unknown(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	if _, err := f.svc.Cancel(context.Background(), uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("err = %v, want ErrAppointmentNotFound", err)
	}
}

func TestPayment_ConfirmSchedulesFollowUps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, redisclient.NewLocalLocker())
	online := f.book(t, f.patient.ID, "11:00 AM", "online")
	offline := f.book(t, f.patient.ID, "11:30 AM", "offline")

	got := f.pay(t, online.ID)
	if got.Status != StatusConfirmed || got.PaymentStatus != PaymentSuccessful {
		t.Fatalf("status = %s/%s", got.Status, got.PaymentStatus)
	}
	if got.PaymentIntentID == nil || got.PaymentMethodID == nil || *got.PaymentMethodID != "pm_card_visa" {
		t.Fatalf("payment refs not stored: %+v", got)
	}

	// Confirming again is a no-op.
	if _, err := f.svc.ConfirmPayment(ctx, online.ID, "pm_card_visa"); err != nil {
		t.Fatalf("repeat ConfirmPayment: %v", err)
	}
	if _, err := f.svc.InitiatePayment(ctx, online.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("InitiatePayment after confirm err = %v", err)
	}

	f.pay(t, offline.ID)

	if f.followUps.count() != 1 {
		t.Fatalf("follow-ups scheduled = %d, want 1 (online only)", f.followUps.count())
	}
	if len(f.notes.OfKind(notify.KindConfirmation)) != 2 {
		t.Fatalf("confirmation notices = %d, want 2", len(f.notes.OfKind(notify.KindConfirmation)))
	}
}

func TestPayment_DeclinedThenRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, redisclient.NewLocalLocker())
	appt := f.book(t, f.patient.ID, "11:00 AM", "online")

	if _, err := f.svc.InitiatePayment(ctx, appt.ID); err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	_, err := f.svc.ConfirmPayment(ctx, appt.ID, payment.DeclinedMethod)
	if !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Fatalf("err = %v, want ErrPaymentNotSuccessful", err)
	}
	stored, _ := f.svc.Get(ctx, appt.ID)
	if stored.Status != StatusPending || stored.PaymentStatus != PaymentFailed {
		t.Fatalf("after decline = %s/%s, want pending/failed", stored.Status, stored.PaymentStatus)
	}
	if f.followUps.count() != 0 {
		t.Fatal("follow-ups scheduled for a declined payment")
	}

	got := f.pay(t, appt.ID)
	if got.Status != StatusConfirmed {
		t.Fatalf("status after retry = %s", got.Status)
	}
}

func TestPayment_ConfirmWithoutIntent(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	appt := f.book(t, f.patient.ID, "11:00 AM", "online")

	if _, err := f.svc.ConfirmPayment(context.Background(), appt.ID, "pm_card_visa"); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestReferralDiscount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, redisclient.NewLocalLocker())
	referrer := f.addPatient("Meera", "meera@example.com")
	f.repo.AddReferral(referrer.ID, f.patient.ID)

	first := f.book(t, f.patient.ID, "9:00 AM", "online")
	got, err := f.svc.InitiatePayment(ctx, first.ID)
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if got.Fee != 400 || !got.DiscountApplied {
		t.Fatalf("referred fee = %v applied=%v, want 400 true", got.Fee, got.DiscountApplied)
	}

	// Initiating again does not discount twice.
	got, err = f.svc.InitiatePayment(ctx, first.ID)
	if err != nil {
		t.Fatalf("InitiatePayment again: %v", err)
	}
	if got.Fee != 400 {
		t.Fatalf("fee after second initiate = %v, want 400", got.Fee)
	}

	second := f.book(t, f.patient.ID, "9:30 AM", "online")
	got, _ = f.svc.InitiatePayment(ctx, second.ID)
	if got.Fee != 500 || got.DiscountApplied {
		t.Fatalf("second booking fee = %v, want 500", got.Fee)
	}

	fromReferrer := f.book(t, referrer.ID, "10:00 AM", "online")
	got, _ = f.svc.InitiatePayment(ctx, fromReferrer.ID)
	if got.Fee != 400 {
		t.Fatalf("referrer fee = %v, want 400", got.Fee)
	}

	again := f.book(t, referrer.ID, "10:30 AM", "online")
	got, _ = f.svc.InitiatePayment(ctx, again.ID)
	if got.Fee != 500 {
		t.Fatalf("referrer second fee = %v, want 500", got.Fee)
	}

	if n := countEvents(f.repo, EventDiscountApplied); n != 2 {
		t.Fatalf("DISCOUNT_APPLIED events = %d, want 2", n)
	}
}

func TestReferralDiscount_UnredeemedInviteEarnsNothing(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	f.repo.AddReferral(f.patient.ID, uuid.Nil)

	appt := f.book(t, f.patient.ID, "9:00 AM", "online")
	got, err := f.svc.InitiatePayment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if got.Fee != 500 || got.DiscountApplied {
		t.Fatalf("fee = %v applied=%v, want 500 false", got.Fee, got.DiscountApplied)
	}
}

func TestComplete_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, redisclient.NewLocalLocker())
	appt := f.book(t, f.patient.ID, "11:00 AM", "online")

	if _, err := f.svc.Complete(ctx, appt.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("complete pending err = %v, want ErrInvalidStatusTransition", err)
	}

	f.pay(t, appt.ID)
	f.now = time.Date(2026, 10, 21, 11, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		got, err := f.svc.Complete(ctx, appt.ID)
		if err != nil {
			t.Fatalf("Complete #%d: %v", i+1, err)
		}
		if got.Status != StatusCompleted || got.CompletedAt == nil {
			t.Fatalf("Complete #%d status = %s", i+1, got.Status)
		}
	}
	if n := countEvents(f.repo, EventAppointmentCompleted); n != 1 {
		t.Fatalf("COMPLETED events = %d, want 1", n)
	}

	if _, err := f.svc.Cancel(ctx, appt.ID); !errors.Is(err, ErrCancellationWindowClosed) {
		t.Fatalf("cancel completed err = %v", err)
	}
}

func TestComplete_CancelledIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, redisclient.NewLocalLocker())
	appt := f.book(t, f.patient.ID, "11:00 AM", "online")
	f.pay(t, appt.ID)

	if _, err := f.svc.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, err := f.svc.Complete(ctx, appt.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestAvailability(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	f.book(t, f.patient.ID, "11:00 AM", "online")

	slots, err := f.svc.Availability(context.Background(), f.clinic.ID, "2026-10-21")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(slots) != 10 {
		t.Fatalf("slots = %d, want 10", len(slots))
	}

	if _, err := f.svc.Availability(context.Background(), uuid.New(), "2026-10-21"); !errors.Is(err, ErrClinicNotFound) {
		t.Fatalf("err = %v, want ErrClinicNotFound", err)
	}
}

func TestFollowUpCandidates(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	online := f.book(t, f.patient.ID, "11:00 AM", "online")
	offline := f.book(t, f.patient.ID, "11:30 AM", "offline")
	f.book(t, f.patient.ID, "12:00 PM", "online") // never paid
	f.pay(t, online.ID)
	f.pay(t, offline.ID)

	got, err := f.svc.FollowUpCandidates(context.Background(), day(21))
	if err != nil {
		t.Fatalf("FollowUpCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != online.ID {
		t.Fatalf("candidates = %+v, want only the paid online booking", got)
	}
}

func TestListByPatient(t *testing.T) {
	f := newFixture(t, redisclient.NewLocalLocker())
	for _, start := range []string{"9:00 AM", "9:30 AM", "10:00 AM"} {
		f.book(t, f.patient.ID, start, "offline")
	}

	got, err := f.svc.ListByPatient(context.Background(), f.patient.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if len(got) != 2 || got[0].StartTime != "10:00 AM" {
		t.Fatalf("page = %+v", got)
	}

	got, _ = f.svc.ListByPatient(context.Background(), f.patient.ID, 0, 2)
	if len(got) != 1 {
		t.Fatalf("second page = %d items, want 1", len(got))
	}
}
