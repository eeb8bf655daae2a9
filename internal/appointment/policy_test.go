package appointment

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-scheduling/internal/clocktime"
)

// Sunday 18 Oct 2026, 10:00. Bookable days run 20 Oct to 27 Oct.
var testNow = time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

func testClinic() Clinic {
	return Clinic{
		ID:              uuid.New(),
		DoctorID:        uuid.New(),
		Name:            "Lakeside Clinic",
		OpeningTime:     "9:00 AM",
		ClosingTime:     "5:00 PM",
		ConsultationFee: 500,
	}
}

func day(d int) time.Time {
	return time.Date(2026, time.October, d, 0, 0, 0, 0, time.UTC)
}

func mustMinutes(t *testing.T, s string) int {
	t.Helper()
	m, err := clocktime.To24h(s)
	if err != nil {
		t.Fatalf("To24h(%q): %v", s, err)
	}
	return m
}

func TestPolicyCheck(t *testing.T) {
	p := DefaultPolicy(time.UTC)
	clinic := testClinic()

	tests := []struct {
		name  string
		day   time.Time
		start string
		want  error
	}{
		{"opening time", day(21), "9:00 AM", nil},
		{"last slot before closing", day(21), "4:30 PM", nil},
		{"closing time", day(21), "5:00 PM", ErrOutsideClinicHours},
		{"before opening", day(21), "8:30 AM", ErrOutsideClinicHours},
		{"before lunch", day(21), "12:30 PM", nil},
		{"lunch start", day(21), "1:00 PM", ErrLunchBlackout},
		{"inside lunch", day(21), "2:00 PM", ErrLunchBlackout},
		{"lunch end is inclusive", day(21), "3:00 PM", ErrLunchBlackout},
		{"after lunch", day(21), "3:30 PM", nil},
		{"misaligned", day(21), "11:15 AM", ErrInvalidSlotAlignment},
		{"tomorrow", day(19), "11:00 AM", ErrOutsideBookingWindow},
		{"first bookable day", day(20), "11:00 AM", nil},
		{"last bookable day", day(27), "11:00 AM", nil},
		{"past window", day(28), "11:00 AM", ErrOutsideBookingWindow},
		{"window checked before lunch", day(28), "1:15 PM", ErrOutsideBookingWindow},
		{"lunch checked before alignment", day(21), "1:15 PM", ErrLunchBlackout},
		{"hours checked before alignment", day(21), "8:15 AM", ErrOutsideClinicHours},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Check(testNow, clinic, tt.day, mustMinutes(t, tt.start))
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Check: unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Check err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPolicyCheck_SlotFields(t *testing.T) {
	p := DefaultPolicy(time.UTC)

	slot, err := p.Check(testNow, testClinic(), day(21), mustMinutes(t, "11:00 AM"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if slot.StartTime != "11:00 AM" || slot.EndTime != "11:30 AM" {
		t.Fatalf("slot = %s-%s, want 11:00 AM-11:30 AM", slot.StartTime, slot.EndTime)
	}
	if slot.EndMinutes-slot.StartMinutes != 30 {
		t.Fatalf("slot length = %d minutes", slot.EndMinutes-slot.StartMinutes)
	}

	slot, err = p.Check(testNow, testClinic(), day(21), mustMinutes(t, "12:30 PM"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if slot.EndTime != "1:00 PM" {
		t.Fatalf("end = %s, want 1:00 PM", slot.EndTime)
	}
}

func TestPolicyCheck_WindowMessageNamesDates(t *testing.T) {
	p := DefaultPolicy(time.UTC)

	_, err := p.Check(testNow, testClinic(), day(19), mustMinutes(t, "11:00 AM"))
	if !errors.Is(err, ErrOutsideBookingWindow) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "2026-10-20") || !strings.Contains(err.Error(), "2026-10-27") {
		t.Fatalf("message %q does not name the window", err.Error())
	}
}

func TestPolicyCheck_BadClinicHours(t *testing.T) {
	p := DefaultPolicy(time.UTC)
	clinic := testClinic()
	clinic.OpeningTime = "nine"

	_, err := p.Check(testNow, clinic, day(21), mustMinutes(t, "11:00 AM"))
	if !errors.Is(err, ErrClinicMisconfigured) {
		t.Fatalf("err = %v, want ErrClinicMisconfigured", err)
	}
	// Stored hours are not caller input.
	if errors.Is(err, clocktime.ErrInvalidTimeFormat) || errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v reads as a client error", err)
	}
}

func TestOpenSlots(t *testing.T) {
	p := DefaultPolicy(time.UTC)
	clinic := testClinic()

	slots, err := p.OpenSlots(testNow, clinic, day(21), nil)
	if err != nil {
		t.Fatalf("OpenSlots: %v", err)
	}
	// 9:00 to 12:30 and 3:30 to 4:30
	if len(slots) != 11 {
		t.Fatalf("open slots = %d, want 11", len(slots))
	}
	if slots[0].StartTime != "9:00 AM" || slots[len(slots)-1].StartTime != "4:30 PM" {
		t.Fatalf("first/last = %s/%s", slots[0].StartTime, slots[len(slots)-1].StartTime)
	}

	booked := Appointment{
		DoctorID:     clinic.DoctorID,
		Day:          day(21),
		StartMinutes: mustMinutes(t, "11:00 AM"),
		EndMinutes:   mustMinutes(t, "11:30 AM"),
		Status:       StatusConfirmed,
	}
	slots, err = p.OpenSlots(testNow, clinic, day(21), []Appointment{booked})
	if err != nil {
		t.Fatalf("OpenSlots: %v", err)
	}
	if len(slots) != 10 {
		t.Fatalf("open slots = %d, want 10", len(slots))
	}
	for _, s := range slots {
		if s.StartTime == "11:00 AM" {
			t.Fatal("booked slot listed as open")
		}
	}

	if _, err := p.OpenSlots(testNow, clinic, day(18), nil); !errors.Is(err, ErrOutsideBookingWindow) {
		t.Fatalf("err = %v, want ErrOutsideBookingWindow", err)
	}
}

func TestParseDay(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)

	d, err := ParseDay("2026-10-21", loc)
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if d.Location() != loc || d.Hour() != 0 || d.Day() != 21 {
		t.Fatalf("ParseDay = %v", d)
	}

	// 20:00 UTC on the 20th is already the 21st in IST.
	d, err = ParseDay("2026-10-20T20:00:00Z", loc)
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if d.Day() != 21 {
		t.Fatalf("ParseDay day = %d, want 21", d.Day())
	}

	if _, err := ParseDay("21/10/2026", loc); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
