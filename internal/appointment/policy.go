package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/consultation-scheduling/internal/clocktime"
)

var (
	ErrOutsideBookingWindow = errors.New("outside booking window")
	ErrLunchBlackout        = errors.New("lunch break is from 1:00 PM to 3:00 PM, cannot book appointments during this time")
	ErrOutsideClinicHours   = errors.New("outside clinic hours")
	ErrInvalidSlotAlignment = errors.New("appointments can only be booked in 30-minute intervals")

	// ErrClinicMisconfigured marks stored clinic hours that cannot be parsed.
	ErrClinicMisconfigured = errors.New("clinic has invalid opening hours")
)

// Policy holds the static booking rules. It never looks at existing bookings.
type Policy struct {
	LeadDays    int // first bookable day is today + LeadDays
	WindowDays  int // last bookable day is first + WindowDays
	LunchStart  int // minute of day, inclusive
	LunchEnd    int // minute of day, inclusive
	SlotMinutes int
	Location    *time.Location
}

func DefaultPolicy(loc *time.Location) Policy {
	lunchStart, _ := clocktime.To24h("1:00 PM")
	lunchEnd, _ := clocktime.To24h("3:00 PM")
	return Policy{
		LeadDays:    2,
		WindowDays:  7,
		LunchStart:  lunchStart,
		LunchEnd:    lunchEnd,
		SlotMinutes: 30,
		Location:    loc,
	}
}

type Slot struct {
	Day          time.Time
	StartMinutes int
	EndMinutes   int
	StartTime    string
	EndTime      string
}

// BookingWindow returns the first and last bookable calendar days for now.
func (p Policy) BookingWindow(now time.Time) (first, last time.Time) {
	today := DayOf(now, p.Location)
	first = addDays(today, p.LeadDays)
	last = addDays(first, p.WindowDays)
	return first, last
}

// Check applies the rules in order and reports the first one that fails.
func (p Policy) Check(now time.Time, clinic Clinic, day time.Time, startMinutes int) (Slot, error) {
	day = dateIn(day, p.Location)

	first, last := p.BookingWindow(now)
	if day.Before(first) || day.After(last) {
		return Slot{}, fmt.Errorf("%w: appointments can only be booked from %s to %s",
			ErrOutsideBookingWindow, first.Format(dateLayout), last.Format(dateLayout))
	}

	if startMinutes >= p.LunchStart && startMinutes <= p.LunchEnd {
		return Slot{}, ErrLunchBlackout
	}

	opening, closing, err := clinicHours(clinic)
	if err != nil {
		return Slot{}, err
	}
	if startMinutes < opening || startMinutes >= closing {
		return Slot{}, fmt.Errorf("%w: appointments can only be booked between %s and %s",
			ErrOutsideClinicHours, clinic.OpeningTime, clinic.ClosingTime)
	}

	if startMinutes%p.SlotMinutes != 0 {
		return Slot{}, ErrInvalidSlotAlignment
	}

	end := startMinutes + p.SlotMinutes
	endTime, err := clocktime.To12h(clocktime.MinutesToHHMM(end))
	if err != nil {
		return Slot{}, err
	}

	return Slot{
		Day:          day,
		StartMinutes: startMinutes,
		EndMinutes:   end,
		StartTime:    clocktime.MinutesTo12h(startMinutes),
		EndTime:      endTime,
	}, nil
}

// OpenSlots lists every slot of day that passes the policy and does not
// collide with existing bookings of the clinic's doctor.
func (p Policy) OpenSlots(now time.Time, clinic Clinic, day time.Time, existing []Appointment) ([]Slot, error) {
	day = dateIn(day, p.Location)

	first, last := p.BookingWindow(now)
	if day.Before(first) || day.After(last) {
		return nil, fmt.Errorf("%w: appointments can only be booked from %s to %s",
			ErrOutsideBookingWindow, first.Format(dateLayout), last.Format(dateLayout))
	}

	opening, closing, err := clinicHours(clinic)
	if err != nil {
		return nil, err
	}

	start := opening
	if rem := start % p.SlotMinutes; rem != 0 {
		start += p.SlotMinutes - rem
	}

	var slots []Slot
	for m := start; m < closing; m += p.SlotMinutes {
		slot, err := p.Check(now, clinic, day, m)
		if err != nil {
			continue
		}
		if DetectConflict(existing, clinic.DoctorID, slot).Found() {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func clinicHours(clinic Clinic) (opening, closing int, err error) {
	opening, err = clocktime.To24h(clinic.OpeningTime)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: clinic %s opening time %q: %v", ErrClinicMisconfigured, clinic.ID, clinic.OpeningTime, err)
	}
	closing, err = clocktime.To24h(clinic.ClosingTime)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: clinic %s closing time %q: %v", ErrClinicMisconfigured, clinic.ID, clinic.ClosingTime, err)
	}
	return opening, closing, nil
}
