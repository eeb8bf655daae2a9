package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Conflict describes the first existing booking that collides with a
// candidate slot.
type Conflict struct {
	With  *Appointment
	Exact bool // same start and end, not only overlapping
}

func (c Conflict) Found() bool {
	return c.With != nil
}

// DetectConflict checks slot against the doctor's non-cancelled bookings on
// the same day. Intervals are half-open and compared as minutes of day; the
// 12-hour display strings do not sort chronologically ("10:00 AM" < "9:00 AM").
func DetectConflict(existing []Appointment, doctorID uuid.UUID, slot Slot) Conflict {
	var overlap *Appointment

	for i := range existing {
		a := &existing[i]
		if a.Status == StatusCancelled || a.DoctorID != doctorID || !sameDate(a.Day, slot.Day) {
			continue
		}
		if a.StartMinutes == slot.StartMinutes && a.EndMinutes == slot.EndMinutes {
			return Conflict{With: a, Exact: true}
		}
		if overlap == nil && overlaps(slot.StartMinutes, slot.EndMinutes, a.StartMinutes, a.EndMinutes) {
			overlap = a
		}
	}

	return Conflict{With: overlap}
}

func overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

func sameDate(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
