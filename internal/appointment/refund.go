package appointment

import (
	"errors"
	"math"
	"time"
)

var (
	ErrAlreadyCancelled         = errors.New("appointment is already cancelled")
	ErrCancellationWindowClosed = errors.New("cancellation is not allowed within a minute of the appointment start")
)

type RefundTier string

const (
	RefundFull RefundTier = "full"
	RefundHalf RefundTier = "half"
)

// RefundFor applies the cancellation tiers to a live appointment:
//
//	now < 00:00 of the appointment day           → full fee
//	00:00 of the day ≤ now ≤ start − 1 minute    → half the fee
//	later                                        → rejected
func RefundFor(now time.Time, a *Appointment) (float64, RefundTier, error) {
	dayStart := a.Day
	lastCall := a.StartsAt().Add(-time.Minute)

	switch {
	case now.Before(dayStart):
		return roundMoney(a.Fee), RefundFull, nil
	case !now.After(lastCall):
		return roundMoney(a.Fee * 0.5), RefundHalf, nil
	default:
		return 0, "", ErrCancellationWindowClosed
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
