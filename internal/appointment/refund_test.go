package appointment

import (
	"errors"
	"testing"
	"time"
)

func TestRefundFor(t *testing.T) {
	appt := &Appointment{
		Day:          day(21),
		StartMinutes: 660, // 11:00 AM
		EndMinutes:   690,
		Fee:          500,
	}

	tests := []struct {
		name       string
		now        time.Time
		wantAmount float64
		wantTier   RefundTier
		wantErr    error
	}{
		{"days before", time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC), 500, RefundFull, nil},
		{"last second of the previous day", time.Date(2026, 10, 20, 23, 59, 59, 0, time.UTC), 500, RefundFull, nil},
		{"midnight of the day", day(21), 250, RefundHalf, nil},
		{"morning of the day", time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC), 250, RefundHalf, nil},
		{"one minute before start", time.Date(2026, 10, 21, 10, 59, 0, 0, time.UTC), 250, RefundHalf, nil},
		{"thirty seconds before start", time.Date(2026, 10, 21, 10, 59, 30, 0, time.UTC), 0, "", ErrCancellationWindowClosed},
		{"at start", time.Date(2026, 10, 21, 11, 0, 0, 0, time.UTC), 0, "", ErrCancellationWindowClosed},
		{"after end", time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC), 0, "", ErrCancellationWindowClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, tier, err := RefundFor(tt.now, appt)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if amount != tt.wantAmount || tier != tt.wantTier {
				t.Fatalf("refund = %v (%s), want %v (%s)", amount, tier, tt.wantAmount, tt.wantTier)
			}
		})
	}
}

func TestRefundFor_RoundsHalfFee(t *testing.T) {
	appt := &Appointment{Day: day(21), StartMinutes: 660, EndMinutes: 690, Fee: 333.34}

	amount, _, err := RefundFor(time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC), appt)
	if err != nil {
		t.Fatalf("RefundFor: %v", err)
	}
	if amount != 166.67 {
		t.Fatalf("refund = %v, want 166.67", amount)
	}
}
