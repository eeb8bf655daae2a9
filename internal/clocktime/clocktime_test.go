package clocktime

import (
	"errors"
	"testing"
)

func TestTo24h(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12:00 AM", 0},
		{"12:30 AM", 30},
		{"1:00 AM", 60},
		{"9:00 AM", 540},
		{"11:30 am", 690},
		{"12:00 PM", 720},
		{"1:00 PM", 780},
		{"3:00 PM", 900},
		{"11:59 PM", 1439},
		{"9:30", 570},
		{"12:15", 15},
		{"  10:00 AM ", 600},
	}

	for _, tt := range tests {
		got, err := To24h(tt.in)
		if err != nil {
			t.Errorf("To24h(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("To24h(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTo24h_Invalid(t *testing.T) {
	for _, in := range []string{"", "noon", "9", "9:5 AM", "13:00 PM", "0:30 PM", "10:60 AM", "9:00 XM", "14:00", "a:00 AM", "9:00 AM extra"} {
		if _, err := To24h(in); !errors.Is(err, ErrInvalidTimeFormat) {
			t.Errorf("To24h(%q) err = %v, want ErrInvalidTimeFormat", in, err)
		}
	}
}

func TestMinutesToHHMM(t *testing.T) {
	tests := map[int]string{
		0:    "00:00",
		5:    "00:05",
		570:  "09:30",
		690:  "11:30",
		1439: "23:59",
		1440: "00:00",
	}
	for in, want := range tests {
		if got := MinutesToHHMM(in); got != want {
			t.Errorf("MinutesToHHMM(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTo12h(t *testing.T) {
	tests := map[string]string{
		"00:00": "12:00 AM",
		"00:30": "12:30 AM",
		"09:05": "9:05 AM",
		"11:30": "11:30 AM",
		"12:00": "12:00 PM",
		"15:30": "3:30 PM",
		"23:59": "11:59 PM",
	}
	for in, want := range tests {
		got, err := To12h(in)
		if err != nil {
			t.Fatalf("To12h(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("To12h(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := To12h("24:00"); !errors.Is(err, ErrInvalidTimeFormat) {
		t.Errorf("To12h(24:00) err = %v, want ErrInvalidTimeFormat", err)
	}
}

func TestRoundTripEveryMinute(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		s, err := To12h(MinutesToHHMM(m))
		if err != nil {
			t.Fatalf("To12h(%d): %v", m, err)
		}
		got, err := To24h(s)
		if err != nil {
			t.Fatalf("To24h(%q): %v", s, err)
		}
		if got != m {
			t.Fatalf("round trip %d -> %q -> %d", m, s, got)
		}
	}
}
