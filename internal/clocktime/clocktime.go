// Package clocktime converts between the clock representations used by clinic
// calendars: 12-hour display strings ("9:30 AM"), 24-hour strings ("09:30") and
// minute-of-day integers. Every comparison in the scheduler works on minutes.
package clocktime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const MinutesPerDay = 24 * 60

var ErrInvalidTimeFormat = errors.New("invalid time format")

// To24h parses "H:MM AM/PM" into minutes since midnight. A missing period is
// read as AM.
func To24h(s string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 || len(fields) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}

	period := "AM"
	hasPeriod := len(fields) == 2
	if hasPeriod {
		period = strings.ToUpper(fields[1])
		if period != "AM" && period != "PM" {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
		}
	}

	hours, minutes, err := splitClock(fields[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if hasPeriod && (hours < 1 || hours > 12) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if !hasPeriod && hours > 12 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}

	switch {
	case period == "PM" && hours < 12:
		hours += 12
	case period == "AM" && hours == 12:
		hours = 0
	}

	return hours*60 + minutes, nil
}

// MinutesToHHMM renders minutes since midnight as zero-padded "HH:MM".
// Values outside a day wrap around midnight.
func MinutesToHHMM(minutes int) string {
	m := ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// To12h converts "HH:MM" into "H:MM AM/PM".
func To12h(hhmm string) (string, error) {
	hours, minutes, err := splitClock(strings.TrimSpace(hhmm))
	if err != nil || hours > 23 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeFormat, hhmm)
	}

	period := "AM"
	if hours >= 12 {
		period = "PM"
	}
	hours %= 12
	if hours == 0 {
		hours = 12
	}
	return fmt.Sprintf("%d:%02d %s", hours, minutes, period), nil
}

// MinutesTo12h is the canonical display form of a minute of day.
func MinutesTo12h(minutes int) string {
	s, _ := To12h(MinutesToHHMM(minutes))
	return s
}

func splitClock(s string) (hours, minutes int, err error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || h == "" || len(m) != 2 {
		return 0, 0, ErrInvalidTimeFormat
	}
	hours, err = strconv.Atoi(h)
	if err != nil || hours < 0 {
		return 0, 0, ErrInvalidTimeFormat
	}
	minutes, err = strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, 0, ErrInvalidTimeFormat
	}
	return hours, minutes, nil
}
