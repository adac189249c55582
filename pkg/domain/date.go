package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// TimestampLayout is the wall-clock layout shared by sensor exports and prick readings (dd/MM/yyyy HH:mm:ss).
	TimestampLayout = "02/01/2006 15:04:05"
	// DateLayout is the calendar-date layout used for per-day overrides (dd/MM/yyyy).
	DateLayout = "02/01/2006"
)

// Date is a calendar day without a time component. It is used as the key of the
// per-day delay and calibration maps and marshals as dd/MM/yyyy.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a dd/MM/yyyy string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ParseError{Input: s, Err: err}
	}
	return DateOf(t), nil
}

// ParseTimestamp parses a dd/MM/yyyy HH:mm:ss string as a wall-clock time in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &ParseError{Input: s, Err: err}
	}
	return t, nil
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool { return d == Date{} }

// Time returns midnight of d in UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// MarshalText implements encoding.TextMarshaler so Date can key JSON maps.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
