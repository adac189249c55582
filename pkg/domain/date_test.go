package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseDateAndString(t *testing.T) {
	d, err := ParseDate(" 07/03/2024 ")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d != (Date{Year: 2024, Month: time.March, Day: 7}) {
		t.Fatalf("unexpected date %+v", d)
	}
	if d.String() != "07/03/2024" {
		t.Fatalf("unexpected string %q", d.String())
	}
	if !d.Time().Equal(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected midnight %v", d.Time())
	}
	if (Date{}).IsZero() != true || d.IsZero() {
		t.Fatalf("IsZero mismatch")
	}
}

func TestParseDateRejectsOtherLayouts(t *testing.T) {
	for _, in := range []string{"2024-03-07", "31/02/2024", "7/3/24", ""} {
		_, err := ParseDate(in)
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Input != in {
			t.Fatalf("expected ParseError for %q, got %v", in, err)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("01/01/2024 00:20:00")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !ts.Equal(time.Date(2024, 1, 1, 0, 20, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", ts)
	}
	if ts.Format(TimestampLayout) != "01/01/2024 00:20:00" {
		t.Fatalf("layout must round-trip")
	}
	if _, err := ParseTimestamp("01/01/2024 00:20"); err == nil {
		t.Fatalf("expected seconds to be required")
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	late := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	if got := DateOf(late.In(time.FixedZone("UTC+2", 2*3600))); got.String() != "02/01/2024" {
		t.Fatalf("expected next day in UTC+2, got %s", got)
	}
}

func TestDateTextMarshaling(t *testing.T) {
	d := Date{Year: 2023, Month: time.December, Day: 31}
	b, err := d.MarshalText()
	if err != nil || string(b) != "31/12/2023" {
		t.Fatalf("MarshalText: %q %v", b, err)
	}
	var back Date
	if err := back.UnmarshalText(b); err != nil || back != d {
		t.Fatalf("UnmarshalText: %+v %v", back, err)
	}
	if err := back.UnmarshalText([]byte("garbage")); err == nil {
		t.Fatalf("expected error for garbage")
	}
}
