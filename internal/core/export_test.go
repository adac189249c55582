package core

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"neosweat/pkg/domain"
)

func TestParseExportSkipsHeaderAndBlankLines(t *testing.T) {
	input := "Time,Current (nA)\r\n01/01/2024 00:00:00,1.3\r\n\r\n01/01/2024 00:20:00, 1.5 \r\n\n"
	rows, err := ParseExport(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	want := time.Date(2024, 1, 1, 0, 20, 0, 0, time.UTC)
	if !rows[1].At.Equal(want) || rows[1].Raw != 1.5 || rows[1].Line != 4 {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
}

func TestParseExportEmptyAndHeaderOnly(t *testing.T) {
	for _, input := range []string{"", "Time,Current\n"} {
		rows, err := ParseExport(strings.NewReader(input))
		if err != nil || len(rows) != 0 {
			t.Fatalf("input %q: expected no rows, got %v (%v)", input, rows, err)
		}
	}
}

func TestParseExportReportsLineNumbers(t *testing.T) {
	cases := []struct {
		name  string
		input string
		line  int
	}{
		{"missing delimiter", "h\n01/01/2024 00:00:00;1.3\n", 2},
		{"bad timestamp", "h\n01/01/2024 00:00:00,1\n2024-01-01 00:05:00,1.3\n", 3},
		{"bad value", "h\n01/01/2024 00:00:00,abc\n", 2},
		{"non finite value", "h\n01/01/2024 00:00:00,NaN\n", 2},
		{"extra column", "h\n01/01/2024 00:00:00,1.3,9\n", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseExport(strings.NewReader(tc.input))
			var pe *domain.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.Line != tc.line {
				t.Fatalf("expected line %d, got %d (%v)", tc.line, pe.Line, err)
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestParseExportReturnsReaderErrors(t *testing.T) {
	_, err := ParseExport(failingReader{})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected reader error, got %v", err)
	}
	var pe *domain.ParseError
	if errors.As(err, &pe) {
		t.Fatalf("reader failures must not be reported as parse errors")
	}
}
