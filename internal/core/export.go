package core

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"neosweat/pkg/domain"
)

const exportDelimiter = ","

// maxExportLine bounds a single export line; sensor rows are a few dozen bytes.
const maxExportLine = 64 * 1024

// ExportRow is one parsed sensor sample.
type ExportRow struct {
	Line int
	At   time.Time
	Raw  float64
}

// ParseExport reads a sensor export: a header line followed by
// "dd/MM/yyyy HH:mm:ss,value" rows. Blank lines and CR line endings are
// ignored. The first malformed row aborts parsing with a *domain.ParseError
// carrying its 1-based line number. Errors from r are returned unwrapped.
func ParseExport(r io.Reader) ([]ExportRow, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxExportLine)

	var rows []ExportRow
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		row, err := parseExportLine(line, text)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &domain.ParseError{Line: line + 1, Err: err}
		}
		return nil, err
	}
	return rows, nil
}

func parseExportLine(line int, text string) (ExportRow, error) {
	stamp, value, ok := strings.Cut(text, exportDelimiter)
	if !ok {
		return ExportRow{}, &domain.ParseError{Line: line, Input: text, Err: errors.New("missing delimiter")}
	}
	at, err := domain.ParseTimestamp(stamp)
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			pe.Line = line
			return ExportRow{}, pe
		}
		return ExportRow{}, err
	}
	raw, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return ExportRow{}, &domain.ParseError{Line: line, Input: value, Err: err}
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return ExportRow{}, &domain.ParseError{Line: line, Input: value, Err: errors.New("value is not finite")}
	}
	return ExportRow{Line: line, At: at, Raw: raw}, nil
}
