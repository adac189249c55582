// Package domain defines the persistent record entity, its value types, and the
// persistence contracts used by neosweat.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// DefaultGradient is the calibration gradient used for days without an override.
	DefaultGradient = 1.1
	// DefaultIntercept is the calibration intercept used for days without an override.
	DefaultIntercept = 0.2
	// InitialCursor is the cursor of a record that has never been refreshed:
	// the first row after the export header.
	InitialCursor = 1
)

// Base captures fields shared by persisted entities.
type Base struct {
	ID        int       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Calibration is the linear model converting raw sweat current (nA) into
// blood-glucose concentration (mmol/L): value = (raw - Intercept) / Gradient.
type Calibration struct {
	Gradient  float64 `json:"gradient"`
	Intercept float64 `json:"intercept"`
}

// DefaultCalibration returns the calibration applied to days without an override.
func DefaultCalibration() Calibration {
	return Calibration{Gradient: DefaultGradient, Intercept: DefaultIntercept}
}

// Validate rejects calibrations that cannot be applied.
func (c Calibration) Validate() error {
	if math.IsNaN(c.Gradient) || math.IsInf(c.Gradient, 0) || c.Gradient == 0 {
		return &ValidationError{Field: "gradient", Reason: "must be finite and non-zero"}
	}
	if math.IsNaN(c.Intercept) || math.IsInf(c.Intercept, 0) {
		return &ValidationError{Field: "intercept", Reason: "must be finite"}
	}
	return nil
}

// MaxDelayMinutes bounds a per-day sensor delay to one day.
const MaxDelayMinutes = 24 * 60

// ValidateDelay rejects delays outside [0, MaxDelayMinutes].
func ValidateDelay(minutes int64) error {
	if minutes < 0 {
		return &ValidationError{Field: "delay", Reason: "must not be negative"}
	}
	if minutes > MaxDelayMinutes {
		return &ValidationError{Field: "delay", Reason: fmt.Sprintf("must not exceed %d minutes", MaxDelayMinutes)}
	}
	return nil
}

// Convert applies the calibration to a raw current value.
func (c Calibration) Convert(raw float64) float64 {
	return (raw - c.Intercept) / c.Gradient
}

// Record is one tracked subject with its notes, readings, and calibration settings.
type Record struct {
	Base
	Notes         map[string]string     `json:"notes"`
	PrickReadings map[time.Time]float64 `json:"prick_readings"`
	SweatReadings map[time.Time]float64 `json:"sweat_readings"`
	DelayMinutes  map[Date]int64        `json:"delay_minutes"`
	Calibrations  map[Date]Calibration  `json:"calibrations"`
	Cursor        int                   `json:"prev_point"`
}

// NewRecord returns an empty record with the initial cursor.
func NewRecord(id int) Record {
	r := Record{Base: Base{ID: id}}
	r.Normalize()
	return r
}

// Normalize allocates nil maps and repairs a cursor below the initial position.
func (r *Record) Normalize() {
	if r.Notes == nil {
		r.Notes = make(map[string]string)
	}
	if r.PrickReadings == nil {
		r.PrickReadings = make(map[time.Time]float64)
	}
	if r.SweatReadings == nil {
		r.SweatReadings = make(map[time.Time]float64)
	}
	if r.DelayMinutes == nil {
		r.DelayMinutes = make(map[Date]int64)
	}
	if r.Calibrations == nil {
		r.Calibrations = make(map[Date]Calibration)
	}
	if r.Cursor < InitialCursor {
		r.Cursor = InitialCursor
	}
}

// CalibrationFor returns the calibration set for day, or fallback when none is.
func (r Record) CalibrationFor(day Date, fallback Calibration) Calibration {
	if c, ok := r.Calibrations[day]; ok {
		return c
	}
	return fallback
}

// DelayFor returns the sensor lag configured for day, or zero.
func (r Record) DelayFor(day Date) time.Duration {
	if m, ok := r.DelayMinutes[day]; ok {
		return time.Duration(m) * time.Minute
	}
	return 0
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Notes = make(map[string]string, len(r.Notes))
	for k, v := range r.Notes {
		out.Notes[k] = v
	}
	out.PrickReadings = cloneReadings(r.PrickReadings)
	out.SweatReadings = cloneReadings(r.SweatReadings)
	out.DelayMinutes = make(map[Date]int64, len(r.DelayMinutes))
	for k, v := range r.DelayMinutes {
		out.DelayMinutes[k] = v
	}
	out.Calibrations = make(map[Date]Calibration, len(r.Calibrations))
	for k, v := range r.Calibrations {
		out.Calibrations[k] = v
	}
	return out
}

// Reading is a single timestamped concentration.
type Reading struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// SortedReadings flattens a reading map into chronological order.
func SortedReadings(m map[time.Time]float64) []Reading {
	out := make([]Reading, 0, len(m))
	for at, v := range m {
		out = append(out, Reading{At: at, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func cloneReadings(in map[time.Time]float64) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
