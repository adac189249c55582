package httpapi

import (
	"time"

	"neosweat/pkg/domain"
)

// RecordView is the wire form of a record. Readings are chronological lists
// and per-day settings are keyed by dd/MM/yyyy.
type RecordView struct {
	ID            int                           `json:"id"`
	CreatedAt     time.Time                     `json:"created_at"`
	UpdatedAt     time.Time                     `json:"updated_at"`
	Notes         map[string]string             `json:"notes"`
	PrickReadings []ReadingView                 `json:"prick_readings"`
	SweatReadings []ReadingView                 `json:"sweat_readings"`
	DelayMinutes  map[string]int64              `json:"delay_minutes"`
	Calibrations  map[string]domain.Calibration `json:"calibrations"`
	PrevPoint     int                           `json:"prev_point"`
}

// ReadingView is one reading with a dd/MM/yyyy HH:mm:ss timestamp.
type ReadingView struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// NewRecordView converts a record to its wire form.
func NewRecordView(r domain.Record) RecordView {
	v := RecordView{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		Notes:         make(map[string]string, len(r.Notes)),
		PrickReadings: readingViews(r.PrickReadings),
		SweatReadings: readingViews(r.SweatReadings),
		DelayMinutes:  make(map[string]int64, len(r.DelayMinutes)),
		Calibrations:  make(map[string]domain.Calibration, len(r.Calibrations)),
		PrevPoint:     r.Cursor,
	}
	for k, text := range r.Notes {
		v.Notes[k] = text
	}
	for day, minutes := range r.DelayMinutes {
		v.DelayMinutes[day.String()] = minutes
	}
	for day, cal := range r.Calibrations {
		v.Calibrations[day.String()] = cal
	}
	return v
}

func readingViews(m map[time.Time]float64) []ReadingView {
	sorted := domain.SortedReadings(m)
	out := make([]ReadingView, 0, len(sorted))
	for _, rd := range sorted {
		out = append(out, ReadingView{Timestamp: rd.At.Format(domain.TimestampLayout), Value: rd.Value})
	}
	return out
}
