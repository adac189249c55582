package core

import (
	"context"
	"time"

	"neosweat/pkg/domain"
)

type (
	// Record aliases the domain record for callers of the service.
	Record = domain.Record
	// Calibration aliases the paired gradient/intercept value.
	Calibration = domain.Calibration
	// Date aliases the calendar-day key of per-day settings.
	Date = domain.Date
)

// Logger is the structured logging surface used by the service. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// PipelineObserver is optionally implemented by a MetricsRecorder that also
// tracks calibration pipeline throughput.
type PipelineObserver interface {
	ObservePipeline(ctx context.Context, result PipelineResult)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Locker serialises work on a key. The returned unlock func must be called once
// the caller is done; it is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// PipelineResult summarises one calibration pipeline run.
type PipelineResult struct {
	RecordID       int  `json:"record_id"`
	ExportFound    bool `json:"export_found"`
	RowsRead       int  `json:"rows_read"`
	RowsConverted  int  `json:"rows_converted"`
	PreviousCursor int  `json:"previous_cursor"`
	Cursor         int  `json:"cursor"`
}
