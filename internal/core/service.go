package core

import (
	"context"
	"errors"
	"time"

	"neosweat/internal/blob"
	lockmemory "neosweat/internal/infra/lock/memory"
	"neosweat/pkg/domain"
)

const (
	// DefaultFetchTimeout bounds retrieval of a sensor export.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultExportExtension is the object suffix of sensor exports.
	DefaultExportExtension = "csv"
)

// Service exposes the record operations and drives the calibration pipeline.
type Service struct {
	store              domain.PersistentStore
	blobs              blob.Store
	logger             Logger
	metrics            MetricsRecorder
	clock              Clock
	location           *time.Location
	locker             Locker
	fetchTimeout       time.Duration
	exportExt          string
	keyPrefix          string
	defaultCalibration Calibration
}

type serviceOptions struct {
	logger             Logger
	metrics            MetricsRecorder
	clock              Clock
	location           *time.Location
	locker             Locker
	fetchTimeout       time.Duration
	exportExt          string
	keyPrefix          string
	defaultCalibration Calibration
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:             noopLogger{},
		metrics:            noopMetrics{},
		clock:              ClockFunc(time.Now),
		location:           time.UTC,
		locker:             lockmemory.New(),
		fetchTimeout:       DefaultFetchTimeout,
		exportExt:          DefaultExportExtension,
		defaultCalibration: domain.DefaultCalibration(),
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the operation metrics recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock overrides the clock used to determine "today".
func WithClock(c Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLocation sets the time zone in which "today" is evaluated.
func WithLocation(loc *time.Location) ServiceOption {
	return func(o *serviceOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLocker replaces the per-record pipeline lock.
func WithLocker(l Locker) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithFetchTimeout bounds export retrieval. Non-positive values are ignored.
func WithFetchTimeout(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithExportLocation sets the key prefix and extension of sensor exports:
// the export of record 7 is "{prefix}7.{ext}".
func WithExportLocation(prefix, ext string) ServiceOption {
	return func(o *serviceOptions) {
		o.keyPrefix = prefix
		if ext != "" {
			o.exportExt = ext
		}
	}
}

// WithDefaultCalibration sets the calibration applied to days without an
// override. Invalid calibrations are ignored.
func WithDefaultCalibration(c Calibration) ServiceOption {
	return func(o *serviceOptions) {
		if c.Validate() == nil {
			o.defaultCalibration = c
		}
	}
}

// NewService constructs a service over the record store and the blob store
// holding sensor exports. A nil blob store disables the pipeline.
func NewService(store domain.PersistentStore, blobs blob.Store, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:              store,
		blobs:              blobs,
		logger:             o.logger,
		metrics:            o.metrics,
		clock:              o.clock,
		location:           o.location,
		locker:             o.locker,
		fetchTimeout:       o.fetchTimeout,
		exportExt:          o.exportExt,
		keyPrefix:          o.keyPrefix,
		defaultCalibration: o.defaultCalibration,
	}
}

// Store returns the underlying record store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Blobs returns the blob store holding sensor exports.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Today returns the current calendar day in the service time zone.
func (s *Service) Today() Date {
	return domain.DateOf(s.clock.Now().In(s.location))
}

// AddRecord stores a new record. The id must be positive and unused.
func (s *Service) AddRecord(ctx context.Context, record Record) (Record, error) {
	var created Record
	err := s.run(ctx, "add_record", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateRecord(record)
		return err
	}, "record_id", record.ID)
	return created, err
}

// DeleteRecord removes the record with id.
func (s *Service) DeleteRecord(ctx context.Context, id int) error {
	return s.run(ctx, "delete_record", func(tx domain.Transaction) error {
		return tx.DeleteRecord(id)
	}, "record_id", id)
}

// AddNote stores text under a free-form timestamp key, replacing any note at that key.
func (s *Service) AddNote(ctx context.Context, id int, timestamp, text string) (Record, error) {
	return s.update(ctx, "add_note", id, func(r *Record) error {
		r.Notes[timestamp] = text
		return nil
	})
}

// AddPrickReading stores a finger-prick glucose value at a dd/MM/yyyy HH:mm:ss
// timestamp, replacing any reading at that instant.
func (s *Service) AddPrickReading(ctx context.Context, id int, timestamp string, value float64) (Record, error) {
	return s.update(ctx, "add_prick_reading", id, func(r *Record) error {
		at, err := domain.ParseTimestamp(timestamp)
		if err != nil {
			return err
		}
		r.PrickReadings[at] = value
		return nil
	})
}

// AddCalibration sets today's calibration for the record.
func (s *Service) AddCalibration(ctx context.Context, id int, gradient, intercept float64) (Record, error) {
	cal := Calibration{Gradient: gradient, Intercept: intercept}
	today := s.Today()
	return s.update(ctx, "add_calibration", id, func(r *Record) error {
		if err := cal.Validate(); err != nil {
			return err
		}
		r.Calibrations[today] = cal
		return nil
	})
}

// AddDelay sets today's sensor delay in minutes for the record.
func (s *Service) AddDelay(ctx context.Context, id int, minutes int64) (Record, error) {
	today := s.Today()
	return s.update(ctx, "add_delay", id, func(r *Record) error {
		if err := domain.ValidateDelay(minutes); err != nil {
			return err
		}
		r.DelayMinutes[today] = minutes
		return nil
	})
}

// GetRecord runs the calibration pipeline for id and returns the refreshed record.
func (s *Service) GetRecord(ctx context.Context, id int) (Record, error) {
	if _, err := s.RefreshSweatReadings(ctx, id); err != nil {
		return Record{}, err
	}
	rec, ok := s.store.GetRecord(id)
	if !ok {
		return Record{}, &domain.NotFoundError{ID: id}
	}
	return rec, nil
}

// ListRecords returns every record ordered by id without running the pipeline.
func (s *Service) ListRecords(_ context.Context) []Record {
	return s.store.ListRecords()
}

// CountRecords returns the number of stored records.
func (s *Service) CountRecords(_ context.Context) int {
	return s.store.CountRecords()
}

// RecordExists reports whether a record with id is stored.
func (s *Service) RecordExists(_ context.Context, id int) bool {
	return s.store.RecordExists(id)
}

// update applies mutator to an existing record inside a transaction.
func (s *Service) update(ctx context.Context, op string, id int, mutator func(*Record) error) (Record, error) {
	var updated Record
	err := s.run(ctx, op, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateRecord(id, mutator)
		return err
	}, "record_id", id)
	return updated, err
}

func (s *Service) run(ctx context.Context, op string, fn func(domain.Transaction) error, args ...any) error {
	start := time.Now()
	err := s.store.RunInTransaction(ctx, fn)
	s.observe(ctx, op, start, err, args...)
	return err
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, err error, args ...any) {
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	fields := append([]any{"operation", op, "duration", elapsed}, args...)
	if err == nil {
		s.logger.Debug("operation completed", fields...)
		return
	}
	fields = append(fields, "error", err)
	if isClientError(err) {
		s.logger.Warn("operation rejected", fields...)
		return
	}
	s.logger.Error("operation failed", fields...)
}

// isClientError reports errors caused by the request rather than the system.
func isClientError(err error) bool {
	var (
		nf  *domain.NotFoundError
		ae  *domain.AlreadyExistsError
		ve  *domain.ValidationError
		pe  *domain.ParseError
		ret *domain.RetrievalError
	)
	if errors.As(err, &ret) {
		return false
	}
	return errors.As(err, &nf) || errors.As(err, &ae) || errors.As(err, &ve) || errors.As(err, &pe)
}
