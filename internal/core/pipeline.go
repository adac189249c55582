package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"neosweat/internal/blob"
	"neosweat/pkg/domain"
)

// ExportKey returns the object key of the sensor export for a record.
func (s *Service) ExportKey(id int) string {
	return fmt.Sprintf("%s%d.%s", s.keyPrefix, id, s.exportExt)
}

// RefreshSweatReadings runs the calibration pipeline for id: it fetches the
// record's sensor export, converts every row from the cursor onward, and
// commits the readings and advanced cursor in one transaction. A missing export
// is not an error; the record is left as is.
func (s *Service) RefreshSweatReadings(ctx context.Context, id int) (PipelineResult, error) {
	start := time.Now()
	res, err := s.refresh(ctx, id)
	s.observe(ctx, "refresh_sweat_readings", start, err, "record_id", id)
	if err == nil {
		if po, ok := s.metrics.(PipelineObserver); ok {
			po.ObservePipeline(ctx, res)
		}
		s.logger.Debug("pipeline run", "record_id", id, "export_found", res.ExportFound,
			"rows_read", res.RowsRead, "rows_converted", res.RowsConverted,
			"previous_cursor", res.PreviousCursor, "cursor", res.Cursor)
	}
	return res, err
}

func (s *Service) refresh(ctx context.Context, id int) (PipelineResult, error) {
	res := PipelineResult{RecordID: id}
	unlock, err := s.locker.Lock(ctx, recordLockKey(id))
	if err != nil {
		return res, fmt.Errorf("lock record %d: %w", id, err)
	}
	defer unlock()

	rec, ok := s.store.GetRecord(id)
	if !ok {
		return res, &domain.NotFoundError{ID: id}
	}
	res.PreviousCursor, res.Cursor = rec.Cursor, rec.Cursor

	rows, found, err := s.fetchExport(ctx, id)
	if err != nil {
		return res, err
	}
	res.ExportFound = found
	res.RowsRead = len(rows)
	if !found || rec.Cursor-1 >= len(rows) {
		return res, nil
	}

	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		updated, err := tx.UpdateRecord(id, func(r *domain.Record) error {
			res.PreviousCursor = r.Cursor
			res.RowsConverted = applyExport(r, rows, s.defaultCalibration)
			return nil
		})
		if err != nil {
			return err
		}
		res.Cursor = updated.Cursor
		return nil
	})
	return res, err
}

// fetchExport retrieves and parses the export for id within the fetch timeout.
// found is false when no export has been uploaded yet.
func (s *Service) fetchExport(ctx context.Context, id int) (rows []ExportRow, found bool, err error) {
	if s.blobs == nil {
		return nil, false, nil
	}
	key := s.ExportKey(id)
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	_, body, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &domain.RetrievalError{Key: key, Err: err}
	}
	defer func() { _ = body.Close() }()

	rows, err = ParseExport(body)
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			return nil, true, err
		}
		return nil, true, &domain.RetrievalError{Key: key, Err: err}
	}
	return rows, true, nil
}

// applyExport converts rows from the record's cursor onward and advances the
// cursor to the row count. Delay and calibration are looked up by the sample's
// own calendar day, before the delay shifts it.
func applyExport(rec *domain.Record, rows []ExportRow, fallback Calibration) int {
	start := rec.Cursor - 1
	if start < 0 {
		start = 0
	}
	converted := 0
	for i := start; i < len(rows); i++ {
		row := rows[i]
		day := domain.DateOf(row.At)
		cal := rec.CalibrationFor(day, fallback)
		rec.SweatReadings[row.At.Add(-rec.DelayFor(day))] = cal.Convert(row.Raw)
		converted++
	}
	if len(rows) > rec.Cursor {
		rec.Cursor = len(rows)
	}
	return converted
}

func recordLockKey(id int) string {
	return fmt.Sprintf("neosweat:record:%d", id)
}
