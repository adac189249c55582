package core

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"neosweat/internal/infra/persistence/memory"
	"neosweat/pkg/domain"
)

func TestDefaultRulesEngineRegistersRecordRules(t *testing.T) {
	names := NewDefaultRulesEngine().Rules()
	if len(names) != 2 || names[0] != "cursor_monotonic" || names[1] != "settings_integrity" {
		t.Fatalf("unexpected rules %v", names)
	}
}

func TestCursorMonotonicRuleBlocksRewind(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		rec := domain.NewRecord(1)
		rec.Cursor = 4
		_, err := tx.CreateRecord(rec)
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateRecord(1, func(r *domain.Record) error {
			r.Cursor = 2
			return nil
		})
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) || rv.Result.Violations[0].Rule != "cursor_monotonic" {
		t.Fatalf("expected cursor violation, got %v", err)
	}
	if rec, _ := store.GetRecord(1); rec.Cursor != 4 {
		t.Fatalf("blocked transaction must not commit, cursor=%d", rec.Cursor)
	}

	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateRecord(1, func(r *domain.Record) error {
			r.Cursor = 6
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("advancing the cursor must be allowed: %v", err)
	}
}

func TestSettingsIntegrityRuleBlocksBadSettings(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()
	day := domain.Date{Year: 2024, Month: 1, Day: 1}
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		rec := domain.NewRecord(2)
		rec.Calibrations[day] = Calibration{Gradient: math.Inf(1)}
		rec.DelayMinutes[day] = -3
		_, err := tx.CreateRecord(rec)
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) || len(rv.Result.Violations) != 2 {
		t.Fatalf("expected two violations, got %v", err)
	}
	if !strings.Contains(err.Error(), "01/01/2024") {
		t.Fatalf("expected day in message, got %v", err)
	}
	if store.RecordExists(2) {
		t.Fatalf("blocked create must not commit")
	}
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateRecord(domain.NewRecord(3)); err != nil {
			return err
		}
		return tx.DeleteRecord(3)
	}); err != nil {
		t.Fatalf("create then delete: %v", err)
	}
}

func TestSettingsIntegrityRuleBlocksOversizedDelay(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	day := domain.Date{Year: 2024, Month: 1, Day: 1}
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		rec := domain.NewRecord(5)
		rec.DelayMinutes[day] = 1 << 40
		_, err := tx.CreateRecord(rec)
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) || len(rv.Result.Violations) != 1 {
		t.Fatalf("expected one violation, got %v", err)
	}
	if store.RecordExists(5) {
		t.Fatalf("blocked create must not commit")
	}
}

func TestOpenPersistentStoreInstallsDefaultRules(t *testing.T) {
	store, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mem, ok := store.(*memory.Store)
	if !ok || len(mem.RulesEngine().Rules()) != 2 {
		t.Fatalf("expected default rules on %T", store)
	}
}
