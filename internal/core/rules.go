package core

import (
	"context"
	"fmt"

	"neosweat/pkg/domain"
)

// NewDefaultRulesEngine returns an engine enforcing the record invariants that
// every store must hold at commit time.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewCursorMonotonicRule())
	engine.Register(NewSettingsIntegrityRule())
	return engine
}

// NewCursorMonotonicRule rejects updates that move a record's cursor backwards.
func NewCursorMonotonicRule() domain.Rule {
	return cursorMonotonicRule{}
}

type cursorMonotonicRule struct{}

func (cursorMonotonicRule) Name() string { return "cursor_monotonic" }

func (cursorMonotonicRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range changes {
		if c.Action != domain.ActionUpdate || c.Before == nil || c.After == nil {
			continue
		}
		if c.After.Cursor < c.Before.Cursor {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cursor_monotonic",
				RecordID: c.ID,
				Message:  fmt.Sprintf("cursor moved from %d to %d", c.Before.Cursor, c.After.Cursor),
			})
		}
	}
	return res, nil
}

// NewSettingsIntegrityRule rejects records holding unusable per-day settings:
// calibrations that cannot convert a sample or negative delays.
func NewSettingsIntegrityRule() domain.Rule {
	return settingsIntegrityRule{}
}

type settingsIntegrityRule struct{}

func (settingsIntegrityRule) Name() string { return "settings_integrity" }

func (settingsIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range changes {
		if c.Action == domain.ActionDelete {
			continue
		}
		rec, ok := view.FindRecord(c.ID)
		if !ok {
			continue
		}
		for day, cal := range rec.Calibrations {
			if err := cal.Validate(); err != nil {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "settings_integrity",
					RecordID: rec.ID,
					Message:  fmt.Sprintf("calibration for %s: %v", day, err),
				})
			}
		}
		for day, minutes := range rec.DelayMinutes {
			if err := domain.ValidateDelay(minutes); err != nil {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "settings_integrity",
					RecordID: rec.ID,
					Message:  fmt.Sprintf("delay for %s (%d minutes): %v", day, minutes, err),
				})
			}
		}
	}
	return res, nil
}
