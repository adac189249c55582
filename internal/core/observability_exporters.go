package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// ExpvarMetricsRecorder is the metrics.exporter=expvar recorder. Counters live
// in expvar maps under one published name and are served as JSON by
// expvar.Handler.
//
//	{"operations": {"add_record": {"success": 1, "error": 0, "duration_ms": 2.5}},
//	 "pipeline":   {"runs": 3, "missing_exports": 1, "rows_read": 40, "rows_converted": 12}}
type ExpvarMetricsRecorder struct {
	name       string
	root       *expvar.Map
	operations *expvar.Map
	pipeline   *expvar.Map
	mu         sync.Mutex // guards creation of per-operation maps
}

// OperationTotals is one entry of ExpvarMetricsSnapshot.Operations.
type OperationTotals struct {
	Success    int64   `json:"success"`
	Error      int64   `json:"error"`
	DurationMS float64 `json:"duration_ms"`
}

// PipelineTotals accumulates every observed refresh.
type PipelineTotals struct {
	Runs           int64 `json:"runs"`
	MissingExports int64 `json:"missing_exports"`
	RowsRead       int64 `json:"rows_read"`
	RowsConverted  int64 `json:"rows_converted"`
}

// ExpvarMetricsSnapshot is the decoded form of the published variable.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationTotals `json:"operations"`
	Pipeline   PipelineTotals             `json:"pipeline"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated neosweat_service_metrics_N name when empty. Publishing a name
// that is already taken panics, as with expvar.Publish.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("neosweat_service_metrics_%d", expvarSeq.Add(1))
	}
	r := &ExpvarMetricsRecorder{
		name:       name,
		root:       new(expvar.Map).Init(),
		operations: new(expvar.Map).Init(),
		pipeline:   new(expvar.Map).Init(),
	}
	for _, key := range []string{"runs", "missing_exports", "rows_read", "rows_converted"} {
		r.pipeline.Set(key, new(expvar.Int))
	}
	r.root.Set("operations", r.operations)
	r.root.Set("pipeline", r.pipeline)
	expvar.Publish(name, r.root)
	return r
}

func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot decodes the current published value.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	var snap ExpvarMetricsSnapshot
	_ = json.Unmarshal([]byte(r.root.String()), &snap)
	if snap.Operations == nil {
		snap.Operations = map[string]OperationTotals{}
	}
	return snap
}

func (r *ExpvarMetricsRecorder) operation(name string) *expvar.Map {
	if m, ok := r.operations.Get(name).(*expvar.Map); ok {
		return m
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.operations.Get(name).(*expvar.Map); ok {
		return m
	}
	m := new(expvar.Map).Init()
	m.Set("success", new(expvar.Int))
	m.Set("error", new(expvar.Int))
	m.Set("duration_ms", new(expvar.Float))
	r.operations.Set(name, m)
	return m
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	m := r.operation(operation)
	if success {
		m.Add("success", 1)
	} else {
		m.Add("error", 1)
	}
	m.AddFloat("duration_ms", float64(duration)/float64(time.Millisecond))
}

// ObservePipeline implements PipelineObserver.
func (r *ExpvarMetricsRecorder) ObservePipeline(_ context.Context, result PipelineResult) {
	r.pipeline.Add("runs", 1)
	if !result.ExportFound {
		r.pipeline.Add("missing_exports", 1)
	}
	r.pipeline.Add("rows_read", int64(result.RowsRead))
	r.pipeline.Add("rows_converted", int64(result.RowsConverted))
}
