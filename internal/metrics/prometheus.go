// Package metrics exports service and HTTP metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"neosweat/internal/core"
)

var (
	_ core.MetricsRecorder  = (*Recorder)(nil)
	_ core.PipelineObserver = (*Recorder)(nil)
)

// Recorder implements core.MetricsRecorder on a dedicated registry.
type Recorder struct {
	registry *prometheus.Registry

	opDuration    *prometheus.HistogramVec
	opResults     *prometheus.CounterVec
	rowsRead      prometheus.Counter
	rowsConverted prometheus.Counter
	pipelineRuns  *prometheus.CounterVec

	httpDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

// NewRecorder registers the collectors under namespace (default "neosweat")
// together with the Go runtime and process collectors.
func NewRecorder(namespace string) *Recorder {
	if namespace == "" {
		namespace = "neosweat"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of record service operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		opResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total record service operations by result",
		}, []string{"operation", "result"}),
		rowsRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_rows_read_total",
			Help:      "Export rows parsed by the calibration pipeline",
		}),
		rowsConverted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_rows_converted_total",
			Help:      "Export rows converted into glucose readings",
		}),
		pipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Calibration pipeline runs by export presence",
		}, []string{"export"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by status code",
		}, []string{"method", "route", "status"}),
	}
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Observe implements core.MetricsRecorder.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
	r.opResults.WithLabelValues(operation, result).Inc()
}

// ObservePipeline implements core.PipelineObserver.
func (r *Recorder) ObservePipeline(_ context.Context, res core.PipelineResult) {
	export := "missing"
	if res.ExportFound {
		export = "found"
	}
	r.pipelineRuns.WithLabelValues(export).Inc()
	r.rowsRead.Add(float64(res.RowsRead))
	r.rowsConverted.Add(float64(res.RowsConverted))
}

// ObserveHTTP records one served request. route should be the route pattern,
// not the raw path, to bound label cardinality.
func (r *Recorder) ObserveHTTP(method, route string, status int, duration time.Duration) {
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
