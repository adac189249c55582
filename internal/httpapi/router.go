// Package httpapi maps the record service onto a JSON HTTP API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"neosweat/internal/core"
)

// RecordService is the subset of core.Service served over HTTP.
type RecordService interface {
	AddRecord(ctx context.Context, record core.Record) (core.Record, error)
	DeleteRecord(ctx context.Context, id int) error
	AddNote(ctx context.Context, id int, timestamp, text string) (core.Record, error)
	AddPrickReading(ctx context.Context, id int, timestamp string, value float64) (core.Record, error)
	AddCalibration(ctx context.Context, id int, gradient, intercept float64) (core.Record, error)
	AddDelay(ctx context.Context, id int, minutes int64) (core.Record, error)
	GetRecord(ctx context.Context, id int) (core.Record, error)
	RefreshSweatReadings(ctx context.Context, id int) (core.PipelineResult, error)
	ListRecords(ctx context.Context) []core.Record
	CountRecords(ctx context.Context) int
}

// HTTPObserver records per-route request metrics.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, duration time.Duration)
}

// Options configures optional router surfaces.
type Options struct {
	Logger         core.Logger
	Observer       HTTPObserver
	MetricsHandler http.Handler
}

// NewRouter builds the chi router for svc.
func NewRouter(svc RecordService, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	h := &handler{svc: svc, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(opts.Logger, opts.Observer))

	r.Get("/healthz", h.health)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/api/v1/records", func(r chi.Router) {
		r.Get("/", h.listRecords)
		r.Post("/", h.createRecord)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getRecord)
			r.Delete("/", h.deleteRecord)
			r.Post("/notes", h.addNote)
			r.Post("/pricks", h.addPrickReading)
			r.Post("/calibrations", h.addCalibration)
			r.Post("/delays", h.addDelay)
			r.Post("/refresh", h.refresh)
		})
	})
	return r
}

func requestLogger(log core.Logger, obs HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if obs != nil {
				obs.ObserveHTTP(r.Method, route, status, elapsed)
			}
			log.Info("http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"duration", elapsed,
				"request_id", chimiddleware.GetReqID(r.Context()))
		})
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
