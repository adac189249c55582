package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"

	"neosweat/internal/blob"
	"neosweat/internal/config"
	"neosweat/internal/core"
	"neosweat/internal/httpapi"
	"neosweat/internal/infra/lock/redis"
	"neosweat/internal/logging"
	"neosweat/internal/metrics"
)

// app bundles the service with the resources that must be released on exit.
type app struct {
	cfg            *config.Config
	svc            *core.Service
	log            *logging.Adapter
	metricsHandler http.Handler
	httpObserver   httpapi.HTTPObserver
	closers        []func() error
}

func openApp(ctx context.Context, cfg *config.Config, log *logging.Adapter) (*app, error) {
	a := &app{cfg: cfg, log: log}
	opened := false
	defer func() {
		if !opened {
			_ = a.Close()
		}
	}()

	store, err := core.OpenPersistentStore(ctx, core.StorageConfig{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          cfg.Blob.S3.Region,
			Bucket:          cfg.Blob.S3.Bucket,
			Endpoint:        cfg.Blob.S3.Endpoint,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
			PathStyle:       cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open export store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	opts := []core.ServiceOption{
		core.WithLogger(log),
		core.WithLocation(cfg.Location()),
		core.WithFetchTimeout(cfg.Export.FetchTimeout),
		core.WithExportLocation(cfg.Export.KeyPrefix, cfg.Export.Extension),
		core.WithDefaultCalibration(core.Calibration{
			Gradient:  cfg.Calibration.DefaultGradient,
			Intercept: cfg.Calibration.DefaultIntercept,
		}),
	}

	if cfg.Lock.Driver == "redis" {
		locker, err := redis.Open(ctx, redis.Config{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
			TTL:      cfg.Lock.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open lock: %w", err)
		}
		a.closers = append(a.closers, locker.Close)
		opts = append(opts, core.WithLocker(locker))
	}

	if cfg.Metrics.Enabled {
		switch cfg.Metrics.Exporter {
		case "expvar":
			opts = append(opts, core.WithMetrics(core.NewExpvarMetricsRecorder("")))
			a.metricsHandler = expvar.Handler()
		default:
			rec := metrics.NewRecorder(cfg.Metrics.Namespace)
			opts = append(opts, core.WithMetrics(rec))
			a.metricsHandler = rec.Handler()
			a.httpObserver = rec
		}
	}

	a.svc = core.NewService(store, blobs, opts...)
	opened = true
	return a, nil
}

func (a *app) router() http.Handler {
	return httpapi.NewRouter(a.svc, httpapi.Options{
		Logger:         a.log,
		Observer:       a.httpObserver,
		MetricsHandler: a.metricsHandler,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
