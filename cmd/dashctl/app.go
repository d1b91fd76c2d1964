package main

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"dashboard/internal/archive"
	"dashboard/internal/catalog"
	"dashboard/internal/config"
	"dashboard/internal/dataset"
	"dashboard/internal/degraded"
	"dashboard/internal/ingest"
	"dashboard/internal/logging"
	"dashboard/internal/metrics"
	"dashboard/internal/metrics/datadog"
	"dashboard/internal/metrics/prompush"
	"dashboard/internal/registry"
	"dashboard/internal/storage"

	// register all backends with the storage factory.
	_ "dashboard/internal/storage/all"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg config.Config
	log *zap.Logger

	eng      storage.Engine
	reg      *registry.Registry
	store    *catalog.Store
	dir      *degraded.Directory
	pipeline *ingest.Pipeline
	rows     *dataset.Accessor
}

func openApp(ctx context.Context, cfg config.Config, verbose bool) (*app, error) {
	issues := config.Validate(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			return nil, fmt.Errorf("config: %w", iss)
		}
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	for _, iss := range issues {
		log.Warn("config", zap.String("path", iss.Path), zap.String("issue", iss.Message))
	}
	setupMetrics(cfg.Metrics, log)

	eng, err := storage.New(ctx, storage.Config{
		Kind:     cfg.Storage.Kind,
		DSN:      cfg.Storage.DSN,
		MaxConns: cfg.Storage.MaxConns,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	arch, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		eng.Close()
		return nil, err
	}

	reg := registry.New(log)
	store := catalog.NewStore(eng, reg, log)
	cache := degraded.NewCache()
	return &app{
		cfg:   cfg,
		log:   log,
		eng:   eng,
		reg:   reg,
		store: store,
		dir:   degraded.NewDirectory(store, cache, log),
		pipeline: ingest.New(eng, reg, store,
			ingest.WithLogger(log),
			ingest.WithBatchSize(cfg.Ingest.BatchSize),
			ingest.WithMaxUploadBytes(cfg.Ingest.MaxUploadBytes),
			ingest.WithArchiver(arch),
			ingest.WithCache(cache)),
		rows: dataset.New(eng, reg,
			dataset.WithLogger(log),
			dataset.WithExportDir(cfg.Export.Dir)),
	}, nil
}

func (a *app) Close() {
	if err := metrics.Flush(); err != nil {
		a.log.Warn("metrics: flush failed", zap.Error(err))
	}
	a.eng.Close()
	_ = a.log.Sync()
}

// setupMetrics installs the configured backend. Failures leave the nop
// backend in place.
func setupMetrics(m config.Metrics, log *zap.Logger) {
	switch m.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			log.Warn("metrics: prometheus disabled", zap.Error(err))
			return
		}
		metrics.SetBackend(b)
	case "datadog":
		tags := make([]string, 0, len(m.Tags))
		for k, v := range m.Tags {
			tags = append(tags, k+":"+v)
		}
		sort.Strings(tags)
		b, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, Namespace: "dashboard.", GlobalTags: tags})
		if err != nil {
			log.Warn("metrics: datadog disabled", zap.Error(err))
			return
		}
		metrics.SetBackend(b)
	default:
		return
	}
	log.Debug("metrics: enabled", zap.String("backend", m.Backend))
}
