package main

import (
	"context"
	"fmt"
	"log/slog"

	"benchhist/internal/codec"
	"benchhist/internal/config"
	"benchhist/internal/db"
	apperrors "benchhist/internal/errors"
	"benchhist/internal/history"
	"benchhist/internal/metrics"
	"benchhist/internal/notify"
	"benchhist/internal/pipeline"
	"benchhist/internal/regression"
	"benchhist/internal/telemetry"

	"github.com/spf13/viper"
)

// app is the wired set of components a command works with.
type app struct {
	backend  db.Backend
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
}

// openApp opens the configured backend, restores the history from it and
// builds the pipeline. SQL backends journal appends themselves; the others
// are wrapped so that every append saves the document before it is
// published.
func openApp(ctx context.Context) (*app, error) {
	backend, err := db.NewBackend(config.StoreConfig())
	if err != nil {
		return nil, err
	}

	attempts, delay := config.RetryPolicy()
	var doc *codec.Document
	err = apperrors.Retry(ctx, attempts, delay, func(ctx context.Context) error {
		doc, err = backend.Load(ctx)
		return err
	})
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if doc.RepoURL == "" {
		doc.RepoURL = viper.GetString("store.repo_url")
	}

	opts, err := config.AnalyzerOptions()
	if err != nil {
		backend.Close()
		return nil, err
	}

	var journal history.Journal
	if j, ok := backend.(history.Journal); ok {
		journal = j
	} else {
		journal = db.NewDocumentJournal(backend, doc, attempts, delay)
	}
	store := history.NewStore(history.WithJournal(journal))
	if err := store.Restore(doc); err != nil {
		backend.Close()
		return nil, err
	}

	m := metrics.NewMetrics(nil)
	p := &pipeline.Pipeline{
		Store:    store,
		Analyzer: regression.New(opts),
		Metrics:  m,
	}
	if manager := notify.NewManager(slog.Default()); manager.Active() {
		p.Emitter = manager
	}

	telemetry.LogDebug("history loaded", "suites", len(doc.Suites), "records", doc.RecordCount())
	return &app{backend: backend, pipeline: p, metrics: m}, nil
}

func (a *app) Close() error {
	return a.backend.Close()
}
