// Package pipeline runs a record through the history store, the analyzer and
// the alert emitter. Persistence happens inside the store's journal, before a
// record becomes visible.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"benchhist/internal/benchmark"
	"benchhist/internal/codec"
	apperrors "benchhist/internal/errors"
	"benchhist/internal/history"
	"benchhist/internal/metrics"
	"benchhist/internal/notify"
	"benchhist/internal/regression"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Pipeline wires the components together. Store and Analyzer are required.
type Pipeline struct {
	Store    *history.Store
	Analyzer *regression.Analyzer
	Emitter  notify.Emitter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Ingest appends rec to suite, evaluates it against the preceding history
// and emits the report. A duplicate or invalid record is returned as an
// error without a report, as is a StorageUnavailable failure of the journal;
// in both cases nothing was stored and the call may be repeated. Emitter
// failures are logged only.
func (p *Pipeline) Ingest(ctx context.Context, suite string, rec benchmark.Record) (*regression.Report, error) {
	report, err := p.appendAndEvaluate(ctx, suite, rec)
	if err != nil {
		return nil, err
	}

	p.emit(ctx, report)
	return report, nil
}

// Evaluate compares rec with the history of suite without storing it.
func (p *Pipeline) Evaluate(suite string, rec benchmark.Record) *regression.Report {
	start := time.Now()
	report := p.Analyzer.Evaluate(p.Store, suite, rec)
	report.ID = uuid.NewString()
	p.observeEvaluation(report, time.Since(start))
	return report
}

func (p *Pipeline) appendAndEvaluate(ctx context.Context, suite string, rec benchmark.Record) (*regression.Report, error) {
	if _, err := p.Store.Append(ctx, suite, rec); err != nil {
		p.observeAppend(suite, err)
		p.logger().Warn("append rejected", "suite", suite, "commit", rec.Commit.ID, "error", err)
		return nil, err
	}
	p.observeAppend(suite, nil)

	report := p.Evaluate(suite, rec)
	p.logger().Info("run evaluated",
		"suite", suite,
		"commit", rec.Commit.ID,
		"report", report.ID,
		"regressions", len(report.Regressions()),
		"improvements", len(report.Improvements()),
		"skipped", len(report.Skipped),
		"new", len(report.New),
	)
	return report, nil
}

func (p *Pipeline) emit(ctx context.Context, report *regression.Report) {
	if p.Emitter == nil {
		return
	}
	if err := p.Emitter.Emit(ctx, report); err != nil {
		p.logger().Error("failed to emit report", "suite", report.Suite, "report", report.ID, "error", err)
	}
}

func (p *Pipeline) observeAppend(suite string, err error) {
	if p.Metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrDuplicateIdentity):
		result = "duplicate"
	case errors.Is(err, apperrors.ErrInvalidRecord):
		result = "invalid"
	default:
		result = "error"
	}
	p.Metrics.ObserveAppend(suite, result, p.Store.Len(suite))
}

func (p *Pipeline) observeEvaluation(report *regression.Report, took time.Duration) {
	if p.Metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, v := range report.Verdicts {
		counts[v.Kind.String()]++
	}
	p.Metrics.ObserveEvaluation(report.Suite, counts, len(report.Skipped), took)
}

// Outcome is the result of ingesting one record of a document.
type Outcome struct {
	Suite    string
	CommitID string
	Report   *regression.Report
	// Err is set for records that were rejected, e.g. duplicates, or that
	// failed and stopped the import.
	Err error
}

// IngestDocument ingests every suite of doc concurrently, records of one
// suite in document order. Duplicate and invalid records are reported in
// their Outcome and do not stop the import; any other failure cancels the
// remaining work. The outcomes of records handled before the failure are
// still returned. Reports are not emitted.
func (p *Pipeline) IngestDocument(ctx context.Context, doc *codec.Document) ([]Outcome, error) {
	results := make([][]Outcome, len(doc.Suites))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range doc.Suites {
		g.Go(func() error {
			out := make([]Outcome, 0, len(s.Records))
			defer func() { results[i] = out }()
			for _, rec := range s.Records {
				report, err := p.appendAndEvaluate(gctx, s.Name, rec)
				out = append(out, Outcome{Suite: s.Name, CommitID: rec.Commit.ID, Report: report, Err: err})
				if err != nil && !rejected(err) {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()

	var outcomes []Outcome
	for _, out := range results {
		outcomes = append(outcomes, out...)
	}
	return outcomes, err
}

func rejected(err error) bool {
	return errors.Is(err, apperrors.ErrDuplicateIdentity) || errors.Is(err, apperrors.ErrInvalidRecord)
}
