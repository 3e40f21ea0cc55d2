package db

import (
	"context"
	"slices"
	"sync"
	"time"

	"benchhist/internal/benchmark"
	"benchhist/internal/codec"
	apperrors "benchhist/internal/errors"
)

// DocumentJournal turns a whole-document backend into a write-ahead journal.
// Each appended record is saved together with everything journaled before
// it, so the store publishes a record only once it is on disk.
type DocumentJournal struct {
	backend  Backend
	attempts int
	delay    time.Duration
	now      func() time.Time

	mu  sync.Mutex
	doc *codec.Document
}

// NewDocumentJournal journals on top of doc, the document last loaded from
// backend. Failed saves are retried attempts times, delay apart.
func NewDocumentJournal(backend Backend, doc *codec.Document, attempts int, delay time.Duration) *DocumentJournal {
	if doc == nil {
		doc = &codec.Document{}
	}
	return &DocumentJournal{
		backend:  backend,
		attempts: attempts,
		delay:    delay,
		now:      time.Now,
		doc:      doc,
	}
}

// Append saves the journaled document with rec added at the tail of suite.
// On failure the journaled state is left as it was.
func (j *DocumentJournal) Append(ctx context.Context, suite string, seq int, rec benchmark.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	next := withRecord(j.doc, suite, rec)
	if ms := j.now().UnixMilli(); ms > next.LastUpdate {
		next.LastUpdate = ms
	}

	err := apperrors.Retry(ctx, j.attempts, j.delay, func(ctx context.Context) error {
		return apperrors.Storage("save", suite, j.backend.Save(ctx, next))
	})
	if err != nil {
		return err
	}
	j.doc = next
	return nil
}

// Document returns the last successfully saved document.
func (j *DocumentJournal) Document() *codec.Document {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.doc
}

// withRecord returns a copy of doc with rec appended to suite. Record slices
// of the original are never written to.
func withRecord(doc *codec.Document, suite string, rec benchmark.Record) *codec.Document {
	next := *doc
	next.Suites = slices.Clone(doc.Suites)
	for i := range next.Suites {
		if next.Suites[i].Name == suite {
			next.Suites[i].Records = append(slices.Clip(next.Suites[i].Records), rec)
			return &next
		}
	}
	next.Suites = append(next.Suites, codec.Suite{Name: suite, Records: []benchmark.Record{rec}})
	return &next
}
