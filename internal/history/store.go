// Package history keeps the per-suite timelines of run records and answers
// baseline queries over them. Appends to one suite are serialized; readers
// never wait on persistence I/O and suites never block each other.
package history

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"benchhist/internal/benchmark"
	"benchhist/internal/codec"
	apperrors "benchhist/internal/errors"
)

// Journal persists a record before it becomes visible. seq is the position
// the record will take in its suite.
type Journal interface {
	Append(ctx context.Context, suite string, seq int, rec benchmark.Record) error
}

// Ref locates an appended record.
type Ref struct {
	Suite string
	Seq   int
	Key   benchmark.Key
}

// Occurrence is one measurement of a name together with the run it came from.
type Occurrence struct {
	Seq         int
	CommitID    string
	Tool        string
	Date        int64
	Measurement benchmark.Measurement
}

type suite struct {
	name  string
	order int64

	// writeMu serializes appends: duplicate check, journal write and publish.
	writeMu sync.Mutex

	// mu guards the fields below for the duration of a publish only.
	mu        sync.RWMutex
	published bool
	records   []benchmark.Record
	keys      map[benchmark.Key]int
	// index maps a name to the ascending positions of the records holding it.
	index map[string][]int
	names []string
}

func newSuite(name string, order int64) *suite {
	return &suite{
		name:  name,
		order: order,
		keys:  make(map[benchmark.Key]int),
		index: make(map[string][]int),
	}
}

// publish appends rec at the tail. Callers hold writeMu.
func (st *suite) publish(rec benchmark.Record) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	seq := len(st.records)
	st.records = append(st.records, rec)
	st.keys[rec.Key()] = seq
	seen := make(map[string]bool, len(rec.Benches))
	for _, m := range rec.Benches {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		if _, ok := st.index[m.Name]; !ok {
			st.names = append(st.names, m.Name)
		}
		st.index[m.Name] = append(st.index[m.Name], seq)
	}
	st.published = true
	return seq
}

// Option configures a Store.
type Option func(*Store)

// WithJournal writes every record through j before publishing it.
func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

// WithClock replaces the clock that drives lastUpdate.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRepoURL sets the repository URL reported in snapshots.
func WithRepoURL(url string) Option {
	return func(s *Store) { s.repoURL = url }
}

// Store is the in-memory history of all suites.
type Store struct {
	suites     sync.Map // name -> *suite
	created    atomic.Int64
	lastUpdate atomic.Int64

	journal Journal
	now     func() time.Time

	metaMu     sync.RWMutex
	repoURL    string
	extensions benchmark.Extensions
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lookup(name string) (*suite, bool) {
	v, ok := s.suites.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*suite), true
}

func (s *Store) suiteFor(name string) *suite {
	if st, ok := s.lookup(name); ok {
		return st
	}
	v, _ := s.suites.LoadOrStore(name, newSuite(name, s.created.Add(1)))
	return v.(*suite)
}

// touch advances lastUpdate to the store clock. It never moves backwards.
func (s *Store) touch() {
	now := s.now().UnixMilli()
	for {
		cur := s.lastUpdate.Load()
		if now <= cur || s.lastUpdate.CompareAndSwap(cur, now) {
			return
		}
	}
}

// Append adds rec to the tail of suiteName. The store keeps its own copy, so
// later changes by the caller are not observed.
func (s *Store) Append(ctx context.Context, suiteName string, rec benchmark.Record) (Ref, error) {
	if suiteName == "" {
		return Ref{}, apperrors.Newf(apperrors.ErrInvalidRecord, "append", "", "empty suite name")
	}
	if rec.Commit.ID == "" {
		return Ref{}, apperrors.Newf(apperrors.ErrInvalidRecord, "append", suiteName, "empty commit id")
	}
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	st := s.suiteFor(suiteName)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	key := rec.Key()
	if _, dup := st.keys[key]; dup {
		return Ref{}, apperrors.New(apperrors.ErrDuplicateIdentity, "append", suiteName, errors.New(key.String()))
	}

	rec = rec.Clone()
	seq := len(st.records)
	if seq > 0 {
		if tail := st.records[seq-1].Date; rec.Date < tail {
			slog.Warn("appending record older than suite tail",
				"suite", suiteName, "commit", rec.Commit.ID, "date", rec.Date, "tail_date", tail)
		}
	}

	if s.journal != nil {
		if err := s.journal.Append(ctx, suiteName, seq, rec); err != nil {
			return Ref{}, apperrors.Storage("append", suiteName, err)
		}
	}

	st.publish(rec)
	s.touch()

	slog.Debug("record appended", "suite", suiteName, "seq", seq, "commit", rec.Commit.ID, "benches", len(rec.Benches))
	return Ref{Suite: suiteName, Seq: seq, Key: key}, nil
}

// Len returns the number of records in the suite.
func (s *Store) Len(suiteName string) int {
	st, ok := s.lookup(suiteName)
	if !ok {
		return 0
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.records)
}

// Position returns where the record with key sits in the suite.
func (s *Store) Position(suiteName string, key benchmark.Key) (int, bool) {
	st, ok := s.lookup(suiteName)
	if !ok {
		return 0, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	seq, ok := st.keys[key]
	return seq, ok
}

// LatestBefore returns the most recent occurrence of name at a position
// strictly before seq. Records that lack the name are skipped.
func (s *Store) LatestBefore(suiteName, name string, seq int) (Occurrence, bool) {
	st, ok := s.lookup(suiteName)
	if !ok {
		return Occurrence{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()

	positions := st.index[name]
	i := sort.SearchInts(positions, seq)
	if i == 0 {
		return Occurrence{}, false
	}
	return occurrence(st.records, positions[i-1], name), true
}

// Latest returns the most recent occurrence of name in the suite.
func (s *Store) Latest(suiteName, name string) (Occurrence, bool) {
	return s.LatestBefore(suiteName, name, math.MaxInt)
}

// History yields at most limit occurrences of name, most recent first. The
// sequence reads a snapshot taken when History is called; appends made
// afterwards are not observed. Each iteration starts from the newest entry.
func (s *Store) History(suiteName, name string, limit int) iter.Seq[Occurrence] {
	var (
		records   []benchmark.Record
		positions []int
	)
	if st, ok := s.lookup(suiteName); ok && limit > 0 {
		st.mu.RLock()
		records = st.records
		positions = st.index[name]
		st.mu.RUnlock()
	}

	return func(yield func(Occurrence) bool) {
		n := 0
		for i := len(positions) - 1; i >= 0 && n < limit; i-- {
			if !yield(occurrence(records, positions[i], name)) {
				return
			}
			n++
		}
	}
}

func occurrence(records []benchmark.Record, seq int, name string) Occurrence {
	rec := &records[seq]
	occ := Occurrence{Seq: seq, CommitID: rec.Commit.ID, Tool: rec.Tool, Date: rec.Date}
	for _, m := range rec.Benches {
		if m.Name == name {
			occ.Measurement = m.Clone()
			break
		}
	}
	return occ
}

// Suites returns the suite names in creation order.
func (s *Store) Suites() []string {
	suites := s.ordered()
	names := make([]string, len(suites))
	for i, st := range suites {
		names[i] = st.name
	}
	return names
}

func (s *Store) ordered() []*suite {
	var out []*suite
	s.suites.Range(func(_, v any) bool {
		st := v.(*suite)
		st.mu.RLock()
		published := st.published
		st.mu.RUnlock()
		if published {
			out = append(out, st)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Records returns copies of the suite's records in append order.
func (s *Store) Records(suiteName string) []benchmark.Record {
	st, ok := s.lookup(suiteName)
	if !ok {
		return nil
	}
	st.mu.RLock()
	records := st.records
	st.mu.RUnlock()

	if len(records) == 0 {
		return nil
	}
	out := make([]benchmark.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Record returns a copy of the record at seq.
func (s *Store) Record(suiteName string, seq int) (benchmark.Record, bool) {
	st, ok := s.lookup(suiteName)
	if !ok {
		return benchmark.Record{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if seq < 0 || seq >= len(st.records) {
		return benchmark.Record{}, false
	}
	return st.records[seq].Clone(), true
}

// Names returns the measurement names seen in the suite, in order of first
// appearance.
func (s *Store) Names(suiteName string) []string {
	st, ok := s.lookup(suiteName)
	if !ok {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]string(nil), st.names...)
}

// LastUpdate is the epoch-millisecond instant of the latest successful append.
func (s *Store) LastUpdate() int64 {
	return s.lastUpdate.Load()
}

// Snapshot copies the whole history into a document ready for encoding.
func (s *Store) Snapshot() *codec.Document {
	s.metaMu.RLock()
	doc := &codec.Document{
		LastUpdate: s.LastUpdate(),
		RepoURL:    s.repoURL,
	}
	if s.extensions != nil {
		doc.Extensions = make(benchmark.Extensions, len(s.extensions))
		for k, v := range s.extensions {
			doc.Extensions[k] = v
		}
	}
	s.metaMu.RUnlock()

	for _, st := range s.ordered() {
		doc.Suites = append(doc.Suites, codec.Suite{Name: st.name, Records: s.Records(st.name)})
	}
	return doc
}

// Restore replaces the store contents with doc. It must not run concurrently
// with Append. On error the store is left unchanged.
func (s *Store) Restore(doc *codec.Document) error {
	if doc == nil {
		return apperrors.Newf(apperrors.ErrMalformedDocument, "restore", "", "nil document")
	}

	suites := make([]*suite, 0, len(doc.Suites))
	seen := make(map[string]bool, len(doc.Suites))
	for i, src := range doc.Suites {
		if seen[src.Name] {
			return apperrors.Newf(apperrors.ErrMalformedDocument, "restore", "entries["+strconv.Quote(src.Name)+"]", "duplicate suite")
		}
		seen[src.Name] = true
		st := newSuite(src.Name, int64(i+1))
		for j, rec := range src.Records {
			if _, dup := st.keys[rec.Key()]; dup {
				path := fmt.Sprintf("entries[%s][%d]", strconv.Quote(src.Name), j)
				return apperrors.New(apperrors.ErrMalformedDocument, "restore", path, errors.New(rec.Key().String()))
			}
			st.publish(rec.Clone())
		}
		st.published = true
		suites = append(suites, st)
	}

	s.suites.Range(func(k, _ any) bool {
		s.suites.Delete(k)
		return true
	})
	for _, st := range suites {
		s.suites.Store(st.name, st)
	}
	s.created.Store(int64(len(suites)))
	s.lastUpdate.Store(doc.LastUpdate)

	s.metaMu.Lock()
	s.repoURL = doc.RepoURL
	s.extensions = doc.Extensions
	s.metaMu.Unlock()

	slog.Debug("history restored", "suites", len(suites), "records", doc.RecordCount())
	return nil
}
