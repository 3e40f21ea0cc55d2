package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"benchhist/internal/benchmark"
	"benchhist/internal/codec"
	apperrors "benchhist/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(commit string, date int64, benches ...benchmark.Measurement) benchmark.Record {
	return benchmark.Record{
		Commit:  benchmark.Commit{ID: commit},
		Date:    date,
		Tool:    "catch2",
		Benches: benches,
	}
}

func us(name string, v float64) benchmark.Measurement {
	return benchmark.NewMeasurement(name, v, 0.5, "us", "")
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestAppend_LatestAndPosition(t *testing.T) {
	ctx := context.Background()
	s := NewStore(WithClock(fixedClock(42)))

	ref, err := s.Append(ctx, "S", run("c1", 100, us("iter1d", 14.57)))
	require.NoError(t, err)
	assert.Equal(t, Ref{Suite: "S", Seq: 0, Key: benchmark.Key{CommitID: "c1", Tool: "catch2", Date: 100}}, ref)

	ref, err = s.Append(ctx, "S", run("c2", 200, us("iter1d", 87.2)))
	require.NoError(t, err)
	assert.Equal(t, 1, ref.Seq)

	occ, ok := s.Latest("S", "iter1d")
	require.True(t, ok)
	assert.Equal(t, 1, occ.Seq)
	assert.Equal(t, "c2", occ.CommitID)
	assert.Equal(t, 87.2, occ.Measurement.Value)

	occ, ok = s.LatestBefore("S", "iter1d", 1)
	require.True(t, ok)
	assert.Equal(t, "c1", occ.CommitID)

	_, ok = s.LatestBefore("S", "iter1d", 0)
	assert.False(t, ok)
	_, ok = s.Latest("S", "missing")
	assert.False(t, ok)
	_, ok = s.Latest("other", "iter1d")
	assert.False(t, ok)

	seq, ok := s.Position("S", benchmark.Key{CommitID: "c2", Tool: "catch2", Date: 200})
	require.True(t, ok)
	assert.Equal(t, 1, seq)
	_, ok = s.Position("S", benchmark.Key{CommitID: "c2", Tool: "go", Date: 200})
	assert.False(t, ok)

	assert.Equal(t, 2, s.Len("S"))
	assert.Equal(t, int64(42), s.LastUpdate())
}

func TestAppend_RejectsDuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Append(ctx, "S", run("c1", 100, us("a", 1)))
	require.NoError(t, err)

	_, err = s.Append(ctx, "S", run("c1", 100, us("a", 2)))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateIdentity)
	assert.Equal(t, 1, s.Len("S"))

	occ, _ := s.Latest("S", "a")
	assert.Equal(t, 1.0, occ.Measurement.Value)

	// same commit, different date or tool is a distinct run
	_, err = s.Append(ctx, "S", run("c1", 101, us("a", 3)))
	require.NoError(t, err)
	other := run("c1", 100, us("a", 4))
	other.Tool = "go"
	_, err = s.Append(ctx, "S", other)
	require.NoError(t, err)

	// identity is scoped to the suite
	_, err = s.Append(ctx, "T", run("c1", 100, us("a", 5)))
	require.NoError(t, err)
}

func TestAppend_InvalidRecord(t *testing.T) {
	s := NewStore()
	_, err := s.Append(context.Background(), "", run("c1", 1))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRecord)

	_, err = s.Append(context.Background(), "S", run("", 1))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRecord)
	assert.Empty(t, s.Suites())
}

func TestAppend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore().Append(ctx, "S", run("c1", 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatestBefore_SkipsGaps(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Append(ctx, "S", run("c0", 1, us("A", 1), us("B", 10)))
	require.NoError(t, err)
	_, err = s.Append(ctx, "S", run("c1", 2, us("A", 2)))
	require.NoError(t, err)
	_, err = s.Append(ctx, "S", run("c2", 3, us("A", 3), us("B", 30)))
	require.NoError(t, err)

	occ, ok := s.LatestBefore("S", "B", 2)
	require.True(t, ok)
	assert.Equal(t, 0, occ.Seq)
	assert.Equal(t, 10.0, occ.Measurement.Value)

	occ, ok = s.LatestBefore("S", "A", 2)
	require.True(t, ok)
	assert.Equal(t, 1, occ.Seq)
}

func TestLatest_DuplicateNameUsesFirstOccurrence(t *testing.T) {
	s := NewStore()
	_, err := s.Append(context.Background(), "S", run("c0", 1, us("Baseline", 8), us("Baseline", 9)))
	require.NoError(t, err)

	occ, ok := s.Latest("S", "Baseline")
	require.True(t, ok)
	assert.Equal(t, 8.0, occ.Measurement.Value)
	assert.Len(t, s.Records("S")[0].Benches, 2)
	assert.Equal(t, []string{"Baseline"}, s.Names("S"))
}

func collect(seq func(func(Occurrence) bool)) []Occurrence {
	var out []Occurrence
	for occ := range seq {
		out = append(out, occ)
	}
	return out
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i := 0; i < 5; i++ {
		benches := []benchmark.Measurement{us("other", 1)}
		if i != 2 {
			benches = append(benches, us("x", float64(i)))
		}
		_, err := s.Append(ctx, "S", run(fmt.Sprintf("c%d", i), int64(i), benches...))
		require.NoError(t, err)
	}

	seq := s.History("S", "x", 3)
	got := collect(seq)
	require.Len(t, got, 3)
	assert.Equal(t, []int{4, 3, 1}, []int{got[0].Seq, got[1].Seq, got[2].Seq})
	assert.Equal(t, 4.0, got[0].Measurement.Value)

	// appends after the call are not observed, and the sequence restarts
	_, err := s.Append(ctx, "S", run("c5", 5, us("x", 5)))
	require.NoError(t, err)
	assert.Equal(t, got, collect(seq))

	assert.Len(t, collect(s.History("S", "x", 100)), 5)
	assert.Empty(t, collect(s.History("S", "x", 0)))
	assert.Empty(t, collect(s.History("S", "x", -1)))
	assert.Empty(t, collect(s.History("missing", "x", 10)))

	// early break stops the iteration
	n := 0
	for range s.History("S", "x", 10) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestAppend_StoresCopy(t *testing.T) {
	s := NewStore()
	rec := run("c0", 1, us("a", 1))
	rec.Commit.Author = &benchmark.Person{Name: "dfm"}
	_, err := s.Append(context.Background(), "S", rec)
	require.NoError(t, err)

	rec.Benches[0].Value = 99
	rec.Commit.Author.Name = "mallory"

	stored := s.Records("S")[0]
	assert.Equal(t, 1.0, stored.Benches[0].Value)
	assert.Equal(t, "dfm", stored.Commit.Author.Name)

	stored.Benches[0].Value = 77
	occ, _ := s.Latest("S", "a")
	assert.Equal(t, 1.0, occ.Measurement.Value)
}

type journalFunc func(ctx context.Context, suite string, seq int, rec benchmark.Record) error

func (f journalFunc) Append(ctx context.Context, suite string, seq int, rec benchmark.Record) error {
	return f(ctx, suite, seq, rec)
}

func TestAppend_JournalFailureStoresNothing(t *testing.T) {
	fail := true
	var seqs []int
	j := journalFunc(func(_ context.Context, _ string, seq int, _ benchmark.Record) error {
		if fail {
			return errors.New("disk full")
		}
		seqs = append(seqs, seq)
		return nil
	})
	s := NewStore(WithJournal(j), WithClock(fixedClock(7)))

	_, err := s.Append(context.Background(), "S", run("c0", 1, us("a", 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 0, s.Len("S"))
	assert.Empty(t, s.Suites())
	assert.Zero(t, s.LastUpdate())

	fail = false
	_, err = s.Append(context.Background(), "S", run("c0", 1, us("a", 1)))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, seqs)
	assert.Equal(t, []string{"S"}, s.Suites())
}

func TestAppend_JournalKindPreserved(t *testing.T) {
	j := journalFunc(func(_ context.Context, suite string, _ int, _ benchmark.Record) error {
		return apperrors.Newf(apperrors.ErrDuplicateIdentity, "journal", suite, "unique violation")
	})
	_, err := NewStore(WithJournal(j)).Append(context.Background(), "S", run("c0", 1))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateIdentity)
	assert.NotErrorIs(t, err, apperrors.ErrStorageUnavailable)
}

func TestLastUpdate_Monotonic(t *testing.T) {
	now := int64(500)
	s := NewStore(WithClock(func() time.Time { return time.UnixMilli(now) }))
	ctx := context.Background()

	_, err := s.Append(ctx, "S", run("c0", 1))
	require.NoError(t, err)
	now = 100
	_, err = s.Append(ctx, "S", run("c1", 2))
	require.NoError(t, err)
	assert.Equal(t, int64(500), s.LastUpdate())
}

func TestAppend_OutOfOrderDateAccepted(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Append(ctx, "S", run("c0", 200, us("a", 1)))
	require.NoError(t, err)
	_, err = s.Append(ctx, "S", run("c1", 100, us("a", 2)))
	require.NoError(t, err)

	occ, _ := s.Latest("S", "a")
	assert.Equal(t, "c1", occ.CommitID)
}

func TestSuites_CreationOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.Append(ctx, name, run("c", 1))
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, "alpha", run("d", 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, s.Suites())
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	s := NewStore(WithRepoURL("https://github.com/dfm/libkepler"), WithClock(fixedClock(1670355947881)))
	_, err := s.Append(ctx, "Kepler benchmarks", run("c0", 1, us("iter1d", 14.57)))
	require.NoError(t, err)
	_, err = s.Append(ctx, "Kepler benchmarks", run("c1", 2, us("iter1d", 87.2)))
	require.NoError(t, err)
	_, err = s.Append(ctx, "Other", run("c0", 1, us("x", 1)))
	require.NoError(t, err)

	doc := s.Snapshot()
	assert.Equal(t, int64(1670355947881), doc.LastUpdate)
	assert.Equal(t, "https://github.com/dfm/libkepler", doc.RepoURL)
	require.Len(t, doc.Suites, 2)
	assert.Equal(t, "Kepler benchmarks", doc.Suites[0].Name)

	restored := NewStore()
	require.NoError(t, restored.Restore(doc))
	assert.Equal(t, doc, restored.Snapshot())

	occ, ok := restored.LatestBefore("Kepler benchmarks", "iter1d", 1)
	require.True(t, ok)
	assert.Equal(t, 14.57, occ.Measurement.Value)

	// appends continue after the restored tail
	ref, err := restored.Append(ctx, "Kepler benchmarks", run("c2", 3, us("iter1d", 15)))
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Seq)
	_, err = restored.Append(ctx, "Other", run("c0", 1))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateIdentity)
}

func TestRestore_KeepsEmptySuitesAndExtensions(t *testing.T) {
	doc := &codec.Document{
		LastUpdate: 9,
		Suites:     []codec.Suite{{Name: "empty"}},
		Extensions: benchmark.Extensions{"schema": []byte(`2`)},
	}
	s := NewStore()
	require.NoError(t, s.Restore(doc))
	assert.Equal(t, []string{"empty"}, s.Suites())
	assert.Equal(t, doc, s.Snapshot())
}

func TestRestore_RejectsDuplicateIdentity(t *testing.T) {
	s := NewStore()
	_, err := s.Append(context.Background(), "keep", run("c0", 1))
	require.NoError(t, err)

	doc := &codec.Document{Suites: []codec.Suite{{
		Name:    "S",
		Records: []benchmark.Record{run("c0", 1), run("c1", 2), run("c0", 1)},
	}}}
	err = s.Restore(doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedDocument)

	var e *apperrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, `entries["S"][2]`, e.Subject)
	assert.Equal(t, []string{"keep"}, s.Suites())

	err = s.Restore(&codec.Document{Suites: []codec.Suite{{Name: "S"}, {Name: "S"}}})
	assert.ErrorIs(t, err, apperrors.ErrMalformedDocument)
}

func TestAppend_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	const (
		suites  = 8
		writers = 4
		perW    = 50
	)

	var wg sync.WaitGroup
	var dupMu sync.Mutex
	dups := 0
	for si := 0; si < suites; si++ {
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(si, w int) {
				defer wg.Done()
				suite := fmt.Sprintf("suite-%d", si)
				for i := 0; i < perW; i++ {
					// every writer of a suite races on the same identities
					_, err := s.Append(ctx, suite, run(fmt.Sprintf("c%d", i), int64(i), us("x", float64(w))))
					if errors.Is(err, apperrors.ErrDuplicateIdentity) {
						dupMu.Lock()
						dups++
						dupMu.Unlock()
						continue
					}
					assert.NoError(t, err)
				}
			}(si, w)
		}
	}

	// readers run alongside the writers
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			for range s.History("suite-0", "x", 10) {
			}
			s.Latest("suite-1", "x")
			s.Snapshot()
		}
	}()

	wg.Wait()
	<-done

	assert.Len(t, s.Suites(), suites)
	for si := 0; si < suites; si++ {
		name := fmt.Sprintf("suite-%d", si)
		assert.Equal(t, perW, s.Len(name))
		assert.Len(t, collect(s.History(name, "x", 1000)), perW)
	}
	assert.Equal(t, suites*(writers-1)*perW, dups)
}
