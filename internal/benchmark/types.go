package benchmark

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Extensions holds JSON fields this version does not understand. They are
// kept verbatim so a later save does not drop them.
type Extensions map[string]json.RawMessage

func (e Extensions) clone() Extensions {
	if e == nil {
		return nil
	}
	out := make(Extensions, len(e))
	for k, v := range e {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Measurement is one named metric from one run.
type Measurement struct {
	Name  string
	Value float64
	// Range is the dispersion as published by the harness, e.g. "± 1.04175".
	Range string
	Unit  string
	// Extra is free-form sample metadata such as "100 samples\n3 iterations".
	Extra      string
	Extensions Extensions

	blank blanks
}

// NewMeasurement builds a measurement with the range rendered from an
// absolute dispersion.
func NewMeasurement(name string, value, dispersion float64, unit, extra string) Measurement {
	return Measurement{
		Name:  name,
		Value: value,
		Range: FormatRange(dispersion),
		Unit:  unit,
		Extra: extra,
	}
}

// Dispersion returns the absolute uncertainty associated with Value.
func (m Measurement) Dispersion() float64 {
	return ParseRange(m.Range, m.Value)
}

// StdDev returns one standard deviation of Value as published by tool.
func (m Measurement) StdDev(tool string) float64 {
	return StdDev(m.Range, m.Value, m.Unit, tool)
}

// Validate checks the invariants a measurement must hold to be compared.
func (m Measurement) Validate() error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("empty name")
	case math.IsNaN(m.Value) || math.IsInf(m.Value, 0):
		return fmt.Errorf("value %v is not finite", m.Value)
	case m.Value < 0:
		return fmt.Errorf("negative value %v", m.Value)
	case m.Unit == "":
		return fmt.Errorf("empty unit")
	}
	if d := m.Dispersion(); math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return fmt.Errorf("invalid dispersion %q", m.Range)
	}
	return nil
}

// Clone returns a copy that shares no extension storage with m.
func (m Measurement) Clone() Measurement {
	m.Extensions = m.Extensions.clone()
	m.blank = m.blank.clone()
	return m
}

// Person identifies a commit author or committer.
type Person struct {
	Name       string
	Username   string
	Extensions Extensions

	blank blanks
}

func (p *Person) clone() *Person {
	if p == nil {
		return nil
	}
	out := *p
	out.Extensions = p.Extensions.clone()
	out.blank = p.blank.clone()
	return &out
}

// Commit is the source revision a run was recorded against. Only ID takes
// part in identity; the rest is carried for the published document.
type Commit struct {
	Author    *Person
	Committer *Person
	ID        string
	Message   string
	// Timestamp is kept as the ISO-8601 text it was published with.
	Timestamp  string
	URL        string
	Extensions Extensions

	blank blanks
}

// Record is one execution of a suite against one commit.
type Record struct {
	Commit Commit
	// Date is the completion instant in epoch milliseconds.
	Date       int64
	Tool       string
	Benches    []Measurement
	Extensions Extensions
}

// Key identifies a record within a suite.
type Key struct {
	CommitID string
	Tool     string
	Date     int64
}

func (k Key) String() string {
	return fmt.Sprintf("commit=%s tool=%s date=%d", k.CommitID, k.Tool, k.Date)
}

// NewRecord builds a record for commitID completed at the given instant.
func NewRecord(commitID, tool string, at time.Time, benches []Measurement) Record {
	return Record{
		Commit: Commit{
			ID:        commitID,
			Timestamp: at.UTC().Format(time.RFC3339),
		},
		Date:    at.UnixMilli(),
		Tool:    tool,
		Benches: benches,
	}
}

// Key returns the (commit, tool, date) identity of the record.
func (r Record) Key() Key {
	return Key{CommitID: r.Commit.ID, Tool: r.Tool, Date: r.Date}
}

// Time returns Date as a time.Time.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Date)
}

// Clone returns a deep copy so the caller can no longer mutate stored state.
func (r Record) Clone() Record {
	out := r
	out.Commit.Author = r.Commit.Author.clone()
	out.Commit.Committer = r.Commit.Committer.clone()
	out.Commit.Extensions = r.Commit.Extensions.clone()
	out.Commit.blank = r.Commit.blank.clone()
	out.Extensions = r.Extensions.clone()
	if r.Benches != nil {
		out.Benches = make([]Measurement, len(r.Benches))
		for i, m := range r.Benches {
			out.Benches[i] = m.Clone()
		}
	}
	return out
}
