// Package regression compares a run against the most recent prior
// occurrence of each of its measurements and classifies the change.
package regression

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"benchhist/internal/benchmark"
	apperrors "benchhist/internal/errors"
	"benchhist/internal/history"
)

// Kind is the classification of one comparison.
type Kind int

const (
	NoChange Kind = iota
	Regression
	Improvement
)

func (k Kind) String() string {
	switch k {
	case Regression:
		return "regression"
	case Improvement:
		return "improvement"
	default:
		return "no_change"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Policy selects how the threshold is applied.
type Policy string

const (
	// PolicyPlain compares the ratio against the threshold alone.
	PolicyPlain Policy = "plain"
	// PolicyDispersion widens the threshold by the combined relative
	// dispersion of both measurements, scaled by Sigma.
	PolicyDispersion Policy = "dispersion"
)

// ParsePolicy validates a policy name. The empty string selects PolicyPlain.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPlain:
		return PolicyPlain, nil
	case PolicyDispersion:
		return PolicyDispersion, nil
	default:
		return "", fmt.Errorf("unknown comparator policy: %s", s)
	}
}

// Source is the read side of the history store.
type Source interface {
	Len(suite string) int
	Position(suite string, key benchmark.Key) (int, bool)
	LatestBefore(suite, name string, seq int) (history.Occurrence, bool)
}

// Baseline identifies the occurrence a measurement was compared against.
type Baseline struct {
	Name       string  `json:"name"`
	Seq        int     `json:"seq"`
	CommitID   string  `json:"commitId"`
	Date       int64   `json:"date"`
	Value      float64 `json:"value"`
	Dispersion float64 `json:"dispersion"`
}

// Verdict is the outcome for one measurement that had a baseline.
type Verdict struct {
	Name        string              `json:"name"`
	Kind        Kind                `json:"verdict"`
	Ratio       float64             `json:"ratio"`
	Threshold   float64             `json:"threshold"`
	Unit        string              `json:"unit"`
	Direction   benchmark.Direction `json:"-"`
	UnknownUnit bool                `json:"unknownUnit,omitempty"`
	Value       float64             `json:"value"`
	// Dispersion is one standard deviation in the unit of Value.
	Dispersion  float64             `json:"dispersion"`
	Baseline    Baseline            `json:"baseline"`
}

// MarshalJSON renders an infinite ratio as the string "+Inf".
func (v Verdict) MarshalJSON() ([]byte, error) {
	type plain Verdict
	out := struct {
		plain
		Ratio any `json:"ratio"`
	}{plain: plain(v), Ratio: v.Ratio}
	if math.IsInf(v.Ratio, 1) {
		out.Ratio = "+Inf"
	}
	return json.Marshal(out)
}

// Skip records a measurement that could not be compared.
type Skip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Report is the outcome of evaluating one record.
type Report struct {
	ID        string    `json:"id,omitempty"`
	Suite     string    `json:"suite"`
	CommitID  string    `json:"commitId"`
	Tool      string    `json:"tool"`
	Date      int64     `json:"date"`
	Policy    Policy    `json:"policy"`
	Threshold float64   `json:"threshold"`
	Verdicts  []Verdict `json:"verdicts"`
	Skipped   []Skip    `json:"skipped"`
	// New lists measurements with no prior occurrence.
	New []string `json:"new"`
}

func (r *Report) filter(kind Kind) []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

// Regressions returns the verdicts classified as Regression.
func (r *Report) Regressions() []Verdict { return r.filter(Regression) }

// Improvements returns the verdicts classified as Improvement.
func (r *Report) Improvements() []Verdict { return r.filter(Improvement) }

// HasRegression reports whether any verdict is a Regression.
func (r *Report) HasRegression() bool {
	for _, v := range r.Verdicts {
		if v.Kind == Regression {
			return true
		}
	}
	return false
}

// Options configures an Analyzer.
type Options struct {
	// Threshold is the fractional tolerance: 1.0 flags a run twice as slow.
	Threshold float64
	Policy    Policy
	// Sigma scales the combined dispersion under PolicyDispersion.
	Sigma float64
	// SuiteThresholds overrides Threshold per suite.
	SuiteThresholds map[string]float64
	// Aliases lists, per measurement name, former names whose history it
	// continues. Names without an entry only match themselves.
	Aliases map[string][]string
	Units   *benchmark.Units
}

// DefaultOptions flags runs that take more than twice as long.
func DefaultOptions() Options {
	return Options{
		Threshold: 1.0,
		Policy:    PolicyPlain,
		Sigma:     1.0,
	}
}

// Analyzer evaluates records against history. It holds no mutable state and
// may be shared between goroutines.
type Analyzer struct {
	opts  Options
	units *benchmark.Units
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	units := opts.Units
	if units == nil {
		units = benchmark.NewUnits(nil)
	}
	if opts.Policy == "" {
		opts.Policy = PolicyPlain
	}
	return &Analyzer{opts: opts, units: units}
}

// ThresholdFor returns the threshold that applies to suite.
func (a *Analyzer) ThresholdFor(suite string) float64 {
	if t, ok := a.opts.SuiteThresholds[suite]; ok {
		return t
	}
	return a.opts.Threshold
}

// Evaluate compares every measurement in rec with its baseline in suite. When
// rec is already stored the baseline is searched strictly before it,
// otherwise before the suite tail. Measurements that cannot be compared are
// reported in Skipped; they never abort the evaluation.
func (a *Analyzer) Evaluate(src Source, suite string, rec benchmark.Record) *Report {
	threshold := a.ThresholdFor(suite)
	report := &Report{
		Suite:     suite,
		CommitID:  rec.Commit.ID,
		Tool:      rec.Tool,
		Date:      rec.Date,
		Policy:    a.opts.Policy,
		Threshold: threshold,
		Verdicts:  []Verdict{},
		Skipped:   []Skip{},
		New:       []string{},
	}

	before := src.Len(suite)
	if seq, ok := src.Position(suite, rec.Key()); ok {
		before = seq
	}

	seen := make(map[string]bool, len(rec.Benches))
	for _, m := range rec.Benches {
		if err := m.Validate(); err != nil {
			report.skip(m.Name, "invalid measurement", err)
			continue
		}
		if seen[m.Name] {
			report.skip(m.Name, "duplicate name in record", nil)
			continue
		}
		seen[m.Name] = true

		base, ok := a.baseline(src, suite, m.Name, before)
		if !ok {
			report.New = append(report.New, m.Name)
			continue
		}

		v, err := a.compare(m, base, rec.Tool, threshold)
		if err != nil {
			report.skip(m.Name, "", err)
			continue
		}
		report.Verdicts = append(report.Verdicts, v)
	}

	return report
}

func (r *Report) skip(name, reason string, cause error) {
	var err error
	switch {
	case cause == nil:
		err = apperrors.Newf(apperrors.ErrIncomparableMeasurement, "evaluate", name, "%s", reason)
	case reason == "":
		err = apperrors.New(apperrors.ErrIncomparableMeasurement, "evaluate", name, cause)
	default:
		err = apperrors.New(apperrors.ErrIncomparableMeasurement, "evaluate", name, fmt.Errorf("%s: %w", reason, cause))
	}
	text := reason
	if cause != nil {
		if text == "" {
			text = cause.Error()
		} else {
			text += ": " + cause.Error()
		}
	}
	r.Skipped = append(r.Skipped, Skip{Name: name, Reason: text, Err: err})
}

// baseline finds the latest occurrence of name or any of its aliases before
// position seq.
func (a *Analyzer) baseline(src Source, suite, name string, seq int) (history.Occurrence, bool) {
	best, found := src.LatestBefore(suite, name, seq)
	for _, alias := range a.opts.Aliases[name] {
		occ, ok := src.LatestBefore(suite, alias, seq)
		if ok && (!found || occ.Seq > best.Seq) {
			best, found = occ, true
		}
	}
	return best, found
}

func (a *Analyzer) compare(m benchmark.Measurement, base history.Occurrence, tool string, threshold float64) (Verdict, error) {
	old := base.Measurement
	if err := old.Validate(); err != nil {
		return Verdict{}, fmt.Errorf("invalid baseline from commit %s: %w", base.CommitID, err)
	}
	if old.Unit != m.Unit {
		return Verdict{}, fmt.Errorf("unit mismatch: baseline %q, new %q", old.Unit, m.Unit)
	}

	dir, known := a.units.Lookup(m.Unit, tool)
	ratio := Ratio(old.Value, m.Value, dir)

	oldDisp, newDisp := old.StdDev(base.Tool), m.StdDev(tool)
	effective := threshold
	if a.opts.Policy == PolicyDispersion {
		effective += a.opts.Sigma * math.Hypot(relative(oldDisp, old.Value), relative(newDisp, m.Value))
	}

	return Verdict{
		Name:        m.Name,
		Kind:        Classify(ratio, effective),
		Ratio:       ratio,
		Threshold:   effective,
		Unit:        m.Unit,
		Direction:   dir,
		UnknownUnit: !known,
		Value:       m.Value,
		Dispersion:  newDisp,
		Baseline: Baseline{
			Name:       old.Name,
			Seq:        base.Seq,
			CommitID:   base.CommitID,
			Date:       base.Date,
			Value:      old.Value,
			Dispersion: oldDisp,
		},
	}, nil
}

func relative(dispersion, value float64) float64 {
	if value == 0 {
		return 0
	}
	return dispersion / value
}

// Ratio expresses the change from old to new so that values above 1 are
// always worse. A zero denominator yields +Inf, or 1 when both are zero.
func Ratio(old, new float64, dir benchmark.Direction) float64 {
	num, den := new, old
	if dir == benchmark.HigherIsBetter {
		num, den = old, new
	}
	if den == 0 {
		if num > 0 {
			return math.Inf(1)
		}
		return 1
	}
	return num / den
}

// Classify maps a ratio to a Kind for the given threshold.
func Classify(ratio, threshold float64) Kind {
	switch {
	case ratio > 1+threshold:
		return Regression
	case ratio < 1-threshold:
		return Improvement
	default:
		return NoChange
	}
}
