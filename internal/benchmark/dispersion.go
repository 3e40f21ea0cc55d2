package benchmark

import (
	"strconv"
	"strings"
)

var rangePrefixes = []string{"±", "+/-", "+-", "stddev:", "sd:"}

// ParseRange extracts the absolute dispersion from a published range string.
// A trailing "%" is read relative to value. Text that carries no number
// yields 0.
func ParseRange(s string, value float64) float64 {
	s = strings.TrimSpace(s)
	for _, p := range rangePrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	if s == "" {
		return 0
	}

	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))

	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if percent {
		return d / 100 * value
	}
	return d
}

// FormatRange renders an absolute dispersion the way ranges are published.
func FormatRange(d float64) string {
	return "± " + strconv.FormatFloat(d, 'g', -1, 64)
}

// Spread names what a published range measures.
type Spread int

const (
	// SpreadStdDev is one standard deviation.
	SpreadStdDev Spread = iota
	// SpreadCI95 is the half-width of a 95% confidence interval.
	SpreadCI95
	// SpreadCI999 is the half-width of a 99.9% confidence interval.
	SpreadCI999
)

// z is the number of standard deviations the spread covers.
func (s Spread) z() float64 {
	switch s {
	case SpreadCI95:
		return 1.959964
	case SpreadCI999:
		return 3.290527
	default:
		return 1
	}
}

type rangeConvention struct {
	spread Spread
	// unitless ranges are printed without their own unit, which the harness
	// may have chosen finer than the unit of the value.
	unitless bool
}

// rangeConventions maps tool tags to how their ranges are published. Tools
// not listed publish a standard deviation in the unit of the value.
var rangeConventions = map[string]rangeConvention{
	ToolCatch2:    {spread: SpreadStdDev, unitless: true},
	"benchmarkjs": {spread: SpreadCI95},
	"jmh":         {spread: SpreadCI999},
}

// timeLadder lists time units from coarse to fine, 1000 apart.
var timeLadder = [][]string{{"s", "sec"}, {"ms"}, {"us", "µs", "μs"}, {"ns"}}

// RangeSpread reports how ranges published by tool are to be read.
func RangeSpread(tool string) Spread {
	return rangeConventions[tool].spread
}

// StdDev converts a published range into one standard deviation in the unit
// of value, following the conventions of the tool that produced it.
func StdDev(rng string, value float64, unit, tool string) float64 {
	d := ParseRange(rng, value)
	c := rangeConventions[tool]
	if c.unitless && !strings.HasSuffix(strings.TrimSpace(rng), "%") {
		d = rescale(d, value, unit)
	}
	return d / c.spread.z()
}

// rescale moves a spread larger than value down the time ladder until it
// fits, at most to nanoseconds.
func rescale(d, value float64, unit string) float64 {
	unit = normalizeUnit(unit)
	step := -1
	for i, names := range timeLadder {
		for _, n := range names {
			if n == unit {
				step = i
			}
		}
	}
	if step < 0 {
		return d
	}
	for ; d > value && step < len(timeLadder)-1; step++ {
		d /= 1000
	}
	return d
}
