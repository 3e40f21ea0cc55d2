package benchmark

import "strings"

// Direction tells which way a measurement improves.
type Direction int

const (
	LowerIsBetter Direction = iota
	HigherIsBetter
)

func (d Direction) String() string {
	if d == HigherIsBetter {
		return "higher_is_better"
	}
	return "lower_is_better"
}

// Tool tags that fix the direction regardless of unit.
const (
	ToolBiggerIsBetter  = "customBiggerIsBetter"
	ToolSmallerIsBetter = "customSmallerIsBetter"
	ToolGo              = "go"
)

var defaultDirections = map[string]Direction{
	// time
	"ns": LowerIsBetter, "us": LowerIsBetter, "µs": LowerIsBetter, "μs": LowerIsBetter,
	"ms": LowerIsBetter, "s": LowerIsBetter, "sec": LowerIsBetter,
	"ns/op": LowerIsBetter, "ns/iter": LowerIsBetter, "us/iter": LowerIsBetter,
	"ms/iter": LowerIsBetter, "s/iter": LowerIsBetter, "sec/iter": LowerIsBetter,
	// size
	"b": LowerIsBetter, "bytes": LowerIsBetter, "kb": LowerIsBetter, "mb": LowerIsBetter,
	"gb": LowerIsBetter, "kib": LowerIsBetter, "mib": LowerIsBetter, "gib": LowerIsBetter,
	"b/op": LowerIsBetter, "allocs/op": LowerIsBetter,
	// throughput
	"ops/s": HigherIsBetter, "ops/sec": HigherIsBetter, "op/s": HigherIsBetter,
	"iter/s": HigherIsBetter, "iter/sec": HigherIsBetter, "hz": HigherIsBetter,
	"b/s": HigherIsBetter, "kb/s": HigherIsBetter, "mb/s": HigherIsBetter,
	"gb/s": HigherIsBetter, "req/s": HigherIsBetter, "items/s": HigherIsBetter,
}

// Units maps unit strings to their direction. The zero value is not usable;
// use NewUnits.
type Units struct {
	dirs map[string]Direction
}

// NewUnits returns the built-in table with the given overrides applied.
func NewUnits(overrides map[string]Direction) *Units {
	u := &Units{dirs: make(map[string]Direction, len(defaultDirections)+len(overrides))}
	for k, v := range defaultDirections {
		u.dirs[k] = v
	}
	for k, v := range overrides {
		u.dirs[normalizeUnit(k)] = v
	}
	return u
}

// Lookup returns the direction for a unit produced by tool. known is false
// when neither the tool nor the unit table decides it; the direction then
// falls back to LowerIsBetter.
func (u *Units) Lookup(unit, tool string) (dir Direction, known bool) {
	switch tool {
	case ToolBiggerIsBetter:
		return HigherIsBetter, true
	case ToolSmallerIsBetter:
		return LowerIsBetter, true
	}
	dir, known = u.dirs[normalizeUnit(unit)]
	return dir, known
}

func normalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}
