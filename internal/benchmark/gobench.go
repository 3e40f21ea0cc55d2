package benchmark

import (
	"fmt"
	"io"
	"math"
	"sort"

	"golang.org/x/tools/benchmark/parse"
)

type goMetric struct {
	flag  int
	unit  string
	value func(b *parse.Benchmark) float64
}

// Primary metric first; it keeps the bare benchmark name.
var goMetrics = []goMetric{
	{parse.NsPerOp, "ns/op", func(b *parse.Benchmark) float64 { return b.NsPerOp }},
	{parse.AllocedBytesPerOp, "B/op", func(b *parse.Benchmark) float64 { return float64(b.AllocedBytesPerOp) }},
	{parse.AllocsPerOp, "allocs/op", func(b *parse.Benchmark) float64 { return float64(b.AllocsPerOp) }},
	{parse.MBPerS, "MB/s", func(b *parse.Benchmark) float64 { return b.MBPerS }},
}

// ParseGoBench converts `go test -bench` output into measurements. Repeated
// runs of one benchmark (-count) collapse into their mean with the sample
// standard deviation as dispersion. Benchmarks keep the order in which they
// first appear.
func ParseGoBench(r io.Reader) ([]Measurement, error) {
	set, err := parse.ParseSet(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse benchmark output: %w", err)
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return set[names[i]][0].Ord < set[names[j]][0].Ord
	})

	var out []Measurement
	for _, name := range names {
		runs := set[name]
		extra := fmt.Sprintf("%d times\n%d runs", runs[0].N, len(runs))

		for i, metric := range goMetrics {
			var values []float64
			for _, run := range runs {
				if run.Measured&metric.flag != 0 {
					values = append(values, metric.value(run))
				}
			}
			if len(values) == 0 {
				continue
			}

			mName := name
			if i > 0 {
				mName = name + " - " + metric.unit
			}
			mean, sd := meanStddev(values)
			out = append(out, NewMeasurement(mName, mean, sd, metric.unit, extra))
		}
	}
	return out, nil
}

func meanStddev(values []float64) (mean, sd float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(values)-1))
}
