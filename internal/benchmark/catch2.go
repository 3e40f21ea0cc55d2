package benchmark

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ToolCatch2 tags runs produced by the Catch2 harness.
const ToolCatch2 = "catch2"

type catch2TestCase struct {
	Name    string               `xml:"name,attr"`
	Results []catch2BenchResults `xml:"BenchmarkResults"`
}

type catch2BenchResults struct {
	Name       string          `xml:"name,attr"`
	Samples    int             `xml:"samples,attr"`
	Iterations int             `xml:"iterations,attr"`
	Mean       *catch2Estimate `xml:"mean"`
	StdDev     *catch2Estimate `xml:"standardDeviation"`
}

type catch2Estimate struct {
	Value float64 `xml:"value,attr"`
}

// ParseCatch2XML converts the output of Catch2's XML reporter into
// measurements in nanoseconds, one per BenchmarkResults element. Test cases
// are found at any depth, so both the Catch2 v2 and v3 layouts are read. A
// measurement is named "<test case>: <benchmark>", where the test case name
// is cut at " - " to drop the template parameter.
func ParseCatch2XML(r io.Reader) ([]Measurement, error) {
	dec := xml.NewDecoder(r)
	var out []Measurement
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse catch2 xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "TestCase" {
			continue
		}

		var tc catch2TestCase
		if err := dec.DecodeElement(&tc, &start); err != nil {
			return nil, fmt.Errorf("failed to parse catch2 test case: %w", err)
		}
		group, _, _ := strings.Cut(tc.Name, " - ")
		for _, res := range tc.Results {
			if res.Mean == nil {
				return nil, fmt.Errorf("catch2 benchmark %q has no mean", res.Name)
			}
			var sd float64
			if res.StdDev != nil {
				sd = res.StdDev.Value
			}
			name := strings.TrimSpace(res.Name)
			if group != "" {
				name = group + ": " + name
			}
			extra := fmt.Sprintf("%d samples\n%d iterations", res.Samples, res.Iterations)
			out = append(out, NewMeasurement(name, res.Mean.Value, sd, "ns", extra))
		}
	}
}
