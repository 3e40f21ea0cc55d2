package benchmark

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGoBench(t *testing.T) {
	output := `
goos: linux
goarch: amd64
pkg: benchhist/internal/history
BenchmarkAppend-16        	 1000000	      1000 ns/op	      64 B/op	       2 allocs/op
BenchmarkLatest-16        	 5000000	       250 ns/op	      10.00 MB/s
BenchmarkAppend-16        	 1000000	      1200 ns/op	      64 B/op	       2 allocs/op
PASS
ok  	benchhist/internal/history	1.500s
`
	ms, err := ParseGoBench(strings.NewReader(output))
	require.NoError(t, err)

	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name
	}
	assert.Equal(t, []string{
		"BenchmarkAppend-16",
		"BenchmarkAppend-16 - B/op",
		"BenchmarkAppend-16 - allocs/op",
		"BenchmarkLatest-16",
		"BenchmarkLatest-16 - MB/s",
	}, names)

	appendNs := ms[0]
	assert.Equal(t, "ns/op", appendNs.Unit)
	assert.InDelta(t, 1100, appendNs.Value, 1e-9)
	assert.InDelta(t, math.Sqrt(20000), appendNs.Dispersion(), 1e-9)
	assert.Equal(t, "1000000 times\n2 runs", appendNs.Extra)

	assert.Equal(t, "B/op", ms[1].Unit)
	assert.InDelta(t, 64, ms[1].Value, 1e-9)
	assert.Zero(t, ms[1].Dispersion())

	assert.Equal(t, "MB/s", ms[4].Unit)
	assert.InDelta(t, 10, ms[4].Value, 1e-9)

	for _, m := range ms {
		assert.NoError(t, m.Validate())
	}
}

func TestParseGoBench_Empty(t *testing.T) {
	ms, err := ParseGoBench(strings.NewReader("PASS\n"))
	require.NoError(t, err)
	assert.Empty(t, ms)
}
