package config

import (
	"os"
	"path/filepath"
	"testing"

	"benchhist/internal/benchmark"
	"benchhist/internal/regression"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	defer viper.Reset()

	t.Run("Defaults Without Config File", func(t *testing.T) {
		viper.Reset()
		t.Chdir(t.TempDir())

		require.NoError(t, Load(""))
		assert.Equal(t, "file", viper.GetString("store.type"))
		assert.Equal(t, 1.0, viper.GetFloat64("regression.threshold"))
		assert.Equal(t, ":8080", viper.GetString("serve.addr"))
	})

	t.Run("Load From Env", func(t *testing.T) {
		viper.Reset()
		t.Chdir(t.TempDir())
		t.Setenv("BENCHHIST_REGRESSION_THRESHOLD", "0.25")
		t.Setenv("BENCHHIST_STORE_TYPE", "sqlite")

		require.NoError(t, Load(""))
		assert.Equal(t, 0.25, viper.GetFloat64("regression.threshold"))
		assert.Equal(t, "sqlite", StoreConfig().Type)
	})

	t.Run("Load From File", func(t *testing.T) {
		viper.Reset()
		path := filepath.Join(t.TempDir(), "bench.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
store:
  type: sqlite
  path: hist.db
regression:
  threshold: 0.5
  policy: dispersion
  sigma: 2
  higher_is_better: [score]
  suite_thresholds:
    - suite: Kepler benchmarks
      threshold: 2
  aliases:
    - name: e0-n1000
      from: ["e = 0.000000; n = 1000"]
`), 0o644))

		require.NoError(t, Load(path))
		assert.Equal(t, "hist.db", StoreConfig().Path)

		opts, err := AnalyzerOptions()
		require.NoError(t, err)
		assert.Equal(t, 0.5, opts.Threshold)
		assert.Equal(t, regression.PolicyDispersion, opts.Policy)
		assert.Equal(t, 2.0, opts.Sigma)
		assert.Equal(t, map[string]float64{"Kepler benchmarks": 2}, opts.SuiteThresholds)
		assert.Equal(t, map[string][]string{"e0-n1000": {"e = 0.000000; n = 1000"}}, opts.Aliases)

		dir, known := opts.Units.Lookup("score", "catch2")
		assert.True(t, known)
		assert.Equal(t, benchmark.HigherIsBetter, dir)
	})

	t.Run("Missing Explicit File", func(t *testing.T) {
		viper.Reset()
		assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.yaml")))
	})
}

func TestRetryPolicy(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	attempts, delay := RetryPolicy()
	assert.Equal(t, 4, attempts)
	assert.Equal(t, "200ms", delay.String())
}
