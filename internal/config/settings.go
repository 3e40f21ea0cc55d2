package config

import (
	"fmt"
	"time"

	"benchhist/internal/benchmark"
	"benchhist/internal/db"
	"benchhist/internal/regression"

	"github.com/spf13/viper"
)

// SuiteThreshold overrides the regression threshold of one suite. Suites
// are listed rather than keyed because configuration keys are case
// insensitive and suite names are not.
type SuiteThreshold struct {
	Suite     string  `mapstructure:"suite"`
	Threshold float64 `mapstructure:"threshold"`
}

// Alias lets a measurement continue the history of former names.
type Alias struct {
	Name string   `mapstructure:"name"`
	From []string `mapstructure:"from"`
}

// SuiteThresholds reads regression.suite_thresholds.
func SuiteThresholds() ([]SuiteThreshold, error) {
	var out []SuiteThreshold
	if err := viper.UnmarshalKey("regression.suite_thresholds", &out); err != nil {
		return nil, fmt.Errorf("regression.suite_thresholds: %w", err)
	}
	return out, nil
}

// Aliases reads regression.aliases.
func Aliases() ([]Alias, error) {
	var out []Alias
	if err := viper.UnmarshalKey("regression.aliases", &out); err != nil {
		return nil, fmt.Errorf("regression.aliases: %w", err)
	}
	return out, nil
}

// AnalyzerOptions translates the regression.* keys.
func AnalyzerOptions() (regression.Options, error) {
	policy, err := regression.ParsePolicy(viper.GetString("regression.policy"))
	if err != nil {
		return regression.Options{}, err
	}

	opts := regression.Options{
		Threshold: viper.GetFloat64("regression.threshold"),
		Policy:    policy,
		Sigma:     viper.GetFloat64("regression.sigma"),
	}

	thresholds, err := SuiteThresholds()
	if err != nil {
		return regression.Options{}, err
	}
	if len(thresholds) > 0 {
		opts.SuiteThresholds = make(map[string]float64, len(thresholds))
		for _, st := range thresholds {
			opts.SuiteThresholds[st.Suite] = st.Threshold
		}
	}

	aliases, err := Aliases()
	if err != nil {
		return regression.Options{}, err
	}
	if len(aliases) > 0 {
		opts.Aliases = make(map[string][]string, len(aliases))
		for _, a := range aliases {
			opts.Aliases[a.Name] = append(opts.Aliases[a.Name], a.From...)
		}
	}

	overrides := make(map[string]benchmark.Direction)
	for _, u := range viper.GetStringSlice("regression.lower_is_better") {
		overrides[u] = benchmark.LowerIsBetter
	}
	for _, u := range viper.GetStringSlice("regression.higher_is_better") {
		overrides[u] = benchmark.HigherIsBetter
	}
	opts.Units = benchmark.NewUnits(overrides)

	return opts, nil
}

// StoreConfig translates the store.* keys.
func StoreConfig() db.StoreConfig {
	return db.StoreConfig{
		Type:   viper.GetString("store.type"),
		Path:   viper.GetString("store.path"),
		DSN:    viper.GetString("store.dsn"),
		Format: viper.GetString("store.format"),
	}
}

// RetryPolicy returns how often and how fast storage operations are retried.
func RetryPolicy() (attempts int, delay time.Duration) {
	attempts = viper.GetInt("store.retries") + 1
	delay = viper.GetDuration("store.retry_delay")
	return attempts, delay
}
