package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"benchhist/internal/codec"
	"benchhist/internal/regression"

	"github.com/spf13/viper"
)

// ValidateConfig validates configuration values and returns an error if any are invalid.
// This function should be called after viper has loaded the configuration.
func ValidateConfig() error {
	var errors []string

	if viper.IsSet("regression.threshold") {
		if th := viper.GetFloat64("regression.threshold"); th < 0 {
			errors = append(errors, fmt.Sprintf("regression.threshold must not be negative, got: %v", th))
		}
	}

	if viper.IsSet("regression.sigma") {
		if sigma := viper.GetFloat64("regression.sigma"); sigma < 0 {
			errors = append(errors, fmt.Sprintf("regression.sigma must not be negative, got: %v", sigma))
		}
	}

	if _, err := regression.ParsePolicy(viper.GetString("regression.policy")); err != nil {
		errors = append(errors, fmt.Sprintf("regression.policy: %v", err))
	}

	if thresholds, err := SuiteThresholds(); err != nil {
		errors = append(errors, err.Error())
	} else {
		for _, st := range thresholds {
			if st.Suite == "" {
				errors = append(errors, "regression.suite_thresholds: entry without suite")
			}
			if st.Threshold < 0 {
				errors = append(errors, fmt.Sprintf("regression.suite_thresholds: threshold for %q must not be negative, got: %v", st.Suite, st.Threshold))
			}
		}
	}

	if aliases, err := Aliases(); err != nil {
		errors = append(errors, err.Error())
	} else {
		for _, a := range aliases {
			if a.Name == "" || len(a.From) == 0 {
				errors = append(errors, fmt.Sprintf("regression.aliases: entry %q needs a name and at least one former name", a.Name))
			}
		}
	}

	switch t := strings.ToLower(viper.GetString("store.type")); t {
	case "", "file", "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		errors = append(errors, fmt.Sprintf("store.type must be one of file, sqlite, postgres, got: %s", t))
	}

	if _, err := codec.ParseFormat(viper.GetString("store.format")); err != nil {
		errors = append(errors, fmt.Sprintf("store.format: %v", err))
	}

	if viper.IsSet("store.retries") {
		if n := viper.GetInt("store.retries"); n < 0 {
			errors = append(errors, fmt.Sprintf("store.retries must not be negative, got: %d", n))
		}
	}

	// Validate port numbers (if set, must be in valid range 1-65535)
	if addr := viper.GetString("serve.addr"); addr != "" {
		_, portStr, err := net.SplitHostPort(addr)
		port, convErr := strconv.Atoi(portStr)
		if err != nil || convErr != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("serve.addr port must be between 1 and 65535, got: %s", addr))
		}
	}

	// If there are any errors, return them
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(errors, "\n  "))
	}

	return nil
}
