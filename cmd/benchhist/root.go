package main

import (
	"errors"
	"fmt"
	"os"

	"benchhist/internal/config"
	"benchhist/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exit = os.Exit
var cfgFile string

// errRegression makes the process exit non-zero without an error banner.
var errRegression = errors.New("performance regression detected")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "benchhist",
	Short: "Benchmark history store and regression detector",
	Long: `benchhist keeps the history of benchmark runs per suite and compares
every new run with the latest earlier occurrence of each measurement. Runs
that got slower than the configured threshold are reported as regressions.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRegression) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	flags.BoolP("verbose", "v", false, "Enable verbose/debug logging")
	flags.String("log-file", "", "Also write JSON logs to this file")
	flags.String("store-type", "", "Storage backend: file, sqlite or postgres")
	flags.String("store-path", "", "History document or SQLite database path")
	flags.String("store-dsn", "", "Postgres connection string")
	flags.String("store-format", "", "Document format for the file backend: json or js")
	flags.Float64("threshold", 0, "Fractional slowdown tolerated before a run is a regression")
	flags.String("policy", "", "Comparison policy: plain or dispersion")

	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("log.file", flags.Lookup("log-file"))
	viper.BindPFlag("store.type", flags.Lookup("store-type"))
	viper.BindPFlag("store.path", flags.Lookup("store-path"))
	viper.BindPFlag("store.dsn", flags.Lookup("store-dsn"))
	viper.BindPFlag("store.format", flags.Lookup("store-format"))
	viper.BindPFlag("regression.threshold", flags.Lookup("threshold"))
	viper.BindPFlag("regression.policy", flags.Lookup("policy"))

	initIngestCmd(rootCmd)
	initImportCmd(rootCmd)
	initEvaluateCmd(rootCmd)
	initHistoryCmd(rootCmd)
	initLatestCmd(rootCmd)
	initSuitesCmd(rootCmd)
	initServeCmd(rootCmd)
	initMigrateCmd(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	if err := config.Load(cfgFile); err != nil {
		return err
	}

	// Validate configuration values
	if err := config.ValidateConfig(); err != nil {
		return err
	}

	telemetry.InitLogger(viper.GetBool("verbose"), viper.GetString("log.file"))
	return nil
}
