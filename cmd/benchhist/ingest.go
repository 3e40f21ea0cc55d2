package main

import (
	"encoding/json"
	"fmt"

	"benchhist/internal/regression"
	"benchhist/internal/report"

	"github.com/spf13/cobra"
)

func initIngestCmd(rootCmd *cobra.Command) {
	var (
		flags            recordFlags
		failOnRegression bool
	)

	ingestCmd := &cobra.Command{
		Use:   "ingest [FILE|-]",
		Short: "Append a run to a suite and compare it with the history",
		Long: `Reads one run record, appends it to the suite, evaluates every
measurement against its latest earlier occurrence and saves the history.
A run with the same commit, tool and date as a stored one is rejected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(cmd, args, &flags)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.pipeline.Ingest(cmd.Context(), flags.suite, rec)
			if r != nil {
				if perr := printReport(cmd, r, flags.asJSON); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			if failOnRegression && r.HasRegression() {
				return errRegression
			}
			return nil
		},
	}
	flags.register(ingestCmd)
	ingestCmd.Flags().BoolVar(&failOnRegression, "fail-on-regression", false, "Exit non-zero when a regression is found")
	rootCmd.AddCommand(ingestCmd)
}

func initEvaluateCmd(rootCmd *cobra.Command) {
	var (
		flags            recordFlags
		failOnRegression bool
	)

	evaluateCmd := &cobra.Command{
		Use:   "evaluate [FILE|-]",
		Short: "Compare a run with the history without storing it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(cmd, args, &flags)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.pipeline.Evaluate(flags.suite, rec)
			if err := printReport(cmd, r, flags.asJSON); err != nil {
				return err
			}
			if failOnRegression && r.HasRegression() {
				return errRegression
			}
			return nil
		},
	}
	flags.register(evaluateCmd)
	evaluateCmd.Flags().BoolVar(&failOnRegression, "fail-on-regression", false, "Exit non-zero when a regression is found")
	rootCmd.AddCommand(evaluateCmd)
}

func printReport(cmd *cobra.Command, r *regression.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return nil
	}
	report.WriteReport(cmd.OutOrStdout(), r)
	return nil
}
