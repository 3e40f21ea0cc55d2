package main

import (
	"errors"
	"fmt"

	apperrors "benchhist/internal/errors"
	"benchhist/internal/telemetry"

	"github.com/spf13/cobra"
)

func initImportCmd(rootCmd *cobra.Command) {
	var verbose bool

	importCmd := &cobra.Command{
		Use:   "import [FILE|-]",
		Short: "Ingest every run of a published history document",
		Long: `Reads a history document (JSON or the window.BENCHMARK_DATA script) and
ingests its suites concurrently, runs of one suite in document order. Runs
already present are reported as duplicates and skipped. No notifications are
sent for imported runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			outcomes, err := a.pipeline.IngestDocument(cmd.Context(), doc)

			var added, dups, invalid, regressions int
			for _, o := range outcomes {
				switch {
				case o.Err == nil:
					added++
					regressions += len(o.Report.Regressions())
				case errors.Is(o.Err, apperrors.ErrDuplicateIdentity):
					dups++
					if verbose {
						cmd.Printf("duplicate: %s %s\n", o.Suite, o.CommitID)
					}
				default:
					invalid++
					telemetry.LogError("run rejected", o.Err, "suite", o.Suite, "commit", o.CommitID)
					cmd.Printf("rejected: %s %s: %v\n", o.Suite, o.CommitID, o.Err)
				}
			}
			cmd.Printf("Imported %d run(s) into %d suite(s): %d duplicate, %d rejected, %d regression(s).\n",
				added, len(doc.Suites), dups, invalid, regressions)

			if err != nil {
				return fmt.Errorf("import stopped: %w", err)
			}
			return nil
		},
	}
	importCmd.Flags().BoolVar(&verbose, "list-duplicates", false, "Print every duplicate run")
	rootCmd.AddCommand(importCmd)
}
