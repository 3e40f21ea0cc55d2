package main

import (
	"fmt"

	"benchhist/internal/history"
	"benchhist/internal/report"

	"github.com/spf13/cobra"
)

func initHistoryCmd(rootCmd *cobra.Command) {
	var suite, name string
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent occurrences of a measurement",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var occurrences []history.Occurrence
			for o := range a.pipeline.Store.History(suite, name, limit) {
				occurrences = append(occurrences, o)
			}
			if len(occurrences) == 0 {
				cmd.Printf("No occurrences of %q in suite %q.\n", name, suite)
				return nil
			}
			report.WriteHistory(cmd.OutOrStdout(), occurrences)
			return nil
		},
	}
	historyCmd.Flags().StringVarP(&suite, "suite", "s", "", "Suite to query")
	historyCmd.Flags().StringVarP(&name, "name", "n", "", "Measurement name")
	historyCmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of occurrences")
	historyCmd.MarkFlagRequired("suite")
	historyCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(historyCmd)
}

func initLatestCmd(rootCmd *cobra.Command) {
	var suite, name string

	latestCmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the latest occurrence of a measurement",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			o, ok := a.pipeline.Store.Latest(suite, name)
			if !ok {
				return fmt.Errorf("no occurrence of %q in suite %q", name, suite)
			}
			report.WriteHistory(cmd.OutOrStdout(), []history.Occurrence{o})
			return nil
		},
	}
	latestCmd.Flags().StringVarP(&suite, "suite", "s", "", "Suite to query")
	latestCmd.Flags().StringVarP(&name, "name", "n", "", "Measurement name")
	latestCmd.MarkFlagRequired("suite")
	latestCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(latestCmd)
}

func initSuitesCmd(rootCmd *cobra.Command) {
	suitesCmd := &cobra.Command{
		Use:   "suites",
		Short: "List suites in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			store := a.pipeline.Store
			names := store.Suites()
			if len(names) == 0 {
				cmd.Println("No suites found.")
				return nil
			}

			rows := make([]report.SuiteSummary, 0, len(names))
			for _, name := range names {
				row := report.SuiteSummary{
					Name:       name,
					Records:    store.Len(name),
					Benchmarks: len(store.Names(name)),
				}
				if last, ok := store.Record(name, row.Records-1); ok {
					row.LastCommit = last.Commit.ID
					row.LastDate = last.Date
				}
				rows = append(rows, row)
			}
			report.WriteSuites(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	rootCmd.AddCommand(suitesCmd)
}
