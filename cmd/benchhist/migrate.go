package main

import (
	"fmt"

	"benchhist/internal/config"
	"benchhist/internal/db"
	"benchhist/internal/telemetry"

	"github.com/spf13/cobra"
)

func initMigrateCmd(rootCmd *cobra.Command) {
	var target db.StoreConfig

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the whole history to another backend",
		Long: `Loads the history from the configured backend and replaces the contents
of the target backend with it, e.g. to move a benchmark-data.js file into
SQLite or Postgres.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := db.NewBackend(config.StoreConfig())
			if err != nil {
				return err
			}
			defer source.Close()

			doc, err := source.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading source history: %w", err)
			}

			dest, err := db.NewBackend(target)
			if err != nil {
				return err
			}
			defer dest.Close()

			if err := dest.Save(cmd.Context(), doc); err != nil {
				return fmt.Errorf("saving target history: %w", err)
			}

			telemetry.LogInfo("history migrated", "suites", len(doc.Suites), "records", doc.RecordCount(), "target", target.Type)
			cmd.Printf("Migrated %d run(s) in %d suite(s) to %s.\n", doc.RecordCount(), len(doc.Suites), describe(target))
			return nil
		},
	}
	migrateCmd.Flags().StringVar(&target.Type, "to-type", "", "Target backend: file, sqlite or postgres")
	migrateCmd.Flags().StringVar(&target.Path, "to-path", "", "Target document or SQLite database path")
	migrateCmd.Flags().StringVar(&target.DSN, "to-dsn", "", "Target Postgres connection string")
	migrateCmd.Flags().StringVar(&target.Format, "to-format", "", "Target document format: json or js")
	migrateCmd.MarkFlagRequired("to-type")
	rootCmd.AddCommand(migrateCmd)
}

func describe(c db.StoreConfig) string {
	if c.Type == "postgres" {
		return "postgres"
	}
	return fmt.Sprintf("%s %s", c.Type, c.Path)
}
