package main

import (
	"github.com/couchcryptid/covid-report-etl/internal/adapter/checkpoint"
	"github.com/couchcryptid/covid-report-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/spf13/cobra"
)

var exportPath string

func init() {
	exportCmd.Flags().StringVar(&exportPath, "out", "", "Database path. Defaults to SQLITE_PATH.")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [--out <path/to/covid.db>]",
	Short: "Writes the accumulated table to a standalone SQLite database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		path := exportPath
		if path == "" {
			path = a.cfg.SQLitePath
		}
		return a.withCheckpoint(func(_ *checkpoint.Store, table *domain.Table) error {
			n, err := sqlite.Export(cmd.Context(), path, table)
			if err != nil {
				return err
			}
			a.logger.Info("sqlite export written", "path", path, "rows", n, "columns", table.Schema().Len())
			return nil
		})
	},
}
