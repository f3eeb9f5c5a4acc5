package main

import (
	"errors"

	"github.com/couchcryptid/covid-report-etl/internal/observability"
	"github.com/spf13/cobra"
)

var ingestOpts ingestOptions

func init() {
	ingestCmd.Flags().StringVar(&ingestOpts.start, "start", "", "First report date, MM-DD-YYYY. Defaults to the day after the last merged date.")
	ingestCmd.Flags().StringVar(&ingestOpts.end, "end", "", "Last report date, MM-DD-YYYY. Defaults to yesterday.")
	ingestCmd.Flags().BoolVar(&ingestOpts.export, "export", false, "Refresh the SQLite export after the run.")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [--start MM-DD-YYYY --end MM-DD-YYYY] [--export]",
	Short: "Fetches and merges a date range once, then exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		ctx := cmd.Context()

		shutdown, err := observability.SetupTracing(ctx, a.cfg.OTLPEndpoint, serviceName)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				a.logger.Warn("tracer shutdown", "error", err)
			}
		}()

		report, err := a.ingest(ctx, ingestOpts)
		if err != nil {
			return err
		}
		if report != nil && report.Cancelled {
			return errors.New("ingestion cancelled before the range was complete")
		}
		return nil
	},
}
