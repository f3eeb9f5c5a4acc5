package main

import (
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/covid-report-etl/internal/adapter/checkpoint"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/region"
	"github.com/spf13/cobra"
)

var (
	summaryTop      int
	summaryMetric   string
	summaryCSV      string
	summaryNational bool
)

func init() {
	summaryCmd.Flags().IntVar(&summaryTop, "top", 10, "Number of states to rank.")
	summaryCmd.Flags().StringVar(&summaryMetric, "metric", "confirmed", "Ranking metric: confirmed or deaths.")
	summaryCmd.Flags().StringVar(&summaryCSV, "csv", "", "Also write per-state daily series to this CSV file, - for stdout.")
	summaryCmd.Flags().BoolVar(&summaryNational, "national", false, "Include the national series in the CSV.")
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary [--top N] [--metric confirmed|deaths] [--csv <path>]",
	Short: "Ranks states by their latest totals and derives daily new counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		metric, err := region.ParseMetric(summaryMetric)
		if err != nil {
			return err
		}
		agg := region.NewAggregator(a.rules.GeoColumn)

		return a.withCheckpoint(func(_ *checkpoint.Store, table *domain.Table) error {
			date, standings, err := agg.Top(table, summaryTop, metric)
			if err != nil {
				return err
			}
			region.RenderTop(cmd.OutOrStdout(), date, metric, standings)

			if summaryCSV == "" {
				return nil
			}
			series, err := agg.StateSeries(table)
			if err != nil {
				return err
			}
			if summaryNational {
				national, err := agg.National(table)
				if err != nil {
					return err
				}
				series = append(series, national)
			}
			return writeSeries(cmd.OutOrStdout(), summaryCSV, series)
		})
	},
}

func writeSeries(stdout io.Writer, path string, series []region.Series) error {
	if path == "-" {
		return region.WriteSeriesCSV(stdout, series)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := region.WriteSeriesCSV(f, series); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
