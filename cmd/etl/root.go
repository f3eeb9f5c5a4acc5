package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/covid-report-etl/internal/config"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/observability"
	"github.com/spf13/cobra"
)

const serviceName = "covid-report-etl"

// app is the state shared by every subcommand, built once before any of
// them runs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	rules   config.Rules
	// reconcile is rules resolved against the configured scorer.
	reconcile domain.Rules
}

var current *app

var rootCmd = &cobra.Command{
	Use:           "etl",
	Short:         "etl merges the daily COVID-19 US state reports into one schema-stable table.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		current = a
		return nil
	},
}

func execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if cfg.MatchThreshold > 0 {
		rules.Threshold = cfg.MatchThreshold
	}
	scorer, err := domain.ScorerByName(cfg.MatchScorer)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   observability.NewMetrics(),
		rules:     rules,
		reconcile: rules.Reconcile(scorer),
	}, nil
}
