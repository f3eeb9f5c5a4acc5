package main

import (
	"errors"

	"github.com/couchcryptid/covid-report-etl/internal/adapter/checkpoint"
	"github.com/couchcryptid/covid-report-etl/internal/validate"
	"github.com/spf13/cobra"
)

var validateSkipCache bool

func init() {
	validateCmd.Flags().BoolVar(&validateSkipCache, "skip-cache", false, "Do not compare merged dates against the snapshot cache.")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [--skip-cache]",
	Short: "Checks the checkpoint for internal consistency and agreement with the cache.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		store, err := checkpoint.Open(a.cfg.CheckpointDir, a.logger)
		if err != nil {
			return err
		}
		lock, err := store.Lock(lockTTL)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		opts := validate.Options{
			CheckpointDir:   a.cfg.CheckpointDir,
			RequiredColumns: a.rules.RequiredColumns,
			TimeColumns:     a.rules.TimeColumns,
		}
		if !validateSkipCache {
			opts.CacheDir = a.cfg.CacheDir
		}
		res := validate.Run(opts, a.logger)
		validate.Print(cmd.OutOrStdout(), res)
		if !res.Passed() {
			return errors.New("checkpoint validation failed")
		}
		return nil
	},
}
