package main

import (
	"context"
	"errors"
	"net/http"
	"sync"

	httpadapter "github.com/couchcryptid/covid-report-etl/internal/adapter/http"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/observability"
	"github.com/couchcryptid/covid-report-etl/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveRunNow bool

func init() {
	serveCmd.Flags().BoolVar(&serveRunNow, "run-now", true, "Ingest once at startup as well as on schedule.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--run-now=false]",
	Short: "Ingests daily on schedule and serves health, status, and metrics over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		ctx := cmd.Context()
		logger := a.logger

		shutdownTracing, err := observability.SetupTracing(ctx, a.cfg.OTLPEndpoint, serviceName)
		if err != nil {
			return err
		}

		r := &runner{app: a}
		srv := httpadapter.NewServer(a.cfg.HTTPAddr, r, r, logger)
		sched := scheduler.New(a.cfg.Schedule, r.run, logger)

		// Start HTTP server.
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()

		if err := sched.Start(serveRunNow); err != nil {
			return err
		}

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		sched.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// runner performs scheduled ingestions and remembers the latest outcome for
// the HTTP status and readiness endpoints.
type runner struct {
	app *app

	mu     sync.Mutex
	last   *domain.RunReport
	ran    bool
	failed error
}

func (r *runner) run(ctx context.Context) {
	report, err := r.app.ingest(ctx, ingestOptions{export: r.app.cfg.SQLitePath != ""})
	if err != nil {
		r.app.logger.Error("scheduled ingest failed", "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = true
	r.failed = err
	if report != nil {
		r.last = report
	}
}

// LastReport implements httpadapter.StatusProvider.
func (r *runner) LastReport() *domain.RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// CheckReadiness implements httpadapter.ReadinessChecker. The service is
// ready once an ingestion has finished without a fatal error.
func (r *runner) CheckReadiness(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case !r.ran:
		return errors.New("no ingestion run has completed yet")
	case r.failed != nil:
		return r.failed
	}
	return nil
}
