// Package scheduler runs the ingestion job once a day.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const jobTag = "daily-ingest"

// Job is one scheduled run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler triggers a Job daily at a fixed UTC time. Overlapping runs are
// skipped rather than queued.
type Scheduler struct {
	scheduler *gocron.Scheduler
	at        string
	job       Job
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a Scheduler running job daily at at (HH:MM, UTC).
func New(at string, job Job, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		at:        at,
		job:       job,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the job and starts the scheduler in the background. With
// runNow the job also runs immediately.
func (s *Scheduler) Start(runNow bool) error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Tag(jobTag).SingletonMode().Do(s.run)
	if err != nil {
		return fmt.Errorf("schedule daily ingest at %s: %w", s.at, err)
	}
	s.scheduler.StartAsync()

	_, next := s.scheduler.NextRun()
	s.logger.Info("scheduler started", "at", s.at, "next_run", next)

	if runNow {
		if err := s.scheduler.RunByTag(jobTag); err != nil {
			return fmt.Errorf("run daily ingest: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) run() {
	start := time.Now()
	s.logger.Info("scheduled ingest starting")
	s.job(s.ctx)
	s.logger.Info("scheduled ingest finished", "duration", time.Since(start))
}

// Stop cancels a running job and stops future runs. It waits for the
// running job to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}
