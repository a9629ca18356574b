// Package scheduler runs periodic maintenance jobs for the server.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"docvault/internal/gc"
)

// Collector is the slice of gc.Collector the scheduler drives.
type Collector interface {
	CollectGarbage(ctx context.Context, opts gc.Options) (gc.Result, error)
}

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, logger: logger.With("component", "scheduler")}, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", "jobs", len(s.scheduler.Jobs()))
	s.scheduler.Start()
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.logger.Info("stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs fn every interval. Overlapping runs are skipped.
// It returns the job id.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive, got %s", interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}

// ScheduleGC collects garbage every interval with opts. Each run gets its
// own timeout of half the interval.
func (s *Scheduler) ScheduleGC(interval time.Duration, collector Collector, opts gc.Options) (string, error) {
	if collector == nil {
		return "", fmt.Errorf("collector is required")
	}
	return s.ScheduleEvery("gc", interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval/2)
		defer cancel()
		res, err := collector.CollectGarbage(ctx, opts)
		if err != nil {
			s.logger.Error("scheduled gc failed", "error", err)
			return
		}
		s.logger.Info("scheduled gc finished",
			"deleted", res.BlobsDeleted,
			"bytes_freed", res.BytesFreed,
			"failed", res.Failed,
			"duration", res.Duration)
	})
}
