package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"docvault/internal/gc"
	"docvault/internal/metrics"
	"docvault/internal/scheduler"
	"docvault/internal/server"
)

func newSrvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the docvault API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default().With("component", "srv")

			addr, err := server.ListenAddr(a.cfg.APIURL)
			if err != nil {
				return err
			}
			interval, err := a.cfg.GCSchedule()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
			defer stop()

			a.metrics = metrics.New(prometheus.DefaultRegisterer)
			v, err := a.openVault()
			if err != nil {
				return err
			}

			logger.Info("opening data directory", "path", a.cfg.DataDir, "blob_backend", a.cfg.Blobs.Backend)
			report, err := v.Recover(ctx)
			if err != nil {
				// Recovery is best effort; a broken vault fails on first use.
				logger.Warn("startup recovery incomplete", "error", err)
			} else if report.TempFilesRemoved > 0 || report.OrphanContentRemoved > 0 {
				logger.Info("startup recovery", "temp_files_removed", report.TempFilesRemoved, "orphan_content_removed", report.OrphanContentRemoved)
			}

			if interval > 0 {
				stopScheduler, err := scheduleGC(ctx, a, interval, logger)
				if err != nil {
					return err
				}
				defer stopScheduler()
			}

			srv := server.New(addr, v, server.Options{
				AdminTokenHash: a.cfg.AdminTokenHash,
				Version:        version,
				Metrics:        a.metrics,
				Gatherer:       prometheus.DefaultGatherer,
				Logger:         slog.Default(),
			})
			return srv.ListenAndServe(ctx)
		},
	}
}

func scheduleGC(ctx context.Context, a *app, interval time.Duration, logger *slog.Logger) (func(), error) {
	comps, err := a.components(ctx)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	opts := gc.Options{
		IncludeIcons: a.cfg.GC.IncludeIcons,
		BatchSize:    a.cfg.GC.BatchSize,
	}
	if _, err := sched.ScheduleGC(interval, comps.GC, opts); err != nil {
		_ = sched.Stop()
		return nil, err
	}
	sched.Start()
	logger.Info("scheduled garbage collection", "interval", interval)

	return func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("stop scheduler", "error", err)
		}
	}, nil
}
