package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docvault/internal/api"
)

type statusReport struct {
	APIURL  string             `json:"api_url"`
	Health  api.HealthResponse `json:"health"`
	Info    api.InfoResponse   `json:"info"`
	Storage api.StorageStats   `json:"storage"`
	Cache   api.CacheStats     `json:"cache"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the server at api_url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(a.cfg.APIURL)
			report := statusReport{APIURL: a.cfg.APIURL}

			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			report.Health = health

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				info, err := client.Info(ctx)
				report.Info = info
				return err
			})
			g.Go(func() error {
				stats, err := client.BlobStats(ctx)
				report.Storage = stats
				return err
			})
			g.Go(func() error {
				stats, err := client.CacheStats(ctx)
				report.Cache = stats
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(report)
			}
			return writeLines([]string{
				fmt.Sprintf("server: %s (%s, version %s)", report.APIURL, report.Health.Status, report.Info.Version),
				fmt.Sprintf("data_dir: %s", report.Info.DataDir),
				fmt.Sprintf("schema_version: %d", report.Info.SchemaVersion),
				fmt.Sprintf("blobs: %d on %s, %s used of %s (%.1f%%)", report.Info.Blobs, report.Info.BlobBackend,
					formatBytes(report.Storage.Used), formatBytes(report.Storage.Available), report.Storage.PercentUsed),
				fmt.Sprintf("documents: %d", report.Info.Documents),
				fmt.Sprintf("offline cache: %d entries, %s", report.Cache.Entries, formatBytes(report.Cache.TotalSize)),
				fmt.Sprintf("queued operations: %d", report.Info.QueuedOperations),
			})
		},
	}
}
