package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"docvault/internal/api"
	"docvault/internal/config"
	"docvault/internal/gc"
	"docvault/internal/models"
)

type gcFlags struct {
	includeIcons      bool
	respectUsageCount bool
	fullRescan        bool
	batchSize         int
	remote            bool
}

func (f *gcFlags) register(cmd *cobra.Command, cfg config.GCConfig) {
	cmd.Flags().BoolVar(&f.includeIcons, "include-icons", cfg.IncludeIcons, "also collect unreferenced icon blobs")
	cmd.Flags().BoolVar(&f.respectUsageCount, "respect-usage-count", false, "keep unreferenced blobs whose usage count is positive")
	cmd.Flags().BoolVar(&f.fullRescan, "full-rescan", false, "reload every document instead of trusting the reference cache")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", cfg.BatchSize, "concurrent deletions per batch")
	cmd.Flags().BoolVar(&f.remote, "remote", false, "ask the server at api_url instead of opening the data directory")
}

func (f *gcFlags) options() (gc.Options, error) {
	if f.batchSize < 0 {
		return gc.Options{}, fmt.Errorf("--batch-size must be >= 0")
	}
	return gc.Options{
		IncludeIcons:      f.includeIcons,
		RespectUsageCount: f.respectUsageCount,
		FullRescan:        f.fullRescan,
		BatchSize:         f.batchSize,
	}, nil
}

func (f *gcFlags) request() api.GCRequest {
	return api.GCRequest{
		IncludeIcons:      f.includeIcons,
		RespectUsageCount: f.respectUsageCount,
		FullRescan:        f.fullRescan,
		BatchSize:         f.batchSize,
	}
}

func newGCCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Reclaim blobs that no document references",
	}
	cmd.AddCommand(newGCRunCmd(a), newGCPreviewCmd(a))
	return cmd
}

func newGCRunCmd(a *app) *cobra.Command {
	flags := &gcFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Delete unreferenced blobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			var resp api.GCRunResponse
			if flags.remote {
				resp, err = api.NewClient(a.cfg.APIURL).GCRun(cmd.Context(), flags.request())
				if err != nil {
					return err
				}
			} else {
				comps, err := a.components(cmd.Context())
				if err != nil {
					return err
				}
				if !a.structured() && isatty.IsTerminal(os.Stderr.Fd()) {
					opts.OnProgress = printGCProgress
				}
				result, err := comps.GC.CollectGarbage(cmd.Context(), opts)
				if opts.OnProgress != nil {
					fmt.Fprintln(os.Stderr)
				}
				if err != nil {
					return err
				}
				resp = gcRunResponse(result)
			}

			if a.structured() {
				return writeStructured(resp)
			}
			lines := []string{
				fmt.Sprintf("deleted %d of %d unreferenced blob(s), freed %s", resp.BlobsDeleted, resp.Candidates, formatBytes(resp.BytesFreed)),
				fmt.Sprintf("scanned %d document(s), %d from cache, in %s", resp.DocumentsScanned, resp.CacheHits, time.Duration(resp.DurationMS)*time.Millisecond),
			}
			if resp.Failed > 0 {
				lines = append(lines, fmt.Sprintf("failed: %d (left for the next run)", resp.Failed))
			}
			return writeLines(lines)
		},
	}

	flags.register(cmd, a.cfg.GC)
	return cmd
}

func newGCPreviewCmd(a *app) *cobra.Command {
	flags := &gcFlags{}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "List blobs a collection would delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			var resp api.GCPreviewResponse
			if flags.remote {
				resp, err = api.NewClient(a.cfg.APIURL).GCPreview(cmd.Context(), flags.request())
				if err != nil {
					return err
				}
			} else {
				comps, err := a.components(cmd.Context())
				if err != nil {
					return err
				}
				blobs, err := comps.GC.GetOrphanedBlobs(cmd.Context(), opts)
				if err != nil {
					return err
				}
				resp = gcPreviewResponse(blobs)
			}

			if a.structured() {
				return writeStructured(resp)
			}
			if err := writeBlobList(resp.Blobs); err != nil {
				return err
			}
			return writePlain("%d blob(s), %s reclaimable\n", resp.Count, formatBytes(resp.TotalBytes))
		},
	}

	flags.register(cmd, a.cfg.GC)
	return cmd
}

func gcRunResponse(result gc.Result) api.GCRunResponse {
	return api.GCRunResponse{
		BlobsDeleted:     result.BlobsDeleted,
		BytesFreed:       result.BytesFreed,
		Failed:           result.Failed,
		Candidates:       result.Candidates,
		DocumentsScanned: result.DocumentsScanned,
		CacheHits:        result.CacheHits,
		DurationMS:       result.Duration.Milliseconds(),
	}
}

func gcPreviewResponse(blobs []models.Blob) api.GCPreviewResponse {
	resp := api.GCPreviewResponse{Blobs: blobs, Count: len(blobs)}
	if resp.Blobs == nil {
		resp.Blobs = []models.Blob{}
	}
	for _, blob := range blobs {
		resp.TotalBytes += blob.SizeBytes
	}
	return resp
}

func printGCProgress(phase gc.Phase, current, total int) {
	fmt.Fprintf(os.Stderr, "\r%s %d/%d", phase, current, total)
}
