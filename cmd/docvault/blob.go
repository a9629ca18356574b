package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docvault/internal/gc"
	"docvault/internal/models"
	"docvault/internal/vaulterr"
)

func newBlobCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Store and inspect content-addressed blobs",
	}

	cmd.AddCommand(
		newBlobPutCmd(a),
		newBlobGetCmd(a),
		newBlobListCmd(a),
		newBlobShowCmd(a),
		newBlobRemoveCmd(a),
		newBlobStatsCmd(a),
		newBlobRecountCmd(a),
	)
	return cmd
}

func newBlobPutCmd(a *app) *cobra.Command {
	var name, mimeType string

	cmd := &cobra.Command{
		Use:   "put <file|->",
		Short: "Store a file and print its blob id",
		Args:  requireExactlyArgs(1, "a file path (or - for stdin) is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if name == "" && args[0] != "-" {
				name = filepath.Base(args[0])
			}

			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			id, err := comps.Blobs.SaveWithType(cmd.Context(), data, name, mimeType)
			if err != nil {
				return err
			}
			blob, err := comps.Blobs.GetMetadata(cmd.Context(), id)
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(blob)
			}
			return writePlain("%s\n", models.BlobRef(id))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "original file name to record (defaults to the file's base name)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "mime type (detected when empty)")
	return cmd
}

func newBlobGetCmd(a *app) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Write a blob's bytes to stdout or a file",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseBlobIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			data, err := comps.Blobs.Load(cmd.Context(), id)
			if err != nil {
				return err
			}
			if data == nil {
				return vaulterr.NotFound("get blob", fmt.Errorf("blob %s not found", id))
			}

			if outPath == "" || outPath == "-" {
				_, err = stdout.Write(data)
				return err
			}
			return os.WriteFile(outPath, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newBlobListCmd(a *app) *cobra.Command {
	var iconsOnly, noIcons bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored blobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			blobs, err := comps.Blobs.ListAll(cmd.Context())
			if err != nil {
				return err
			}

			out := make([]models.Blob, 0, len(blobs))
			for _, blob := range blobs {
				if (iconsOnly && !blob.IsIcon()) || (noIcons && blob.IsIcon()) {
					continue
				}
				out = append(out, blob)
			}

			if a.structured() {
				return writeStructured(out)
			}
			return writeBlobList(out)
		},
	}

	cmd.Flags().BoolVar(&iconsOnly, "icons", false, "only list icon blobs")
	cmd.Flags().BoolVar(&noIcons, "no-icons", false, "hide icon blobs")
	cmd.MarkFlagsMutuallyExclusive("icons", "no-icons")
	return cmd
}

func newBlobShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show blob metadata",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseBlobIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			blob, err := comps.Blobs.GetMetadata(cmd.Context(), id)
			if err != nil {
				return err
			}
			if blob == nil {
				return vaulterr.NotFound("show blob", fmt.Errorf("blob %s not found", id))
			}

			if a.structured() {
				return writeStructured(blob)
			}
			return writeBlobDetail(*blob)
		},
	}
}

func newBlobRemoveCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <id> [<id>...]",
		Short: "Delete blobs that no document references",
		Args:  requireAtLeastOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseBlobIDs(args)
			if err != nil {
				return err
			}

			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			if !force {
				orphans, err := comps.GC.GetOrphanedBlobs(cmd.Context(), gc.Options{IncludeIcons: true})
				if err != nil {
					return err
				}
				unreferenced := make(map[string]struct{}, len(orphans))
				for _, blob := range orphans {
					unreferenced[blob.ID] = struct{}{}
				}
				for _, id := range ids {
					if _, ok := unreferenced[id]; !ok {
						return vaulterr.Invalid("remove blob", fmt.Errorf("blob %s is referenced by a document or does not exist; use --force to delete anyway", shortID(id)))
					}
				}
			}

			for _, id := range ids {
				if err := comps.Blobs.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}

			if a.structured() {
				return writeStructured(map[string]any{"removed": ids})
			}
			return writePlain("removed %d blob(s)\n", len(ids))
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete even if a document still references the blob")
	return cmd
}

func newBlobStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := comps.Blobs.GetStorageStats(cmd.Context())
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(stats)
			}
			return writeLines([]string{
				fmt.Sprintf("blobs: %d (%s)", stats.BlobCount, formatBytes(stats.BlobBytes)),
				fmt.Sprintf("used: %s", formatBytes(stats.Used)),
				fmt.Sprintf("available: %s", formatBytes(stats.Available)),
				fmt.Sprintf("percent_used: %.1f%%", stats.PercentUsed),
			})
		},
	}
}

func newBlobRecountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recount",
		Short: "Recompute blob usage counts from document references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			updated, err := comps.GC.RecalculateUsageCounts(cmd.Context())
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(map[string]int{"updated": updated})
			}
			return writePlain("updated %d usage count(s)\n", updated)
		},
	}
}

// readInput reads a named file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
