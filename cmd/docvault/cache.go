package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"docvault/internal/models"
	"docvault/internal/vaulterr"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the offline document cache",
	}
	cmd.AddCommand(
		newCacheListCmd(a),
		newCacheStatsCmd(a),
		newCacheShowCmd(a),
		newCacheStaleCmd(a),
		newCacheClearCmd(a),
	)
	return cmd
}

func newCacheListCmd(a *app) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List cached documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			entries := make([]models.CacheEntry, 0)
			for _, entry := range comps.Offline.Entries() {
				if host != "" && entry.HostID != host {
					continue
				}
				entries = append(entries, entry)
			}

			if a.structured() {
				return writeStructured(entries)
			}
			for _, entry := range entries {
				version := "-"
				if entry.ServerVersion != nil {
					version = fmt.Sprintf("v%d", *entry.ServerVersion)
				}
				if err := writePlain("%s  %8s  %-6s  %s  %s\n", formatTime(entry.CachedAt), formatBytes(entry.SizeBytes), version, entry.HostID, entry.ID); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "only entries fetched from this host")
	return cmd
}

func newCacheStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			stats := comps.Offline.GetStats()

			if a.structured() {
				return writeStructured(stats)
			}
			return writeLines([]string{
				fmt.Sprintf("entries: %d / %d", stats.Entries, stats.MaxEntries),
				fmt.Sprintf("size: %s / %s", formatBytes(stats.TotalSize), formatBytes(stats.MaxSize)),
				fmt.Sprintf("evictions: %d", stats.Evictions),
				fmt.Sprintf("oldest: %s", formatOptionalTime(stats.OldestCachedAt)),
				fmt.Sprintf("newest: %s", formatOptionalTime(stats.NewestCachedAt)),
			})
		},
	}
}

func newCacheShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a cached document",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := comps.Offline.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if doc == nil {
				return vaulterr.NotFound("show cached document", fmt.Errorf("document %s is not cached", args[0]))
			}

			if a.structured() {
				return writeStructured(doc)
			}
			lines := []string{fmt.Sprintf("id: %s", doc.ID)}
			if doc.Title != "" {
				lines = append(lines, fmt.Sprintf("title: %s", doc.Title))
			}
			if doc.Version != nil {
				lines = append(lines, fmt.Sprintf("version: %d", *doc.Version))
			}
			if len(doc.Body) > 0 {
				lines = append(lines, fmt.Sprintf("body: %s", string(doc.Body)))
			}
			return writeLines(lines)
		},
	}
}

func newCacheStaleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stale <id> <server-version>",
		Short: "Report whether the cached copy is older than the host's version",
		Args:  requireExactlyArgs(2, "a document id and the host's version are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid server version %q", args[1])
			}
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			stale := comps.Offline.IsStale(args[0], version)

			if a.structured() {
				return writeStructured(map[string]any{"id": args[0], "cached": comps.Offline.Has(args[0]), "stale": stale})
			}
			return writePlain("%t\n", stale)
		},
	}
}

func newCacheClearCmd(a *app) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "clear [<id>...]",
		Short: "Drop cached documents (all, by host, or by id)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" && len(args) > 0 {
				return fmt.Errorf("--host cannot be combined with ids")
			}
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}

			removed := 0
			switch {
			case len(args) > 0:
				for _, id := range args {
					if comps.Offline.Has(id) {
						removed++
					}
					if err := comps.Offline.Remove(cmd.Context(), id); err != nil {
						return err
					}
				}
			case host != "":
				removed, err = comps.Offline.ClearForHost(cmd.Context(), host)
				if err != nil {
					return err
				}
			default:
				removed = comps.Offline.GetStats().Entries
				if err := comps.Offline.ClearAll(cmd.Context()); err != nil {
					return err
				}
			}

			if a.structured() {
				return writeStructured(map[string]int{"removed": removed})
			}
			return writePlain("removed %d cached document(s)\n", removed)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "only drop entries fetched from this host")
	return cmd
}
