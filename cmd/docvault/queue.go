package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"docvault/internal/models"
	"docvault/internal/vaulterr"
)

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage operations waiting to sync to a host",
	}
	cmd.AddCommand(
		newQueueAddCmd(a),
		newQueueListCmd(a),
		newQueueShowCmd(a),
		newQueueCountCmd(a),
		newQueueRemoveCmd(a),
		newQueueClearCmd(a),
	)
	return cmd
}

func newQueueAddCmd(a *app) *cobra.Command {
	var (
		id, document, host, opType, payload string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue an operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			op := models.Operation{
				ID:         id,
				DocumentID: document,
				HostID:     host,
				Type:       opType,
			}
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload must be valid JSON")
				}
				op.Payload = json.RawMessage(payload)
			}

			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			saved, err := comps.Queue.Save(cmd.Context(), op)
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(saved)
			}
			return writePlain("%s\n", saved.ID)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "operation id (generated when empty; re-adding an id replaces it)")
	cmd.Flags().StringVar(&document, "document", "", "document id")
	cmd.Flags().StringVar(&host, "host", "", "host id")
	cmd.Flags().StringVar(&opType, "type", "", "operation type")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	_ = cmd.MarkFlagRequired("document")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newQueueListCmd(a *app) *cobra.Command {
	var host, document string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List queued operations, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}

			var ops []models.Operation
			switch {
			case host != "":
				ops, err = comps.Queue.LoadByHost(cmd.Context(), host)
			case document != "":
				ops, err = comps.Queue.LoadByDocument(cmd.Context(), document)
			default:
				ops, err = comps.Queue.LoadAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			out := make([]models.Operation, 0, len(ops))
			for _, op := range ops {
				if host != "" && document != "" && op.DocumentID != document {
					continue
				}
				out = append(out, op)
			}

			if a.structured() {
				return writeStructured(out)
			}
			for _, op := range out {
				if err := writePlain("%s  %s  %-10s  %s  %s\n", formatTime(op.Timestamp), op.ID, op.Type, op.HostID, op.DocumentID); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "only operations for this host")
	cmd.Flags().StringVar(&document, "document", "", "only operations for this document")
	return cmd
}

func newQueueShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one queued operation",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			op, err := comps.Queue.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if op == nil {
				return vaulterr.NotFound("show operation", fmt.Errorf("operation %s not found", args[0]))
			}

			if a.structured() {
				return writeStructured(op)
			}
			lines := []string{
				fmt.Sprintf("id: %s", op.ID),
				fmt.Sprintf("type: %s", op.Type),
				fmt.Sprintf("document: %s", op.DocumentID),
				fmt.Sprintf("host: %s", op.HostID),
				fmt.Sprintf("queued_at: %s (%s)", formatTime(op.Timestamp), humanize.Time(op.Timestamp)),
			}
			if len(op.Payload) > 0 {
				lines = append(lines, fmt.Sprintf("payload: %s", string(op.Payload)))
			}
			return writeLines(lines)
		},
	}
}

func newQueueCountCmd(a *app) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count queued operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			var count int
			if host != "" {
				count, err = comps.Queue.CountByHost(cmd.Context(), host)
			} else {
				count, err = comps.Queue.Count(cmd.Context())
			}
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(map[string]int{"count": count})
			}
			return writePlain("%d\n", count)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "only operations for this host")
	return cmd
}

func newQueueRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id> [<id>...]",
		Short: "Remove queued operations",
		Args:  requireAtLeastOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := comps.Queue.RemoveAll(cmd.Context(), args)
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(map[string]int{"removed": removed})
			}
			return writePlain("removed %d operation(s)\n", removed)
		},
	}
}

func newQueueClearCmd(a *app) *cobra.Command {
	var host, document string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all queued operations, or those of one host or document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}

			var removed int
			switch {
			case host != "":
				removed, err = comps.Queue.ClearByHost(cmd.Context(), host)
			case document != "":
				removed, err = comps.Queue.ClearByDocument(cmd.Context(), document)
			default:
				removed, err = comps.Queue.ClearAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(map[string]int{"removed": removed})
			}
			return writePlain("removed %d operation(s)\n", removed)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "only operations for this host")
	cmd.Flags().StringVar(&document, "document", "", "only operations for this document")
	cmd.MarkFlagsMutuallyExclusive("host", "document")
	return cmd
}
