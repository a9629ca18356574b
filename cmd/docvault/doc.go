package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docvault/internal/models"
	"docvault/internal/vaulterr"
)

func newDocCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "doc",
		Aliases: []string{"docs"},
		Short:   "Manage locally stored documents",
	}
	cmd.AddCommand(
		newDocPutCmd(a),
		newDocListCmd(a),
		newDocShowCmd(a),
		newDocRemoveCmd(a),
		newDocRestoreCmd(a),
	)
	return cmd
}

func newDocPutCmd(a *app) *cobra.Command {
	var (
		title    string
		bodyPath string
		refs     []string
	)

	cmd := &cobra.Command{
		Use:   "put <id>",
		Short: "Create or replace a document",
		Long: "Create or replace a document. The body is read from --body (a file, or - for stdin).\n" +
			"A body that is not JSON is stored as a JSON string. Any blob:<digest> in the body\n" +
			"counts as a reference, in addition to --ref.",
		Args: requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := models.Document{ID: args[0], Title: title, BlobRefs: refs}
			if bodyPath != "" {
				raw, err := readInput(cmd, bodyPath)
				if err != nil {
					return err
				}
				body, err := documentBody(raw)
				if err != nil {
					return err
				}
				doc.Body = body
			}

			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			if err := comps.Documents.Save(cmd.Context(), doc); err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(doc)
			}
			return writePlain("saved %s\n", doc.ID)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&bodyPath, "body", "", "file holding the document body (- for stdin)")
	cmd.Flags().StringSliceVar(&refs, "ref", nil, "blob id referenced by the document (repeatable)")
	return cmd
}

func documentBody(raw []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	encoded, err := json.Marshal(string(raw))
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

func newDocListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			docs, err := comps.Documents.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(docs)
			}
			for _, doc := range docs {
				if err := writePlain("%s  %8s  %s\n", formatTime(doc.ModifiedAt), formatBytes(doc.SizeBytes), doc.ID); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newDocShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a document and the blobs it references",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := comps.Documents.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if doc == nil {
				return vaulterr.NotFound("show document", fmt.Errorf("document %s not found", args[0]))
			}
			refs, err := comps.Documents.LoadDocument(cmd.Context(), doc.ID)
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(map[string]any{"document": doc, "references": refs})
			}
			lines := []string{fmt.Sprintf("id: %s", doc.ID)}
			if doc.Title != "" {
				lines = append(lines, fmt.Sprintf("title: %s", doc.Title))
			}
			if refs != nil && len(refs.BlobIDs) > 0 {
				lines = append(lines, "references:")
				for _, id := range refs.BlobIDs {
					lines = append(lines, "  - "+models.BlobRef(id))
				}
			}
			if len(doc.Body) > 0 {
				lines = append(lines, fmt.Sprintf("body: %s", string(doc.Body)))
			}
			return writeLines(lines)
		},
	}
}

func newDocRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id> [<id>...]",
		Short: "Delete documents (the last backup is kept for restore)",
		Args:  requireAtLeastOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := comps.Documents.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			if a.structured() {
				return writeStructured(map[string]any{"removed": args})
			}
			return writePlain("removed %d document(s)\n", len(args))
		},
	}
}

func newDocRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a document from its backup",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components(cmd.Context())
			if err != nil {
				return err
			}
			if err := comps.Documents.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			if a.structured() {
				return writeStructured(map[string]string{"restored": args[0]})
			}
			return writePlain("restored %s\n", args[0])
		},
	}
}
