package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"docvault/internal/format"
	"docvault/internal/models"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
)

func writeStructured(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeLines(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeBlobList(blobs []models.Blob) error {
	for _, blob := range blobs {
		if err := writePlain("%s\n", formatBlobLine(blob)); err != nil {
			return err
		}
	}
	return nil
}

func formatBlobLine(blob models.Blob) string {
	name := blob.OriginalName
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%s  %8s  %-24s  uses=%d  %s", shortID(blob.ID), formatBytes(blob.SizeBytes), blob.MimeType, blob.UsageCount, name)
}

func writeBlobDetail(blob models.Blob) error {
	lines := []string{
		fmt.Sprintf("id: %s", blob.ID),
		fmt.Sprintf("ref: %s", models.BlobRef(blob.ID)),
		fmt.Sprintf("mime_type: %s", blob.MimeType),
		fmt.Sprintf("size: %s (%d bytes)", formatBytes(blob.SizeBytes), blob.SizeBytes),
		fmt.Sprintf("usage_count: %d", blob.UsageCount),
		fmt.Sprintf("created_at: %s (%s)", formatTime(blob.CreatedAt), humanize.Time(blob.CreatedAt)),
	}
	if blob.OriginalName != "" {
		lines = append(lines, fmt.Sprintf("original_name: %s", blob.OriginalName))
	}
	if blob.IsIcon() {
		lines = append(lines, "icon: true")
	}
	return writeLines(lines)
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return formatTime(*t)
}
