package main

import (
	"context"
	"errors"
	"net"
	"os"

	"docvault/internal/api"
	"docvault/internal/vaulterr"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		lines = append(lines, kindHints(apiErr.Kind)...)
		switch apiErr.Kind {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify DOCVAULT_ADMIN_TOKEN matches the server's admin_token_hash.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly; another upload or collection is running.")
		case "":
			lines = append(lines, "hint: verify DOCVAULT_API_URL points to a docvault server.")
		}
		if apiErr.Status >= 500 && apiErr.Kind == "internal" {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	var kinded *vaulterr.Error
	if errors.As(err, &kinded) {
		lines = append(lines, kindHints(string(kinded.Kind))...)
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase DOCVAULT_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a docvault server is running at DOCVAULT_API_URL.",
			"hint: start a local server with: docvault srv",
		)
		if snapHint := snapStartHint(); snapHint != "" {
			lines = append(lines, snapHint)
		}
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

// kindHints covers error kinds shared by local and remote failures.
func kindHints(kind string) []string {
	switch vaulterr.Kind(kind) {
	case vaulterr.KindQuotaExceeded:
		return []string{"hint: storage is nearly full; delete unused files or run: docvault gc run"}
	case vaulterr.KindUnavailable:
		return []string{"hint: the data directory could not be opened; check data_dir and its permissions."}
	case vaulterr.KindValidation:
		return []string{"hint: a write did not read back intact; run: docvault recover"}
	case vaulterr.KindStorage:
		return []string{"hint: storage operation failed; retrying may help."}
	default:
		return nil
	}
}

func snapStartHint() string {
	if os.Getenv("SNAP") == "" && os.Getenv("SNAP_NAME") == "" {
		return ""
	}
	return "hint: in snap installs, start the daemon with: snap start docvault.daemon"
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
