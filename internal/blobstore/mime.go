package blobstore

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"docvault/internal/models"
)

// DetectMimeType picks a MIME type from the name extension, falling back to
// sniffing the content.
func DetectMimeType(name string, data []byte) string {
	base := strings.TrimPrefix(strings.TrimSpace(name), models.IconNamePrefix)
	if ext := strings.ToLower(filepath.Ext(base)); ext != "" {
		if ext == ".ico" {
			return models.MimeTypeIcon
		}
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return models.NormalizeMimeType(byExt)
		}
	}
	if len(data) == 0 {
		return models.DefaultMimeType
	}
	return models.NormalizeMimeType(http.DetectContentType(data))
}
