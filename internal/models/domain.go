package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Icon mime types. Blobs of these types are treated as icons.
const (
	MimeTypeIcon          = "image/x-icon"
	MimeTypeMicrosoftIcon = "image/vnd.microsoft.icon"
	MimeTypeSVGIcon       = "application/vnd.docvault.icon+svg"

	// IconNamePrefix marks icon uploads by original name.
	IconNamePrefix = "icon:"

	DefaultMimeType = "application/octet-stream"
)

var iconMimeTypes = map[string]struct{}{
	MimeTypeIcon:          {},
	MimeTypeMicrosoftIcon: {},
	MimeTypeSVGIcon:       {},
}

var blobIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsIconMimeType reports whether mimeType is one of the icon types.
func IsIconMimeType(mimeType string) bool {
	_, ok := iconMimeTypes[NormalizeMimeType(mimeType)]
	return ok
}

// NormalizeMimeType lowercases and strips parameters.
func NormalizeMimeType(mimeType string) string {
	value := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return value
}

// IsValidBlobID reports whether id is a lowercase hex SHA-256 digest.
func IsValidBlobID(id string) bool {
	return blobIDPattern.MatchString(id)
}

// ParseBlobID normalizes and validates a blob id. A "blob:" prefix is accepted.
func ParseBlobID(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	id = strings.TrimPrefix(id, BlobRefPrefix)
	if !IsValidBlobID(id) {
		return "", fmt.Errorf("invalid blob id %q", raw)
	}
	return id, nil
}

// ValidateDocumentID rejects ids that cannot be used as a file name.
func ValidateDocumentID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("document id is required")
	}
	if trimmed != id {
		return fmt.Errorf("document id %q has surrounding whitespace", id)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}
