package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"deskbridge/internal/constants"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename strips path components and characters that upset helpdesk
// upload APIs, and truncates overly long names while preserving the extension.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "attachment"
	}

	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "attachment"
	}

	if len(name) > constants.MaxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) >= constants.MaxFilenameLength {
			ext = ""
		}
		name = name[:constants.MaxFilenameLength-len(ext)] + ext
	}
	return name
}

// EnsureExtension appends an extension derived from the MIME type when the
// name has none, so downstream platforms can infer a content type.
func EnsureExtension(name, mimeType string) string {
	if filepath.Ext(name) != "" {
		return name
	}
	return fmt.Sprintf("%s.%s", name, ExtensionForMime(mimeType))
}
