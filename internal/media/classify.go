package media

import (
	"path/filepath"
	"strings"

	"deskbridge/internal/constants"
	"deskbridge/internal/models"
)

// Classify maps a MIME type (with a filename fallback) to the media category
// that decides which helpdesk upload endpoint and size limit apply. Anything
// not recognizably image or video ships as a generic file.
func Classify(mimeType, fileName string) models.MediaCategory {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" || mt == "application/octet-stream" {
		mt = MimeFromFilename(fileName)
	}

	switch {
	case strings.HasPrefix(mt, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mt, "video/"):
		return models.MediaVideo
	default:
		return models.MediaFile
	}
}

// MimeFromFilename resolves a MIME type from the file extension, falling back
// to application/octet-stream.
func MimeFromFilename(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if mt, ok := constants.MimeTypes[ext]; ok {
		return mt
	}
	return constants.DefaultMimeType
}

// ExtensionForMime returns a sensible file extension for a MIME type, used
// when a platform hands us inline bytes with no filename.
func ExtensionForMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := preferredExtensions[mt]; ok {
		return ext
	}
	return "bin"
}

var preferredExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"video/mp4":       "mp4",
	"video/quicktime": "mov",
	"application/pdf": "pdf",
	"text/plain":      "txt",
	"audio/mpeg":      "mp3",
	"audio/ogg":       "ogg",
}
