package media

import (
	"path/filepath"
	"strings"
)

// ContentType maps a stored file name to the MIME type served for it. The
// table is fixed rather than delegating to mime.TypeByExtension so responses
// do not vary with the host's mime database.
func ContentType(name string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "ogv", "ogg":
		return "video/ogg"
	case "mov", "qt":
		return "video/quicktime"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// AllowedVideoType reports whether a declared upload MIME type is an accepted
// video container.
func AllowedVideoType(contentType string) bool {
	switch normalizeMediaType(contentType) {
	case "video/mp4", "video/webm", "video/ogg", "video/quicktime":
		return true
	}
	return false
}

// AllowedImageType reports whether a declared upload MIME type is an accepted
// thumbnail format.
func AllowedImageType(contentType string) bool {
	switch normalizeMediaType(contentType) {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return true
	}
	return false
}

func normalizeMediaType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}
