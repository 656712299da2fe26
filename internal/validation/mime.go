package validation

import (
	"net/http"
	"path/filepath"
	"strings"
)

var DefaultAllowedMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"video/mp4",
	"application/pdf",
}

// DetectContentType sniffs the first 512 bytes of an upload.
func DetectContentType(header []byte) string {
	if len(header) > 512 {
		header = header[:512]
	}
	return http.DetectContentType(header)
}

func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(normalizeMIME(mimeType), "image/")
}

func IsVideoMIME(mimeType string) bool {
	return strings.HasPrefix(normalizeMIME(mimeType), "video/")
}

func IsImageExtension(extension string) bool {
	switch strings.ToLower(strings.TrimSpace(extension)) {
	case ".png", ".apng", ".jpg", ".jpeg", ".jpe", ".jfif", ".gif", ".webp", ".bmp", ".tiff", ".tif", ".avif", ".heic", ".heif":
		return true
	default:
		return false
	}
}

func IsVideoExtension(extension string) bool {
	switch strings.ToLower(strings.TrimSpace(extension)) {
	case ".mp4", ".m4v", ".mov", ".webm", ".mkv", ".avi", ".mpeg", ".mpg", ".3gp", ".ogv":
		return true
	default:
		return false
	}
}

// ExtensionMatchesMIME reports whether the file name's extension belongs to
// the same family as the declared content type. Families without a known
// extension set only require an extension to be present.
func ExtensionMatchesMIME(filename string, mimeType string) bool {
	extension := strings.ToLower(filepath.Ext(filename))
	if extension == "" {
		return false
	}

	cleaned := normalizeMIME(mimeType)
	switch {
	case IsImageMIME(cleaned):
		return IsImageExtension(extension)
	case IsVideoMIME(cleaned):
		return IsVideoExtension(extension)
	case cleaned == "application/pdf":
		return extension == ".pdf"
	default:
		return true
	}
}

func mimeAllowed(mimeType string, allowed []string) bool {
	cleaned := normalizeMIME(mimeType)
	for _, candidate := range allowed {
		if normalizeMIME(candidate) == cleaned {
			return true
		}
	}
	return false
}

func normalizeMIME(mimeType string) string {
	cleaned := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(cleaned, ";"); idx >= 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}
	return cleaned
}
