package utils

import "strings"

// GetFileExtensionFromContentType maps a MIME type to a file extension used
// when an attachment arrives without a usable filename.
func GetFileExtensionFromContentType(contentType string) string {
	contentType = strings.ToLower(contentType)

	switch {
	case strings.Contains(contentType, "jpeg") || strings.Contains(contentType, "jpg"):
		return "jpg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	case strings.Contains(contentType, "pdf"):
		return "pdf"
	case strings.Contains(contentType, "calendar"):
		return "ics"
	case strings.Contains(contentType, "csv"):
		return "csv"
	case strings.Contains(contentType, "json"):
		return "json"
	case strings.Contains(contentType, "html"):
		return "html"
	case strings.Contains(contentType, "text/plain"):
		return "txt"
	case strings.Contains(contentType, "message/rfc822"):
		return "eml"
	case strings.Contains(contentType, "zip"):
		return "zip"
	default:
		return "bin"
	}
}
