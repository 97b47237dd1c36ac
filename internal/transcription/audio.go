package transcription

import (
	"path/filepath"
	"strings"
)

// DefaultSupportedFormats lists the accepted media file extensions
var DefaultSupportedFormats = []string{
	".mp3", ".m4a", ".wav", ".flac", ".aac", ".ogg", ".wma",
	".mp4", ".mkv", ".avi", ".mov", ".webm",
}

// ValidateFormat checks a filename's extension against an allow-list
func ValidateFormat(filename string, supported []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range supported {
		if ext == format {
			return true
		}
	}
	return false
}
