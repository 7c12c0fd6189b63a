package storage

import (
	"fmt"
	"strings"
)

// MediaPolicy constrains what visitors and admins may upload
type MediaPolicy struct {
	MaxFileMB float64
	MimeTypes []string
}

// DefaultMediaPolicy covers the media the chat widget can render
func DefaultMediaPolicy() *MediaPolicy {
	return &MediaPolicy{
		MaxFileMB: 10,
		MimeTypes: []string{"image/*", "video/*", "audio/*", "application/pdf"},
	}
}

// ValidateFile validates an upload against the policy
func (mp *MediaPolicy) ValidateFile(contentType string, fileSizeBytes int64) error {
	if mp == nil {
		return nil
	}

	if mp.MaxFileMB > 0 {
		maxBytes := int64(mp.MaxFileMB * 1024 * 1024)
		if fileSizeBytes > maxBytes {
			return fmt.Errorf("file size %d bytes exceeds maximum %.2f MB", fileSizeBytes, mp.MaxFileMB)
		}
	}

	if len(mp.MimeTypes) > 0 && !mp.matchesMimeType(contentType) {
		return fmt.Errorf("content type %s is not allowed. Allowed types: %v", contentType, mp.MimeTypes)
	}

	return nil
}

func (mp *MediaPolicy) matchesMimeType(contentType string) bool {
	// Strip parameters like charset
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	for _, allowed := range mp.MimeTypes {
		allowed = strings.ToLower(allowed)
		if allowed == contentType {
			return true
		}
		// Wildcard subtype, e.g. image/*
		if strings.HasSuffix(allowed, "/*") {
			prefix := strings.TrimSuffix(allowed, "*")
			if strings.HasPrefix(contentType, prefix) {
				return true
			}
		}
	}
	return false
}

// MediaTypeFor maps a content type onto the widget's media categories
func MediaTypeFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
