package storage

import (
	"path"
	"strings"

	"github.com/casaviva/backoffice/internal/domain/shared"
)

const maxEvidenceKeyLength = 512

// CleanEvidenceKey trims and validates an object key. Keys are relative
// slash-separated paths; absolute keys and parent references are rejected.
func CleanEvidenceKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "", invalidKey(key, "is required")
	case len(key) > maxEvidenceKeyLength:
		return "", invalidKey(key, "is too long")
	case strings.HasPrefix(key, "/"):
		return "", invalidKey(key, "must be relative")
	case strings.ContainsAny(key, "\\\x00"):
		return "", invalidKey(key, "contains invalid characters")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", invalidKey(key, "must not reference a parent directory")
		}
	}
	return path.Clean(key), nil
}

func invalidKey(key, reason string) error {
	return shared.NewValidationError("Invalid evidence key", map[string]string{
		"receipt_key": reason,
	})
}
