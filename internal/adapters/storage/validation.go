package storage

import (
	"fmt"
	"strings"
)

// MaxObjectSize bounds a single stored document (32 MiB).
const MaxObjectSize int64 = 32 << 20

// ValidateObjectKey rejects empty keys and path traversal.
func ValidateObjectKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("object key must not be empty")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("object key %q must be relative", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." || segment == "." {
			return fmt.Errorf("object key %q must not contain relative segments", key)
		}
	}
	return nil
}

// ValidateObjectSize checks if the object size is within limits.
func ValidateObjectSize(sizeBytes int64) error {
	if sizeBytes > MaxObjectSize {
		return fmt.Errorf("object size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, MaxObjectSize)
	}
	return nil
}
