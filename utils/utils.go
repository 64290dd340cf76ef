package utils

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// CreateFolder makes sure the given directory (and its parents) exist.
func CreateFolder(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

// GetEnv returns the value of an environment variable or a fallback.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// GenerateUniqueID returns a random identifier suitable for stored records.
func GenerateUniqueID() string {
	return uuid.NewString()
}
