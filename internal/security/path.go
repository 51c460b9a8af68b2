package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePath checks that a config or database path is safe to open.
// Absolute paths are allowed (deployments mount data volumes), directory
// traversal and NUL bytes are not.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains NUL byte")
	}

	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}

	return nil
}

// ValidatePathWithBase checks that a relative path stays inside baseDir once
// resolved.
func ValidatePathWithBase(path, baseDir string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed under base directory: %s", path)
	}

	cleaned := filepath.Clean(filepath.Join(baseDir, path))
	cleanBase := filepath.Clean(baseDir)
	if !strings.HasPrefix(cleaned, cleanBase+string(filepath.Separator)) && cleaned != cleanBase {
		return fmt.Errorf("path escapes base directory: %s", path)
	}

	return nil
}
