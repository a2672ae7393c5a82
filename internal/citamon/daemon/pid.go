package daemon

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDirectoriesExist ensures that the directories for the given file paths exist
func EnsureDirectoriesExist(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
