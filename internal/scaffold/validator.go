package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckExisting returns an error naming any starter files already present in dir
func CheckExisting(dir string) error {
	var existingFiles []string
	for _, name := range []string{ConfigFile, OffsetsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existingFiles = append(existingFiles, name)
		}
	}

	if len(existingFiles) == 0 {
		return nil
	}

	return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'mosaic init --force' to reinitialize (this will overwrite existing configuration)",
		strings.Join(existingFiles, ", "))
}
