// Package scaffold writes a starter mosaic.yml and canvas.yml.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/mosaic/internal/artwork"
	"github.com/dyluth/mosaic/internal/config"
	"github.com/dyluth/mosaic/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	ConfigFile  = "mosaic.yml"
	OffsetsFile = "canvas.yml"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes the starter files into dir.
// If force is true, existing files are overwritten.
func Initialize(dir string, force bool) error {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return validateCreatedFiles(dir)
}

// getTemplateFiles reads the embedded templates
func getTemplateFiles(dir string) ([]FileInfo, error) {
	var files []FileInfo
	for _, name := range []string{ConfigFile, OffsetsFile} {
		content, err := templatesFS.ReadFile("templates/" + name + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", name, err)
		}
		files = append(files, FileInfo{
			Path:        filepath.Join(dir, name),
			Content:     content,
			Permissions: 0600, // holds passwords
		})
	}
	return files, nil
}

// validateCreatedFiles checks the written files load cleanly
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, ConfigFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}
	if _, err := artwork.LoadOffsets(filepath.Join(dir, OffsetsFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", OffsetsFile, err)
	}
	return nil
}

// PrintSuccess prints the created files and next steps
func PrintSuccess() {
	printer.Success("Successfully initialized mosaic project!\n")
	printer.Println("\nCreated:")
	printer.Printf("  ✓ %s\n", ConfigFile)
	printer.Printf("  ✓ %s\n", OffsetsFile)
	printer.Println("\nNext steps:")
	printer.Printf("  1. Add your accounts under 'workers' in %s\n", ConfigFile)
	printer.Println("  2. Put your artwork at template.png (or set template.url)")
	printer.Printf("  3. Check the colours with 'mosaic diff --board <board.png>'\n")
	printer.Println("  4. Run 'mosaic run'")
}
