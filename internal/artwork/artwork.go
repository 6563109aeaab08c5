// Package artwork loads the template image and the canvas offsets file.
// Both are re-read on every Load so edits take effect on the next template
// refresh without a restart.
package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/dyluth/mosaic/internal/canvas"
	"gopkg.in/yaml.v3"
)

// Source says where the template comes from. Exactly one of Path and URL is set.
type Source struct {
	Path   string
	URL    string
	Anchor image.Point
}

// Validate checks that exactly one location is set.
func (s Source) Validate() error {
	switch {
	case s.Path == "" && s.URL == "":
		return fmt.Errorf("template source requires a path or a url")
	case s.Path != "" && s.URL != "":
		return fmt.Errorf("template source cannot have both path and url")
	}
	return nil
}

func (s Source) String() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// canvasFile is the layout of the offsets file.
type canvasFile struct {
	Offset canvas.Offsets `yaml:"offset"`
}

// Loader implements canvas.TemplateLoader.
type Loader struct {
	source      Source
	offsetsPath string
	http        *http.Client
}

// NewLoader creates a Loader. offsetsPath may be empty for zero offsets.
// client is used for URL sources; nil uses http.DefaultClient.
func NewLoader(source Source, offsetsPath string, client *http.Client) (*Loader, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{source: source, offsetsPath: offsetsPath, http: client}, nil
}

// Load reads the template image and offsets.
func (l *Loader) Load(ctx context.Context) (*canvas.Template, canvas.Offsets, error) {
	offsets, err := LoadOffsets(l.offsetsPath)
	if err != nil {
		return nil, canvas.Offsets{}, err
	}

	var img image.Image
	if l.source.URL != "" {
		img, err = l.fetch(ctx, l.source.URL)
	} else {
		img, err = LoadImage(l.source.Path)
	}
	if err != nil {
		return nil, canvas.Offsets{}, err
	}

	t := canvas.NewTemplate(l.source.Anchor, img)
	size := t.Size()
	log.Printf("[DEBUG] Loaded template %s (%dx%d) anchored at %v", l.source, size.X, size.Y, l.source.Anchor)
	return t, offsets, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid template url %q: %w", url, err)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download template: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("template download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return decode(data, url)
}

// LoadImage decodes a PNG or JPEG file.
func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return decode(data, path)
}

func decode(data []byte, name string) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", name, err)
	}
	return img, nil
}

// LoadOffsets reads the offsets file. An empty path yields zero offsets.
func LoadOffsets(path string) (canvas.Offsets, error) {
	if path == "" {
		return canvas.Offsets{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return canvas.Offsets{}, fmt.Errorf("failed to read canvas file %s: %w", path, err)
	}

	var f canvasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return canvas.Offsets{}, fmt.Errorf("failed to parse canvas file %s: %w", path, err)
	}
	return f.Offset, nil
}
