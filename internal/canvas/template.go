package canvas

import (
	"image"
	"image/color"
	"image/draw"
)

// Template is the target artwork and its anchor on the canvas.
// The image is immutable once built; refreshes replace the whole value.
type Template struct {
	// Anchor is the absolute canvas coordinate of the template's top-left pixel,
	// before canvas offsets are applied.
	Anchor image.Point

	// Image holds the pixels with bounds starting at (0, 0).
	Image *image.NRGBA
}

// NewTemplate copies img into an origin-based NRGBA buffer.
func NewTemplate(anchor image.Point, img image.Image) *Template {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Template{Anchor: anchor, Image: dst}
}

// Size returns the template width and height.
func (t *Template) Size() image.Point {
	return t.Image.Bounds().Size()
}

// Area returns the absolute canvas rectangle the template covers once the
// API offset is applied.
func (t *Template) Area(offsets Offsets) image.Rectangle {
	origin := t.Anchor.Add(offsets.TemplateAPI)
	return image.Rectangle{Min: origin, Max: origin.Add(t.Size())}
}

// Opaque reports whether the template pixel at local (x, y) must be enforced.
func (t *Template) Opaque(x, y int) bool {
	return t.Image.Pix[t.Image.PixOffset(x, y)+3] == 0xff
}

// Offsets are canvas-wide corrections loaded alongside the template.
type Offsets struct {
	// TemplateAPI is added to the template anchor to get remote API coordinates.
	TemplateAPI image.Point `yaml:"template_api"`

	// Visual is added to API coordinates to get the position users see on the site.
	Visual image.Point `yaml:"visual"`
}

// Crop copies the region r of board into a new origin-based opaque RGB buffer.
// Parts of r that fall outside board are filled with opaque black.
func Crop(board image.Image, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.NRGBA{A: 0xff}), image.Point{}, draw.Src)

	src := r.Intersect(board.Bounds())
	if !src.Empty() {
		draw.Draw(dst, src.Sub(r.Min), board, src.Min, draw.Src)
	}

	// Snapshots compare RGB only; drop any transparency the board carried.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
