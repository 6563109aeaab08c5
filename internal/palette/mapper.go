package palette

import (
	"image"
	"image/color"
)

// Mapper quantizes RGB pixels onto a Palette by minimum Euclidean distance in
// RGB space. Ties go to the lowest palette ID. Alpha is ignored.
//
// Channels are uint8, so every input is in range; there is nothing to clamp.
// A Mapper holds no mutable state and is safe for concurrent use.
type Mapper struct {
	palette *Palette
}

// NewMapper returns a Mapper over p.
func NewMapper(p *Palette) *Mapper {
	return &Mapper{palette: p}
}

// Palette returns the palette the mapper quantizes onto.
func (m *Mapper) Palette() *Palette { return m.palette }

// Nearest returns the closest palette ID to c and the squared distance to it.
func (m *Mapper) Nearest(c color.RGBA) (id int, dist2 int) {
	best, bestDist := 0, -1
	for _, pc := range m.palette.colors {
		d := distance2(c, pc.RGB)
		if bestDist < 0 || d < bestDist {
			best, bestDist = pc.ID, d
			if d == 0 {
				break
			}
		}
	}
	return best, bestDist
}

// IDFromHex looks up an exact palette colour.
func (m *Mapper) IDFromHex(hex string) (int, error) { return m.palette.IDFromHex(hex) }

// Name returns the palette name for id.
func (m *Mapper) Name(id int) string { return m.palette.Name(id) }

// RGB returns the colour for id, or opaque black when id is out of range.
func (m *Mapper) RGB(id int) color.RGBA {
	c, ok := m.palette.Color(id)
	if !ok {
		return color.RGBA{A: 0xff}
	}
	return c.RGB
}

// Indexed is a grid of palette IDs covering Rect, stored row-major.
type Indexed struct {
	Rect image.Rectangle
	IDs  []int
}

// At returns the palette ID at absolute image coordinate (x, y).
func (ix *Indexed) At(x, y int) int {
	w := ix.Rect.Dx()
	return ix.IDs[(y-ix.Rect.Min.Y)*w+(x-ix.Rect.Min.X)]
}

// Quantize maps every pixel of img onto the palette in one pass.
// Distinct colours are resolved once and memoized for the duration of the call,
// which keeps large flat-coloured templates cheap.
func (m *Mapper) Quantize(img image.Image) *Indexed {
	b := img.Bounds()
	out := &Indexed{Rect: b, IDs: make([]int, b.Dx()*b.Dy())}
	memo := make(map[uint32]int)

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := rgbAt(img, x, y)
			key := uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
			id, ok := memo[key]
			if !ok {
				id, _ = m.Nearest(c)
				memo[key] = id
			}
			out.IDs[i] = id
			i++
		}
	}

	return out
}

// rgbAt reads the straight (non-premultiplied) RGB channels at (x, y).
func rgbAt(img image.Image, x, y int) color.RGBA {
	switch src := img.(type) {
	case *image.NRGBA:
		o := src.PixOffset(x, y)
		return color.RGBA{R: src.Pix[o], G: src.Pix[o+1], B: src.Pix[o+2], A: 0xff}
	case *image.RGBA:
		o := src.PixOffset(x, y)
		return color.RGBA{R: src.Pix[o], G: src.Pix[o+1], B: src.Pix[o+2], A: 0xff}
	}
	n := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return color.RGBA{R: n.R, G: n.G, B: n.B, A: 0xff}
}

func distance2(a, b color.RGBA) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}
