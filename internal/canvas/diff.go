package canvas

import (
	"errors"
	"fmt"
	"image"

	"github.com/dyluth/mosaic/internal/palette"
)

// ErrDimensionMismatch is returned when a snapshot does not cover exactly the
// template's bounding box.
var ErrDimensionMismatch = errors.New("snapshot and template dimensions differ")

// Discrepancy is one canvas pixel that disagrees with the template.
type Discrepancy struct {
	// Local is the position relative to the template's top-left corner.
	Local image.Point

	// ColorID is the palette ID the pixel should become.
	ColorID int
}

// Diff compares t against snapshot and returns every opaque template pixel whose
// quantized colour differs from the snapshot's RGB value at the same position.
// Order of the result is unspecified.
func Diff(m *palette.Mapper, t *Template, snapshot *image.NRGBA) ([]Discrepancy, error) {
	return diffIndexed(m, t, m.Quantize(t.Image), snapshot)
}

// diffIndexed is Diff with the template already quantized.
func diffIndexed(m *palette.Mapper, t *Template, target *palette.Indexed, snapshot *image.NRGBA) ([]Discrepancy, error) {
	size := t.Size()
	if snapshot.Bounds().Size() != size {
		return nil, fmt.Errorf("%w: template %v, snapshot %v", ErrDimensionMismatch, size, snapshot.Bounds().Size())
	}

	var out []Discrepancy
	sb := snapshot.Bounds()

	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			if !t.Opaque(x, y) {
				continue
			}

			id := target.At(x, y)
			want := m.RGB(id)

			o := snapshot.PixOffset(sb.Min.X+x, sb.Min.Y+y)
			if snapshot.Pix[o] == want.R && snapshot.Pix[o+1] == want.G && snapshot.Pix[o+2] == want.B {
				continue
			}

			out = append(out, Discrepancy{Local: image.Pt(x, y), ColorID: id})
		}
	}

	return out, nil
}
