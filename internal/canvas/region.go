package canvas

import (
	"fmt"
	"image"
)

// Grid describes how the remote canvas is split into equally sized square
// regions, numbered row-major:
//
//	0 | 1 | 2
//	3 | 4 | 5
type Grid struct {
	Size    int
	Columns int
}

// DefaultGrid is a 3-column grid of 1000x1000 regions.
var DefaultGrid = Grid{Size: 1000, Columns: 3}

// Validate checks the grid geometry.
func (g Grid) Validate() error {
	if g.Size <= 0 {
		return fmt.Errorf("region size must be positive, got %d", g.Size)
	}
	if g.Columns <= 0 {
		return fmt.Errorf("region columns must be positive, got %d", g.Columns)
	}
	return nil
}

// Locate translates an absolute canvas coordinate into the region index and the
// coordinate within that region. Division floors, so a coordinate left of or
// above the origin lands in a negative column or row with a non-negative offset.
func (g Grid) Locate(abs image.Point) (within image.Point, region int) {
	col, x := floorDiv(abs.X, g.Size)
	row, y := floorDiv(abs.Y, g.Size)
	return image.Pt(x, y), col + g.Columns*row
}

// floorDiv returns the floored quotient and the matching non-negative remainder.
func floorDiv(a, b int) (q, r int) {
	q, r = a/b, a%b
	if r < 0 {
		q--
		r += b
	}
	return q, r
}
