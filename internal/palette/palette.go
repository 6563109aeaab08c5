// Package palette defines the fixed set of colours the remote canvas accepts and
// maps arbitrary RGB pixels onto it.
package palette

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Entry is a palette colour as written in configuration.
type Entry struct {
	Hex  string `yaml:"hex"`
	Name string `yaml:"name"`
}

// Color is one palette member. ID is its dense, zero-based position.
type Color struct {
	ID   int
	Hex  string
	Name string
	RGB  color.RGBA
}

// Palette is an ordered, immutable set of allowed colours.
// IDs are assigned from list order and never change for the lifetime of the value.
type Palette struct {
	colors []Color
	byHex  map[string]int
}

// DefaultEntries is the 32-colour canvas palette, in colour-index order.
var DefaultEntries = []Entry{
	{"#6D001A", "burgundy"},
	{"#BE0039", "dark red"},
	{"#FF4500", "red"},
	{"#FFA800", "orange"},
	{"#FFD635", "yellow"},
	{"#FFF8B8", "pale yellow"},
	{"#00A368", "dark green"},
	{"#00CC78", "green"},
	{"#7EED56", "light green"},
	{"#00756F", "dark teal"},
	{"#009EAA", "teal"},
	{"#00CCC0", "light teal"},
	{"#2450A4", "dark blue"},
	{"#3690EA", "blue"},
	{"#51E9F4", "light blue"},
	{"#493AC1", "indigo"},
	{"#6A5CFF", "periwinkle"},
	{"#94B3FF", "lavender"},
	{"#811E9F", "dark purple"},
	{"#B44AC0", "purple"},
	{"#E4ABFF", "pale purple"},
	{"#DE107F", "magenta"},
	{"#FF3881", "pink"},
	{"#FF99AA", "light pink"},
	{"#6D482F", "dark brown"},
	{"#9C6926", "brown"},
	{"#FFB470", "beige"},
	{"#000000", "black"},
	{"#515252", "dark gray"},
	{"#898D90", "gray"},
	{"#D4D7D9", "light gray"},
	{"#FFFFFF", "white"},
}

// Default returns the built-in palette.
func Default() *Palette {
	p, err := New(DefaultEntries)
	if err != nil {
		panic(fmt.Sprintf("built-in palette is invalid: %v", err))
	}
	return p
}

// New builds a palette from entries. Hex values must be unique.
func New(entries []Entry) (*Palette, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("palette must contain at least one colour")
	}

	p := &Palette{
		colors: make([]Color, 0, len(entries)),
		byHex:  make(map[string]int, len(entries)),
	}

	for i, e := range entries {
		rgb, err := ParseHex(e.Hex)
		if err != nil {
			return nil, fmt.Errorf("palette entry %d: %w", i, err)
		}

		hex := FormatHex(rgb)
		if prev, exists := p.byHex[hex]; exists {
			return nil, fmt.Errorf("palette entry %d: colour %s duplicates entry %d", i, hex, prev)
		}

		name := e.Name
		if name == "" {
			name = hex
		}

		p.byHex[hex] = i
		p.colors = append(p.colors, Color{ID: i, Hex: hex, Name: name, RGB: rgb})
	}

	return p, nil
}

// Len returns the number of colours.
func (p *Palette) Len() int { return len(p.colors) }

// Colors returns a copy of the palette in ID order.
func (p *Palette) Colors() []Color {
	out := make([]Color, len(p.colors))
	copy(out, p.colors)
	return out
}

// Color returns the colour with the given ID.
func (p *Palette) Color(id int) (Color, bool) {
	if id < 0 || id >= len(p.colors) {
		return Color{}, false
	}
	return p.colors[id], true
}

// IDFromHex looks up a colour by exact hex value ("#rrggbb", case-insensitive,
// leading '#' optional).
func (p *Palette) IDFromHex(hex string) (int, error) {
	rgb, err := ParseHex(hex)
	if err != nil {
		return 0, err
	}
	id, ok := p.byHex[FormatHex(rgb)]
	if !ok {
		return 0, fmt.Errorf("colour %s is not in the palette", FormatHex(rgb))
	}
	return id, nil
}

// Name returns the human-readable name for id, for logging.
func (p *Palette) Name(id int) string {
	c, ok := p.Color(id)
	if !ok {
		return fmt.Sprintf("unknown(%d)", id)
	}
	return c.Name
}

// ParseHex parses "#RRGGBB" or "RRGGBB" into an opaque colour.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q: want 6 hex digits", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// FormatHex renders the RGB channels of c as "#RRGGBB".
func FormatHex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
