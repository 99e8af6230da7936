package grid

import "strings"

const paletteGlyphs = "0123456789ABCDEF"

// Glyph returns a one-character label for c: '.' for blank, the hex digit
// of its Palette position for palette colors, and '?' for anything else.
func Glyph(c, blank Color) byte {
	if c == blank {
		return '.'
	}
	for i, p := range Palette {
		if p == c && i < len(paletteGlyphs) {
			return paletteGlyphs[i]
		}
	}
	return '?'
}

// Rows renders the snapshot as one string of glyphs per grid row, top row
// first. Cells equal to blank render as '.'.
func (s Snapshot) Rows(blank Color) []string {
	n := s.Size()
	rows := make([]string, 0, n)
	var b strings.Builder
	for y := 0; y < n; y++ {
		b.Reset()
		for x := 0; x < n; x++ {
			b.WriteByte(Glyph(s.At(y*n+x), blank))
		}
		rows = append(rows, b.String())
	}
	return rows
}
