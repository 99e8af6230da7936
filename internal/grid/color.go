package grid

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Color is a canonical "#RRGGBB" upper-case hex color.
type Color string

// Colors from the shared palette. DefaultColor doubles as the eraser: an
// erased cell is indistinguishable from one that was never painted.
const (
	DefaultColor    Color = "#FFFFFF"
	EraserColor           = DefaultColor
	DefaultSelected Color = "#000000"
)

// Palette is the fixed set of paint colors offered to users, in display order.
var Palette = []Color{
	"#FF4500", // bright red
	"#FFA800", // orange
	"#FFD635", // yellow
	"#00A368", // green
	"#7EED56", // light green
	"#2450A4", // dark blue
	"#3690EA", // blue
	"#51E9F4", // cyan
	"#811E9F", // indigo
	"#B44AC0", // purple
	"#FF99AA", // pink
	"#9C6926", // brown
	"#000000", // black
	"#898D90", // gray
	"#D4D7D9", // light gray
	"#FFFFFF", // white
}

// ParseColor validates and canonicalizes a hex color. Both "#rgb" and
// "#rrggbb" are accepted in any case; the result is always "#RRGGBB".
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		return "", fmt.Errorf("color %q: missing leading '#'", s)
	}
	// A Caser holds state, so each call gets its own.
	hex := cases.Upper(language.Und).String(s[1:])
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
	default:
		return "", fmt.Errorf("color %q: want 3 or 6 hex digits", s)
	}
	for i := 0; i < len(hex); i++ {
		c := hex[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return "", fmt.Errorf("color %q: invalid hex digit %q", s, c)
		}
	}
	return Color("#" + hex), nil
}

// MustParseColor is ParseColor for constants in tests and fixtures.
func MustParseColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Valid reports whether c is already in canonical form.
func (c Color) Valid() bool {
	parsed, err := ParseColor(string(c))
	return err == nil && parsed == c
}

// String implements fmt.Stringer.
func (c Color) String() string {
	return string(c)
}

// ShortcutColor maps a keyboard shortcut to a palette color: "1".."9" select
// the first nine entries, "0" the tenth, and "e" the eraser.
func ShortcutColor(key string) (Color, bool) {
	key = strings.ToLower(key)
	if key == "e" {
		return EraserColor, true
	}
	if len(key) != 1 || key[0] < '0' || key[0] > '9' {
		return "", false
	}
	idx := int(key[0]-'0') - 1
	if key == "0" {
		idx = 9
	}
	if idx >= len(Palette) {
		return "", false
	}
	return Palette[idx], true
}

// Shortcut returns the keyboard shortcut bound to c, if any.
func Shortcut(c Color) (string, bool) {
	if c == EraserColor {
		return "e", true
	}
	for i := 0; i < 10 && i < len(Palette); i++ {
		if Palette[i] == c {
			return string(rune('0' + (i+1)%10)), true
		}
	}
	return "", false
}
