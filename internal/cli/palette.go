package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pixelgrid/internal/grid"
)

// PaletteEntry is one row of `pixelgrid palette`.
type PaletteEntry struct {
	Glyph    string `json:"glyph"`
	Color    string `json:"color"`
	Shortcut string `json:"shortcut,omitempty"`
}

// NewPaletteCommand creates the palette command.
func NewPaletteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "palette",
		Short:         "List the paint colors and their shortcuts",
		Args:          rootOpts.args(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := paletteEntries()
			var b strings.Builder
			for i, e := range entries {
				if i > 0 {
					b.WriteByte('\n')
				}
				fmt.Fprintf(&b, "%s  %s", e.Glyph, e.Color)
				if e.Shortcut != "" {
					fmt.Fprintf(&b, "  key %s", e.Shortcut)
				}
			}
			return rootOpts.formatter(cmd).Success(b.String(), entries)
		},
	}
	return cmd
}

func paletteEntries() []PaletteEntry {
	entries := make([]PaletteEntry, 0, len(grid.Palette))
	for _, c := range grid.Palette {
		// Glyphs are rendered against a transparent blank so that the
		// default color keeps its palette glyph here.
		e := PaletteEntry{
			Glyph: string(grid.Glyph(c, "")),
			Color: string(c),
		}
		if key, ok := grid.Shortcut(c); ok {
			e.Shortcut = key
		}
		entries = append(entries, e)
	}
	return entries
}
