package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/pixelgrid/internal/grid"
)

// PaintOptions holds flags for the paint command.
type PaintOptions struct {
	ClientOptions
	Color string
}

// NewPaintCommand creates the paint command.
func NewPaintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PaintOptions{ClientOptions: ClientOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "paint <x> <y>",
		Short: "Paint one cell",
		Long: `Paint the cell at column x, row y and wait for the relay to accept it.

The color is a hex value ("#FF4500", "#f40") or a palette shortcut:
"1".."9" and "0" pick palette entries, "e" is the eraser.
Run "pixelgrid palette" to list them. Put "--" before the coordinates if
one of them starts with a minus sign.

Example:
  pixelgrid paint 3 4 --color '#FF4500'
  pixelgrid paint 0 0 --color 6 --url http://canvas.local:8080`,
		Args:          rootOpts.args(cobra.ExactArgs(2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaint(opts, args, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Color, "color", "c", string(grid.DefaultSelected), "hex color or palette shortcut")

	return cmd
}

func runPaint(opts *PaintOptions, args []string, cmd *cobra.Command) error {
	x, errX := strconv.Atoi(args[0])
	y, errY := strconv.Atoi(args[1])
	if errX != nil || errY != nil {
		return opts.fail(cmd, CodeInput, ExitCommandError,
			fmt.Sprintf("coordinates must be integers, got %q %q", args[0], args[1]), nil)
	}
	color, err := resolveColor(opts.Color)
	if err != nil {
		return opts.fail(cmd, CodeInput, ExitCommandError, "invalid color", err)
	}

	url, size, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	if x < 0 || y < 0 || x >= size || y >= size {
		return opts.fail(cmd, CodeInput, ExitCommandError,
			fmt.Sprintf("(%d, %d) is outside the %dx%d grid", x, y, size, size), nil)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := connect(ctx, url, size)
	if err != nil {
		return opts.fail(cmd, CodeConnect, GetExitCode(err), "failed to connect", err)
	}
	defer sess.Close()

	if err := sess.engine.SelectColor(color); err != nil {
		return opts.fail(cmd, CodeInput, ExitCommandError, "invalid color", err)
	}
	if err := sess.engine.PaintAt(ctx, x, y); err != nil {
		return opts.fail(cmd, CodeInput, ExitCommandError, "paint rejected", err)
	}
	if err := sess.flush(ctx); err != nil {
		return opts.fail(cmd, CodeWrite, ExitFailure, "relay rejected the paint", err)
	}

	id := sess.engine.Codec().RecordID(x, y)
	return opts.formatter(cmd).Success(
		fmt.Sprintf("Painted %s %s", id, color),
		map[string]any{"id": id, "x": x, "y": y, "color": color},
	)
}

// resolveColor accepts a hex color or a palette shortcut key.
func resolveColor(s string) (grid.Color, error) {
	if c, ok := grid.ShortcutColor(s); ok {
		return c, nil
	}
	return grid.ParseColor(s)
}
