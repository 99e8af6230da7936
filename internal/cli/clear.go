package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pixelgrid/internal/engine"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	ClientOptions
	Yes bool
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{ClientOptions: ClientOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase every cell for all collaborators",
		Long: `Reset the whole grid to the default color and delete every stored pixel.

Asks for confirmation on stdin unless --yes is given.`,
		Args:          rootOpts.args(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runClear(opts *ClearOptions, cmd *cobra.Command) error {
	url, size, err := opts.resolve(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := connect(ctx, url, size)
	if err != nil {
		return opts.fail(cmd, CodeConnect, GetExitCode(err), "failed to connect", err)
	}
	defer sess.Close()

	confirm := engine.AlwaysConfirm
	if !opts.Yes {
		confirm = promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	cleared, err := sess.engine.Clear(ctx, confirm)
	if err != nil {
		return opts.fail(cmd, CodeWrite, ExitFailure, "clear failed", err)
	}
	if !cleared {
		return opts.formatter(cmd).Success("Clear cancelled", map[string]any{"cleared": false})
	}
	if err := sess.flush(ctx); err != nil {
		return opts.fail(cmd, CodeWrite, ExitFailure, "relay rejected the clear", err)
	}
	return opts.formatter(cmd).Success("Canvas cleared", map[string]any{"cleared": true})
}

// promptConfirm asks on out and reads a y/yes answer from in.
func promptConfirm(in io.Reader, out io.Writer) engine.ConfirmFunc {
	return func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
