package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pixelgrid/internal/grid"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	ClientOptions
}

// DumpData is the JSON payload of `pixelgrid dump`.
type DumpData struct {
	Size    int               `json:"size"`
	Seq     int64             `json:"seq"`
	Rows    []string          `json:"rows"`
	Painted map[string]string `json:"painted"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{ClientOptions: ClientOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the current grid",
		Long: `Load the grid from the relay and print it, one line per row.

Unpainted cells print as '.', palette colors as their palette position
(0-F, see "pixelgrid palette") and other colors as '?'. With --format json
the painted cells are listed with their exact colors.`,
		Args:          rootOpts.args(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	opts.addFlags(cmd)

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
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

	snap := sess.engine.Snapshot()
	blank := sess.engine.DefaultColor()
	rows := snap.Rows(blank)

	return opts.formatter(cmd).Success(strings.Join(rows, "\n"), DumpData{
		Size:    snap.Size(),
		Seq:     snap.Seq(),
		Rows:    rows,
		Painted: painted(snap, blank, sess.engine.Codec().RecordID),
	})
}

func painted(snap grid.Snapshot, blank grid.Color, recordID func(x, y int) string) map[string]string {
	out := make(map[string]string)
	n := snap.Size()
	for i := 0; i < snap.Len(); i++ {
		if c := snap.At(i); c != blank {
			out[recordID(i%n, i/n)] = string(c)
		}
	}
	return out
}
