package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/pixelgrid/internal/engine"
	"github.com/roach88/pixelgrid/internal/gateway"
)

// watchBuffer bounds the updates waiting to be printed.
const watchBuffer = 1024

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	ClientOptions
	Count int
}

// WatchEvent is one line of `pixelgrid watch --format json`.
type WatchEvent struct {
	Kind   string `json:"kind"`
	Change string `json:"change,omitempty"`
	Cell   string `json:"cell,omitempty"`
	Color  string `json:"color,omitempty"`
	Seq    int64  `json:"seq"`
	Error  string `json:"error,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{ClientOptions: ClientOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream grid changes as they arrive",
		Long: `Connect to the relay and print every change made by any collaborator
until interrupted, or until --count lines have been printed. The first
line reports the initial load.

Example:
  pixelgrid watch
  pixelgrid watch --format json --count 10`,
		Args:          rootOpts.args(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "exit after this many changes (0 = forever)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	url, size, err := opts.resolve(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	updates := make(chan engine.Update, watchBuffer)
	observe := func(u engine.Update) {
		select {
		case updates <- u:
		default:
			slog.Warn("watch output falling behind, dropping update", "kind", u.Kind, "seq", u.Seq)
		}
	}

	sess, err := connect(ctx, url, size, engine.WithObserver(observe))
	if err != nil {
		return opts.fail(cmd, CodeConnect, GetExitCode(err), "failed to connect", err)
	}
	defer sess.Close()

	out := opts.formatter(cmd)
	codec := sess.engine.Codec()
	printed := 0
	for opts.Count == 0 || printed < opts.Count {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			ev := watchEvent(u, codec.IndexToCoords, codec.RecordID)
			if err := out.Line(ev.text(), ev); err != nil {
				return err
			}
			printed++
		}
	}
	return nil
}

func watchEvent(u engine.Update, toXY func(int) (int, int), recordID func(x, y int) string) WatchEvent {
	ev := WatchEvent{Kind: string(u.Kind), Seq: u.Seq, Color: string(u.Color)}
	switch {
	case u.Index >= 0:
		ev.Cell = recordID(toXY(u.Index))
	case u.Change != nil && u.Change.Kind != gateway.ChangeClear:
		ev.Cell = u.Change.Record.ID
		if ev.Color == "" {
			ev.Color = u.Change.Record.Color
		}
	}
	if u.Change != nil {
		ev.Change = string(u.Change.Kind)
	}
	if u.Err != nil {
		ev.Error = u.Err.Error()
	}
	return ev
}

func (ev WatchEvent) text() string {
	s := fmt.Sprintf("#%d %s", ev.Seq, ev.Kind)
	if ev.Change != "" {
		s += " " + ev.Change
	}
	if ev.Cell != "" {
		s += " " + ev.Cell
	}
	if ev.Color != "" {
		s += " " + ev.Color
	}
	if ev.Error != "" {
		s += ": " + ev.Error
	}
	return s
}
