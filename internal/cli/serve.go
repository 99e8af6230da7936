package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/pixelgrid/internal/gateway"
	"github.com/roach88/pixelgrid/internal/pgstore"
	"github.com/roach88/pixelgrid/internal/relay"
	"github.com/roach88/pixelgrid/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Backend string
	DB      string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay that collaborators connect to",
		Long: `Run the pixelgrid relay over a storage backend.

Backends:
  sqlite    a local database file (default)
  postgres  PostgreSQL rows with Redis pub/sub for change notifications
  memory    an in-process table, lost on exit

Example:
  pixelgrid serve --addr :8080 --db ./pixelgrid.db
  DATABASE_URL=postgres://localhost/pixelgrid pixelgrid serve --backend postgres`,
		Args:          rootOpts.args(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "storage backend: sqlite, postgres or memory (overrides config)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.config().Serve
	if cmd.Flags().Changed("addr") {
		cfg.Addr = opts.Addr
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend = opts.Backend
	}
	if cmd.Flags().Changed("db") {
		cfg.DB = opts.DB
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	gw, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := gw.Close(); closeErr != nil {
			slog.Error("error closing backend", "error", closeErr)
		}
	}()

	srv := relay.NewServer(gw)
	fmt.Fprintf(cmd.OutOrStdout(), "Relay serving %s backend on %s. Press Ctrl-C to stop.\n", cfg.Backend, cfg.Addr)

	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
		return WrapExitError(ExitFailure, "relay error", err)
	}
	return nil
}

// backend is a gateway the serve command owns.
type backend interface {
	gateway.Gateway
	io.Closer
}

func openBackend(ctx context.Context, cfg ServeConfig) (backend, error) {
	switch cfg.Backend {
	case BackendSQLite:
		slog.Info("opening database", "path", cfg.DB)
		st, err := store.Open(cfg.DB)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		return st, nil
	case BackendPostgres:
		slog.Info("connecting to postgres", "redis", cfg.Postgres.RedisAddr, "channel", cfg.Postgres.Channel)
		st, err := pgstore.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "failed to connect to postgres backend", err)
		}
		return st, nil
	case BackendMemory:
		slog.Warn("using in-memory backend, pixels are lost on exit")
		return gateway.NewMemory(), nil
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}
