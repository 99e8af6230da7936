package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config is loaded in PersistentPreRunE.
	Config *Config

	// Getenv reads environment overrides. Defaults to os.Getenv.
	Getenv func(string) string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pixelgrid CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Getenv: os.Getenv}

	cmd := &cobra.Command{
		Use:   "pixelgrid",
		Short: "pixelgrid - a shared canvas",
		Long:  "Paint cells on a shared grid with other collaborators and watch their edits arrive in real time.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := LoadConfig(opts.ConfigPath, opts.Getenv)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = cfg
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Bad flags and arguments are command errors, not remote failures.
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return opts.fail(c, CodeInput, ExitCommandError, "invalid flags for "+c.CommandPath(), err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPaintCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewPaletteCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// setupLogging installs a text slog handler: info level, debug with
// --verbose.
func setupLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// args wraps an argument validator so its failures are reported as input
// errors and exit with ExitCommandError.
func (o *RootOptions) args(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return o.fail(cmd, CodeInput, ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// config returns the loaded config, or the defaults when the command runs
// without the root pre-run.
func (o *RootOptions) config() *Config {
	if o.Config == nil {
		o.Config = DefaultConfig()
	}
	return o.Config
}

// fail reports err through the formatter and returns it as an ExitError.
func (o *RootOptions) fail(cmd *cobra.Command, code string, exitCode int, message string, err error) error {
	text := message
	if err != nil {
		text = fmt.Sprintf("%s: %v", message, err)
	}
	_ = o.formatter(cmd).Error(code, text)
	return WrapExitError(exitCode, message, err)
}
