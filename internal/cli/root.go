package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/soimon/notion-todoist/internal/config"
	"github.com/soimon/notion-todoist/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Stores allows overriding the Notion and Todoist clients (for testing).
	// If nil, clients are built from the configuration.
	Stores StoresFactory

	// Clock allows overriding the pass clock (for testing).
	Clock engine.Clock
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the notion-todoist CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notion-todoist",
		Short: "Two-way sync between Notion and Todoist",
		Long: `Reconcile tasks, goals and projects between Notion databases and Todoist.

Notion is the source of truth for structure; edits made in Todoist since the
last pass are carried back. Each pass fetches both sides, plans the changes
and commits them, then records the Todoist sync token as the new boundary.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to config file")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPauseCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRehashCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) printer(cmd *cobra.Command) *printer {
	return &printer{
		json:    o.Format == "json",
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
		verbose: o.Verbose,
	}
}

// Execute runs the root command with args and reports a failure on stderr, or on
// stdout as a JSON error response with --format json. It returns the
// process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SilenceErrors = true
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	p := &printer{json: opts.Format == "json", out: stdout, diag: stderr, verbose: opts.Verbose}
	p.fail(err)
	return GetExitCode(err)
}
