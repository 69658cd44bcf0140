package cli

import (
	"github.com/spf13/cobra"
)

// RehashOptions holds flags for the rehash command.
type RehashOptions struct {
	*RootOptions
	DryRun bool
}

// NewRehashCommand creates the rehash command.
func NewRehashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RehashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rehash",
		Short: "Rewrite stale sync stamps on Todoist tasks",
		Long: `Rewrite the stamp of every stamped Todoist task whose recorded hash no
longer matches its content.

Run it after changing the recurring or postponed symbols, and once over
stamps written by older versions that hashed unnormalized text, so the next
pass does not mistake those tasks for Todoist edits.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRehash(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "count stale stamps without rewriting them")

	return cmd
}

func runRehash(opts *RehashOptions, cmd *cobra.Command) error {
	a, err := loadApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	lock, err := a.lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	eng, err := a.newEngine(opts.RootOptions, nil, opts.DryRun)
	if err != nil {
		return err
	}
	n, err := eng.Rehash(cmd.Context())
	if err != nil {
		return passExitError(err)
	}

	format := "%d stamps rewritten."
	if opts.DryRun {
		format = "%d stale stamps found."
	}
	return opts.printer(cmd).printf(map[string]any{"rehashed": n, "dry_run": opts.DryRun}, format, n)
}
