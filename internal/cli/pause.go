package cli

import (
	"github.com/spf13/cobra"
)

// NewPauseCommand creates the pause command.
func NewPauseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause synchronization",
		Long: `Set the pause flag. Passes started while paused are skipped before
either store is read; the boundary is left untouched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPaused(rootOpts, cmd, true)
		},
	}
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "resume",
		Short:         "Resume synchronization",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPaused(rootOpts, cmd, false)
		},
	}
}

func setPaused(opts *RootOptions, cmd *cobra.Command, paused bool) error {
	a, err := loadApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.state.SetPaused(cmd.Context(), paused); err != nil {
		return WrapExitError(ExitCommandError, "failed to write pause flag", err)
	}
	a.logger.Info("pause flag set", "paused", paused)

	word := "resumed"
	if paused {
		word = "paused"
	}
	return opts.printer(cmd).printf(map[string]bool{"paused": paused}, "Sync %s.", word)
}
