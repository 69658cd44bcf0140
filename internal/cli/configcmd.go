package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/soimon/notion-todoist/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, inspect and check the configuration file",
	}

	cmd.AddCommand(newConfigInitCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	cmd.AddCommand(newConfigValidateCommand(rootOpts))

	return cmd
}

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write the default configuration to the --config path.

Example:
  notion-todoist config init
  notion-todoist --config ~/.config/notion-todoist.yaml config init --force`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(rootOpts.ConfigPath, force); err != nil {
				return WrapExitError(ExitCommandError, "failed to write config", err)
			}
			return rootOpts.printer(cmd).printf(map[string]string{"path": rootOpts.ConfigPath}, "Wrote %s", rootOpts.ConfigPath)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration with tokens masked",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			redacted := cfg.Redacted()
			return rootOpts.printer(cmd).print(redacted, func(w io.Writer) error {
				data, err := config.Encode(&redacted)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to encode config", err)
				}
				_, err = w.Write(data)
				return err
			})
		},
	}
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate",
		Short:         "Check the configuration against the schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(rootOpts.ConfigPath)
			var verr *config.ValidationError
			switch {
			case errors.As(err, &verr):
				if rootOpts.Format != "json" {
					for _, p := range verr.Problems {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
					}
				}
				exitErr := NewExitError(ExitCommandError, fmt.Sprintf("%d configuration problem(s)", len(verr.Problems)))
				exitErr.Details = verr.Problems
				return exitErr
			case err != nil:
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			return rootOpts.printer(cmd).printf(map[string]bool{"valid": true}, "%s is valid.", rootOpts.ConfigPath)
		},
	}
}
