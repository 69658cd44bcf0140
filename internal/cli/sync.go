package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/soimon/notion-todoist/internal/engine"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	DryRun bool
}

// SyncSummary is the JSON payload of a sync run.
type SyncSummary struct {
	Skipped  bool          `json:"skipped"`
	DryRun   bool          `json:"dry_run"`
	Token    string        `json:"token,omitempty"`
	Failed   int           `json:"failed"`
	Deferred int           `json:"deferred"`
	Duration string        `json:"duration"`
	Report   engine.Report `json:"report"`
	Failures []string      `json:"failures,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Long: `Run one reconciliation pass between Notion and Todoist.

The pass is skipped when sync is paused. With --dry-run the plan is printed
and nothing is written, including the boundary.

Example:
  notion-todoist sync
  notion-todoist sync --dry-run --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan and print changes without writing")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
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

	var report io.Writer
	if opts.Format == "text" {
		report = cmd.OutOrStdout()
	}
	eng, err := a.newEngine(opts.RootOptions, report, opts.DryRun)
	if err != nil {
		return err
	}

	res, err := a.newRunner(eng).run(cmd.Context())
	if err != nil {
		return passExitError(err)
	}

	return opts.printer(cmd).sync(summarize(res))
}

func summarize(res *engine.Result) SyncSummary {
	s := SyncSummary{
		Skipped:  res.Skipped,
		DryRun:   res.DryRun,
		Token:    res.Boundary.Token,
		Failed:   res.Failed(),
		Deferred: res.Deferred,
		Duration: res.Duration.String(),
		Report:   res.Report,
	}
	for _, f := range res.TargetFailures {
		s.Failures = append(s.Failures, f.String())
	}
	for _, f := range res.SourceFailures {
		s.Failures = append(s.Failures, f.String())
	}
	return s
}

// Line renders the summary as one line of text.
func (s SyncSummary) Line() string {
	switch {
	case s.Skipped:
		return "Sync is paused; pass skipped."
	case s.DryRun:
		return fmt.Sprintf("Dry run: nothing written (deferred %d).", s.Deferred)
	}
	return fmt.Sprintf("Pass complete in %s: %d rejected, %d deferred.", s.Duration, s.Failed, s.Deferred)
}
