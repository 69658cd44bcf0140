package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soimon/notion-todoist/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Limit int
}

// Status is the JSON payload of the status command.
type Status struct {
	Paused   bool          `json:"paused"`
	Token    string        `json:"token,omitempty"`
	SyncedAt *time.Time    `json:"synced_at,omitempty"`
	Passes   []PassSummary `json:"passes,omitempty"`
}

// PassSummary is one entry of the pass log.
type PassSummary struct {
	Seq       int64     `json:"seq"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Outcome   string    `json:"outcome"`
	Failed    int       `json:"failed"`
	Deferred  int       `json:"deferred"`
	Error     string    `json:"error,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the boundary, pause flag and recent passes",
		Long: `Show the persisted boundary of the last completed pass, whether sync
is paused, and the most recent entries of the pass log (SQLite state only).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of recent passes to show")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	a, err := loadApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.status(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read state", err)
	}

	return opts.printer(cmd).status(st)
}

func (a *app) status(ctx context.Context, limit int) (*Status, error) {
	paused, err := a.state.IsPaused(ctx)
	if err != nil {
		return nil, err
	}
	b, err := a.state.LastSyncInfo(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{Paused: paused, Token: b.Token}
	if !b.Date.IsZero() {
		at := b.Date
		st.SyncedAt = &at
	}
	if a.passes == nil || limit <= 0 {
		return st, nil
	}
	recs, err := a.passes.RecentPasses(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		st.Passes = append(st.Passes, summarizePass(r))
	}
	return st, nil
}

func summarizePass(r store.PassRecord) PassSummary {
	return PassSummary{
		Seq:       r.Seq,
		StartedAt: r.StartedAt,
		Duration:  r.Duration.String(),
		Outcome:   r.Outcome,
		Failed:    r.Failed,
		Deferred:  r.Deferred,
		Error:     r.Error,
	}
}

func writeStatus(w io.Writer, st *Status) {
	state := "active"
	if st.Paused {
		state = "paused"
	}
	fmt.Fprintf(w, "Sync:      %s\n", state)
	if st.SyncedAt == nil {
		fmt.Fprintln(w, "Last sync: never")
	} else {
		fmt.Fprintf(w, "Last sync: %s (token %s)\n", st.SyncedAt.Format(time.RFC3339), st.Token)
	}
	if len(st.Passes) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSTARTED\tOUTCOME\tFAILED\tDEFERRED\tDURATION")
	for _, p := range st.Passes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n",
			p.Seq, p.StartedAt.Format(time.RFC3339), p.Outcome, p.Failed, p.Deferred, p.Duration)
	}
	_ = tw.Flush()
}
