package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/soimon/notion-todoist/internal/config"
	"github.com/soimon/notion-todoist/internal/engine"
	"github.com/soimon/notion-todoist/internal/notion"
	"github.com/soimon/notion-todoist/internal/store"
	"github.com/soimon/notion-todoist/internal/strategy"
	"github.com/soimon/notion-todoist/internal/todoist"
)

// StoresFactory builds the Source and Target stores for a configuration.
type StoresFactory func(cfg *config.Config, logger *slog.Logger) (engine.SourceStore, engine.TargetStore)

// defaultStores builds the Notion and Todoist API clients.
func defaultStores(cfg *config.Config, logger *slog.Logger) (engine.SourceStore, engine.TargetStore) {
	source := notion.New(cfg.Notion.Token, cfg.Notion.Schema,
		notion.WithVersion(cfg.Notion.Version),
		notion.WithLookback(cfg.Notion.Lookback),
		notion.WithLogger(logger.With("store", "notion")),
	)
	target := todoist.New(cfg.Todoist.Token,
		todoist.WithURL(cfg.Todoist.URL),
		todoist.WithLogger(logger.With("store", "todoist")),
	)
	return source, target
}

// stateStore is the boundary and pause flag persistence both backends
// implement.
type stateStore interface {
	engine.StateStore
	SetPaused(ctx context.Context, paused bool) error
	ResetLastSyncInfo(ctx context.Context) error
	Close() error
}

// passLog records pass outcomes. Only the SQLite backend keeps one.
type passLog interface {
	RecordPass(ctx context.Context, r store.PassRecord) (int64, error)
	RecentPasses(ctx context.Context, limit int) ([]store.PassRecord, error)
	PrunePasses(ctx context.Context, keep int) (int64, error)
}

// app is the wired runtime of one command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	state  stateStore
	passes passLog // nil for the file backend

	closers []io.Closer
}

// loadApp reads the configuration, sets up logging and opens the state
// store. Errors are ExitErrors.
func loadApp(opts *RootOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, logCloser := newLogger(opts, cfg.Log, stderr)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}

	switch cfg.State.Backend {
	case "file":
		fs, err := store.OpenFile(cfg.State.Path)
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open state file", err)
		}
		a.state = fs
	default:
		st, err := store.Open(cfg.State.Path)
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open state database", err)
		}
		a.state, a.passes = st, st
	}
	a.closers = append(a.closers, a.state)
	logger.Debug("state store ready", "backend", cfg.State.Backend, "path", cfg.State.Path)
	return a, nil
}

// Close releases the state store and log file, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error("error closing resource", "error", err)
		}
	}
	a.closers = nil
}

// lock takes the exclusive pass lock next to the state store.
func (a *app) lock() (*flock.Flock, error) {
	path := filepath.Clean(a.cfg.State.Path) + ".lock"
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to acquire pass lock", err)
	}
	if !locked {
		return nil, NewExitError(ExitLocked, "another pass is in progress")
	}
	return l, nil
}

// newEngine builds an engine over the configured stores.
func (a *app) newEngine(opts *RootOptions, report io.Writer, dryRun bool) (*engine.Engine, error) {
	tasks, err := strategy.TaskStrategyByName(a.cfg.Sync.TaskStrategy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid task strategy", err)
	}
	projects, err := strategy.ProjectStrategyByName(a.cfg.Sync.ProjectStrategy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid project strategy", err)
	}

	factory := opts.Stores
	if factory == nil {
		factory = defaultStores
	}
	source, target := factory(a.cfg, a.logger)

	engineOpts := []engine.Option{
		engine.WithTaskStrategy(tasks),
		engine.WithProjectStrategy(projects),
		engine.WithLogger(a.logger),
		engine.WithBatchSize(a.cfg.Todoist.BatchSize),
		engine.WithTargetRoot(a.cfg.Todoist.RootProject),
		engine.WithInbox(a.cfg.Todoist.Inbox),
		engine.WithSymbols(a.cfg.Sync.RecurringSymbol, a.cfg.Sync.PostponedSymbol),
		engine.WithLabelColor(a.cfg.Todoist.LabelColor),
		engine.WithVerbColor(a.cfg.Todoist.VerbColor),
		engine.WithDryRun(dryRun),
	}
	if report != nil {
		engineOpts = append(engineOpts, engine.WithReport(report))
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	return engine.New(source, target, a.state, engineOpts...), nil
}

// runner runs passes and appends them to the pass log.
type runner struct {
	engine *engine.Engine
	passes passLog
	keep   int
	logger *slog.Logger
	// dryRun forces a dry pass regardless of how the engine was built.
	dryRun bool
}

func (a *app) newRunner(e *engine.Engine) *runner {
	return &runner{engine: e, passes: a.passes, keep: a.cfg.State.KeepPasses, logger: a.logger}
}

// run runs one pass. The pass log is best effort: a failed write is logged
// and does not change the outcome.
func (r *runner) run(ctx context.Context) (*engine.Result, error) {
	pass := r.engine.RunPass
	if r.dryRun {
		pass = r.engine.DryRun
	}
	res, err := pass(ctx)
	if r.passes == nil {
		return res, err
	}

	rec := passRecord(res, err)
	if _, logErr := r.passes.RecordPass(ctx, rec); logErr != nil {
		r.logger.Warn("failed to record pass", "error", logErr)
		return res, err
	}
	if r.keep > 0 {
		if _, pruneErr := r.passes.PrunePasses(ctx, r.keep); pruneErr != nil {
			r.logger.Warn("failed to prune pass log", "error", pruneErr)
		}
	}
	return res, err
}

func passRecord(res *engine.Result, err error) store.PassRecord {
	rec := store.PassRecord{StartedAt: time.Now().UTC(), Outcome: store.OutcomeOK}
	if res != nil {
		rec.StartedAt = res.StartedAt
		rec.Duration = res.Duration
		rec.Failed = res.Failed()
		rec.Deferred = res.Deferred
		if report, mErr := marshalReport(res.Report); mErr == nil {
			rec.Report = report
		}
		switch {
		case res.Skipped:
			rec.Outcome = store.OutcomeSkipped
		case res.DryRun:
			rec.Outcome = store.OutcomeDryRun
		}
	}
	if err != nil {
		rec.Outcome = store.OutcomeFailed
		rec.Error = err.Error()
	}
	return rec
}

// passExitError maps a pass error to an ExitError.
func passExitError(err error) error {
	if err == nil {
		return nil
	}
	msg := "pass failed"
	switch {
	case engine.IsTransient(err):
		msg = "pass failed: store unavailable"
	case engine.IsMalformed(err):
		msg = "pass failed: malformed data"
	case engine.IsCommitFailure(err):
		msg = "pass failed during commit"
	}
	return WrapExitError(ExitFailure, msg, err)
}

func marshalReport(r engine.Report) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return string(data), nil
}
