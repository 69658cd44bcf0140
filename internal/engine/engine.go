package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/queue"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/strategy"
)

// FullSync is the sync token that requests the complete Target state.
const FullSync = "*"

// SourceStore reads and writes the hierarchical Source store.
type SourceStore interface {
	// FetchProjects returns active projects with their open goals.
	FetchProjects(ctx context.Context) ([]model.Project, error)
	// FetchTasks returns the tasks to synchronize, including completed ones
	// that are still visible.
	FetchTasks(ctx context.Context) ([]model.Task, error)
	// FetchLabels returns the label options the Source offers for tasks.
	FetchLabels(ctx context.Context) ([]model.Label, error)

	queue.SourceWriter
}

// TargetStore reads and writes the flat Target store.
type TargetStore interface {
	// Fetch returns the records changed since token (everything for
	// FullSync) and the token for the next call.
	Fetch(ctx context.Context, token string) (*snapshot.Snapshot, string, error)

	queue.Transport
}

// StateStore persists the cross-pass boundary and the pause flag.
type StateStore interface {
	// LastSyncInfo returns the zero boundary when no pass has completed.
	LastSyncInfo(ctx context.Context) (snapshot.Boundary, error)
	SetLastSyncInfo(ctx context.Context, token string, at time.Time) error
	IsPaused(ctx context.Context) (bool, error)
}

// Engine runs reconciliation passes.
type Engine struct {
	source SourceStore
	target TargetStore
	state  StateStore

	tasks      strategy.TaskStrategy
	projects   strategy.ProjectStrategy
	clock      Clock
	ids        queue.IDGenerator
	batchSize  int
	logger     *slog.Logger
	report     io.Writer
	dryRun     bool
	root       string
	inbox      string
	symbols    model.Symbols
	labelColor string
	verbColor  string

	mu sync.Mutex
	// current is the Target state accumulated over passes; token is the
	// sync token it was fetched at.
	current *snapshot.Snapshot
	token   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTaskStrategy sets the task policy. Default: strategy.SnapshotTasks.
func WithTaskStrategy(s strategy.TaskStrategy) Option {
	return func(e *Engine) { e.tasks = s }
}

// WithProjectStrategy sets the project policy. Default:
// strategy.FollowSourceProjects.
func WithProjectStrategy(s strategy.ProjectStrategy) Option {
	return func(e *Engine) { e.projects = s }
}

// WithClock sets the clock used for boundary dates.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the generator for command uuids and temp ids.
func WithIDGenerator(g queue.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithBatchSize caps Target commands per request.
func WithBatchSize(n int) Option {
	return func(e *Engine) { e.batchSize = n }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithReport writes a plan summary to w before every commit.
func WithReport(w io.Writer) Option {
	return func(e *Engine) { e.report = w }
}

// WithDryRun plans and reports without committing or advancing the boundary.
func WithDryRun(dry bool) Option {
	return func(e *Engine) { e.dryRun = dry }
}

// WithTargetRoot sets the Target project whose direct children mirror the
// Source projects. Required for project sync.
func WithTargetRoot(projectID string) Option {
	return func(e *Engine) { e.root = projectID }
}

// WithInbox sets the Target project receiving tasks without a goal.
func WithInbox(projectID string) Option {
	return func(e *Engine) { e.inbox = projectID }
}

// WithSymbols sets the name prefixes for recurring and postponed tasks.
func WithSymbols(recurring, postponed string) Option {
	return func(e *Engine) {
		e.symbols = model.Symbols{Recurring: recurring, Postponed: postponed}
	}
}

// WithLabelColor sets the color of place labels and of labels only found
// on tasks.
func WithLabelColor(color string) Option {
	return func(e *Engine) { e.labelColor = color }
}

// WithVerbColor sets the color of verb labels. Default: the label color.
func WithVerbColor(color string) Option {
	return func(e *Engine) { e.verbColor = color }
}

// New creates an Engine over the three stores.
func New(source SourceStore, target TargetStore, state StateStore, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		target:    target,
		state:     state,
		tasks:     strategy.SnapshotTasks,
		projects:  strategy.FollowSourceProjects,
		clock:     SystemClock{},
		ids:       queue.UUIDGenerator{},
		batchSize: queue.MaxBatchSize,
		logger:    slog.Default(),
		symbols:   model.DefaultSymbols(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.verbColor == "" {
		e.verbColor = e.labelColor
	}
	return e
}

// Result summarizes one pass.
type Result struct {
	// Skipped is set when the pause flag was on; nothing else is filled.
	Skipped bool
	DryRun  bool

	StartedAt time.Time
	Duration  time.Duration

	// Boundary is the boundary persisted by the pass. Zero for dry runs.
	Boundary snapshot.Boundary

	Report Report

	// Deferred counts entities left for a later pass because their parent
	// has no real id yet.
	Deferred int

	TargetFailures []queue.Failure
	SourceFailures []queue.SourceFailure
}

// Failed is the number of mutations either store rejected.
func (r *Result) Failed() int { return len(r.TargetFailures) + len(r.SourceFailures) }
