package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/queue"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/stamp"
	"github.com/soimon/notion-todoist/internal/strategy"
)

// pass holds the state of one RunPass call. Nothing in it outlives the call.
type pass struct {
	e   *Engine
	log *slog.Logger

	boundary       *strategy.Boundary
	snap           *snapshot.Snapshot
	sourceProjects []model.Project
	sourceTasks    []model.Task
	sourceLabels   []model.Label

	// target collects Target commands; source collects Source creations,
	// updates and removals; links collects sync id back-fills that may
	// reference Target temp ids and are committed last.
	target *queue.Queue
	source *queue.SourceQueue
	links  *queue.SourceQueue

	// born are Target tasks being created on Source; their stamps need the
	// Source id, which exists only after the Source commit.
	born []bornTask

	report   Report
	deferred int
}

type bornTask struct {
	temp   string
	itemID string
	noteID string
	hash   string
}

// fetched is everything a pass reads before planning.
type fetched struct {
	projects []model.Project
	tasks    []model.Task
	labels   []model.Label
	recent   *snapshot.Snapshot
}

// RunPass runs one reconciliation pass.
//
// A paused engine returns a skipped result without touching any store.
// Errors are *SyncError values. When a commit fails, the returned Result
// still lists the failures recorded so far.
func (e *Engine) RunPass(ctx context.Context) (*Result, error) {
	return e.run(ctx, e.dryRun)
}

// DryRun runs one pass that plans and reports without committing, whatever
// WithDryRun was set to. The Target state it fetched is kept for later
// incremental passes.
func (e *Engine) DryRun(ctx context.Context) (*Result, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, dryRun bool) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock.Now()
	log := e.logger.With("started_at", start.Format(time.RFC3339))

	paused, err := e.state.IsPaused(ctx)
	if err != nil {
		return nil, stateError("read pause flag", err)
	}
	if paused {
		log.Info("sync is paused, skipping pass")
		return &Result{Skipped: true, StartedAt: start}, nil
	}

	last, err := e.state.LastSyncInfo(ctx)
	if err != nil {
		return nil, stateError("read last sync info", err)
	}
	if last.IsZero() {
		log.Info("no previous sync, resolving without a boundary")
	}

	in, err := e.fetch(ctx, last)
	if err != nil {
		return nil, err
	}
	log.Debug("fetched stores",
		"source_projects", len(in.projects),
		"source_tasks", len(in.tasks),
		"source_labels", len(in.labels),
	)

	p := e.newPass(in, last, log)
	p.syncLabels()
	if err := p.syncProjects(); err != nil {
		return nil, err
	}
	if err := p.syncTasks(); err != nil {
		return nil, err
	}

	res := &Result{
		DryRun:    dryRun,
		StartedAt: start,
		Report:    p.report,
		Deferred:  p.deferred,
	}
	if e.report != nil {
		if _, err := p.report.WriteTo(e.report); err != nil {
			log.Warn("failed to write plan report", "error", err)
		}
	}
	if dryRun {
		res.Duration = e.clock.Now().Sub(start)
		log.Info("dry run complete", "deferred", p.deferred)
		return res, nil
	}

	boundary, err := p.commit(ctx, start)
	res.TargetFailures = p.target.Failures()
	res.SourceFailures = append(p.source.Failures(), p.links.Failures()...)
	res.Duration = e.clock.Now().Sub(start)
	if err != nil {
		return res, err
	}
	res.Boundary = boundary

	log.Info("pass complete",
		"failed", res.Failed(),
		"deferred", res.Deferred,
		"duration", res.Duration,
	)
	return res, nil
}

// fetch reads both stores concurrently.
//
// The first pass of a process fetches the full Target state; later passes
// merge an incremental fetch into it. The recent log is fetched since the
// persisted boundary token, reusing the incremental fetch when both tokens
// agree.
func (e *Engine) fetch(ctx context.Context, last snapshot.Boundary) (*fetched, error) {
	var (
		in      fetched
		current *snapshot.Snapshot
		token   string
	)
	incremental := e.current != nil
	reuse := incremental && !last.IsZero() && last.Token == e.token

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		projects, err := e.source.FetchProjects(gctx)
		if err != nil {
			return fetchError("source", err)
		}
		in.projects = normalizeSourceProjects(projects)
		return nil
	})
	g.Go(func() error {
		tasks, err := e.source.FetchTasks(gctx)
		if err != nil {
			return fetchError("source", err)
		}
		in.tasks = tasks
		return nil
	})
	g.Go(func() error {
		labels, err := e.source.FetchLabels(gctx)
		if err != nil {
			return fetchError("source", err)
		}
		in.labels = labels
		return nil
	})
	g.Go(func() error {
		since := FullSync
		if incremental {
			since = e.token
		}
		snap, next, err := e.target.Fetch(gctx, since)
		if err != nil {
			return fetchError("target", err)
		}
		if incremental {
			current = snapshot.Merge(e.current, snap)
		} else {
			current = snap
		}
		token = next
		if reuse {
			in.recent = snap
		}
		return nil
	})
	if !last.IsZero() && !reuse {
		g.Go(func() error {
			since := last.Token
			if since == "" {
				since = FullSync
			}
			snap, _, err := e.target.Fetch(gctx, since)
			if err != nil {
				return fetchError("target", err)
			}
			in.recent = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if current == nil {
		current = &snapshot.Snapshot{}
	}
	e.current, e.token = current, token
	return &in, nil
}

func normalizeSourceProjects(projects []model.Project) []model.Project {
	out := make([]model.Project, len(projects))
	for i, p := range projects {
		if p.BlockedState == "" {
			p.BlockedState = model.BlockedFree
		}
		goals := make([]model.Goal, len(p.Goals))
		for j, g := range p.Goals {
			if g.BlockedState == "" {
				g.BlockedState = model.BlockedFree
			}
			goals[j] = g
		}
		p.Goals = goals
		out[i] = p
	}
	return out
}

func (e *Engine) newPass(in *fetched, last snapshot.Boundary, log *slog.Logger) *pass {
	target := queue.New(e.target,
		queue.WithIDGenerator(e.ids),
		queue.WithBatchSize(e.batchSize),
		queue.WithLogger(log),
	)
	return &pass{
		e:              e,
		log:            log,
		boundary:       strategy.NewBoundary(last, in.recent),
		snap:           e.current,
		sourceProjects: in.projects,
		sourceTasks:    in.tasks,
		sourceLabels:   in.labels,
		target:         target,
		source: queue.NewSourceQueue(e.source,
			queue.WithSourceIDGenerator(e.ids),
			queue.WithSourceLogger(log),
		),
		links: queue.NewSourceQueue(e.source,
			queue.WithSourceIDGenerator(e.ids),
			queue.WithSourceLogger(log),
			queue.WithResolver(target.Resolve),
		),
	}
}

// commit applies the queued mutations in dependency order and persists the
// new boundary.
func (p *pass) commit(ctx context.Context, start time.Time) (snapshot.Boundary, error) {
	created, err := p.source.Commit(ctx)
	if err != nil {
		return snapshot.Boundary{}, commitError("source", err)
	}

	for _, b := range p.born {
		id, ok := created[b.temp]
		if !ok {
			continue
		}
		note := stamp.Stamp{SourceID: id, ContentHash: b.hash}.String()
		if b.noteID != "" {
			p.target.UpdateNote(b.noteID, note)
		} else {
			p.target.AddNote(b.itemID, note)
		}
	}

	if err := p.target.Commit(ctx); err != nil {
		return snapshot.Boundary{}, commitError("target", err)
	}
	if _, err := p.links.Commit(ctx); err != nil {
		return snapshot.Boundary{}, commitError("source", err)
	}

	token := p.target.SyncToken()
	if token == "" {
		token = p.e.token
	}
	if err := p.e.state.SetLastSyncInfo(ctx, token, start); err != nil {
		return snapshot.Boundary{}, stateError("write last sync info", err)
	}
	return snapshot.Boundary{Token: token, Date: start}, nil
}
