package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/soimon/notion-todoist/internal/model"
)

// SourceWriter applies single mutations to the Source store.
//
// Implementations wrap ErrRejected for mutations the Source refused on their
// merits (validation, missing page); any other error aborts the commit.
type SourceWriter interface {
	CreateTask(ctx context.Context, t model.Task) (id string, err error)
	UpdateTask(ctx context.Context, t model.Task) error
	CompleteTask(ctx context.Context, sourceID string) error
	CreateGoal(ctx context.Context, projectSourceID string, g model.Goal) (id string, err error)
	SetTaskSyncID(ctx context.Context, sourceID, syncID string) error
	SetProjectSyncID(ctx context.Context, sourceID, syncID string) error
	SetGoalSyncID(ctx context.Context, sourceID, syncID string) error
}

// SourceOpKind names a queued Source operation.
type SourceOpKind string

const (
	SourceAddTask     SourceOpKind = "add_task"
	SourceUpdateTask  SourceOpKind = "update_task"
	SourceRemoveTask  SourceOpKind = "remove_task"
	SourceAddGoal     SourceOpKind = "add_goal"
	SourceLinkTask    SourceOpKind = "link_task"
	SourceLinkProject SourceOpKind = "link_project"
	SourceLinkGoal    SourceOpKind = "link_goal"
)

// SourceOp is one queued Source operation.
type SourceOp struct {
	Kind SourceOpKind
	// TempID is set for creations.
	TempID string
	// SourceID addresses the record for updates, removals and links. For
	// goal creation it is the owning project's Source id.
	SourceID string
	// SyncID is the Target id written by links. It may be a Target
	// temporary id, resolved at commit time.
	SyncID string
	Task   model.Task
	Goal   model.Goal
}

// SourceFailure is a Source operation that was rejected.
type SourceFailure struct {
	Op  SourceOp
	Err error
}

func (f SourceFailure) String() string {
	target := f.Op.SourceID
	if target == "" {
		target = f.Op.Task.Content
	}
	return fmt.Sprintf("%s %s: %v", f.Op.Kind, target, f.Err)
}

// SourceQueue accumulates Source operations for one pass.
type SourceQueue struct {
	writer   SourceWriter
	ids      IDGenerator
	logger   *slog.Logger
	resolve  func(string) string
	pending  []SourceOp
	counts   map[SourceOpKind]int
	mapping  map[string]string
	failures []SourceFailure
}

// SourceOption configures a SourceQueue.
type SourceOption func(*SourceQueue)

// WithSourceIDGenerator sets the temp id generator.
func WithSourceIDGenerator(g IDGenerator) SourceOption {
	return func(q *SourceQueue) { q.ids = g }
}

// WithSourceLogger sets the logger used for rejected operations.
func WithSourceLogger(l *slog.Logger) SourceOption {
	return func(q *SourceQueue) { q.logger = l }
}

// WithResolver translates Target temporary ids in link operations at commit
// time, typically Queue.Resolve of the pass's Target queue.
func WithResolver(resolve func(string) string) SourceOption {
	return func(q *SourceQueue) { q.resolve = resolve }
}

// NewSourceQueue creates an empty Source queue committing through w.
func NewSourceQueue(w SourceWriter, opts ...SourceOption) *SourceQueue {
	q := &SourceQueue{
		writer:  w,
		ids:     UUIDGenerator{},
		logger:  slog.Default(),
		resolve: func(id string) string { return id },
		counts:  make(map[SourceOpKind]int),
		mapping: make(map[string]string),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *SourceQueue) enqueue(op SourceOp) {
	q.pending = append(q.pending, op)
	q.counts[op.Kind]++
}

// AddTask queues creation of t and returns its temporary id.
func (q *SourceQueue) AddTask(t model.Task) string {
	temp := q.ids.Generate()
	q.enqueue(SourceOp{Kind: SourceAddTask, TempID: temp, Task: t})
	return temp
}

// UpdateTask queues an overwrite of the Source task addressed by t.Source.
func (q *SourceQueue) UpdateTask(t model.Task) {
	q.enqueue(SourceOp{Kind: SourceUpdateTask, SourceID: t.SourceID(), Task: t})
}

// RemoveTask queues marking the Source task done.
func (q *SourceQueue) RemoveTask(sourceID string) {
	q.enqueue(SourceOp{Kind: SourceRemoveTask, SourceID: sourceID})
}

// AddGoal queues creation of g under the Source project projectSourceID.
func (q *SourceQueue) AddGoal(projectSourceID string, g model.Goal) string {
	temp := q.ids.Generate()
	q.enqueue(SourceOp{Kind: SourceAddGoal, TempID: temp, SourceID: projectSourceID, Goal: g})
	return temp
}

// LinkTask queues writing syncID onto the Source task.
func (q *SourceQueue) LinkTask(sourceID, syncID string) {
	q.enqueue(SourceOp{Kind: SourceLinkTask, SourceID: sourceID, SyncID: syncID})
}

// LinkProject queues writing syncID onto the Source project.
func (q *SourceQueue) LinkProject(sourceID, syncID string) {
	q.enqueue(SourceOp{Kind: SourceLinkProject, SourceID: sourceID, SyncID: syncID})
}

// LinkGoal queues writing syncID onto the Source goal.
func (q *SourceQueue) LinkGoal(sourceID, syncID string) {
	q.enqueue(SourceOp{Kind: SourceLinkGoal, SourceID: sourceID, SyncID: syncID})
}

// Len is the number of operations not yet committed.
func (q *SourceQueue) Len() int { return len(q.pending) }

// Pending returns a copy of the uncommitted operations.
func (q *SourceQueue) Pending() []SourceOp { return append([]SourceOp(nil), q.pending...) }

// Counts returns how many operations of each kind were queued.
func (q *SourceQueue) Counts() map[SourceOpKind]int { return maps.Clone(q.counts) }

// Failures returns the operations the Source rejected.
func (q *SourceQueue) Failures() []SourceFailure { return q.failures }

// Commit applies pending operations in order and returns the temp id to
// Source id mapping of the creations.
//
// Rejected operations are logged and recorded; any other error stops the
// commit and is returned.
func (q *SourceQueue) Commit(ctx context.Context) (map[string]string, error) {
	pending := q.pending
	q.pending = nil

	for i, op := range pending {
		if err := ctx.Err(); err != nil {
			return q.Mapping(), err
		}
		err := q.apply(ctx, op)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrRejected) {
			q.failures = append(q.failures, SourceFailure{Op: op, Err: err})
			q.logger.Warn("source rejected operation",
				"kind", op.Kind,
				"source_id", op.SourceID,
				"error", err,
			)
			continue
		}
		return q.Mapping(), fmt.Errorf("source op %d (%s): %w", i+1, op.Kind, err)
	}
	return q.Mapping(), nil
}

// Mapping returns a copy of the temp id resolutions seen so far.
func (q *SourceQueue) Mapping() map[string]string { return maps.Clone(q.mapping) }

func (q *SourceQueue) apply(ctx context.Context, op SourceOp) error {
	switch op.Kind {
	case SourceAddTask:
		id, err := q.writer.CreateTask(ctx, q.localParents(op.Task))
		if err != nil {
			return err
		}
		q.mapping[op.TempID] = id
		return nil
	case SourceUpdateTask:
		return q.writer.UpdateTask(ctx, q.localParents(op.Task))
	case SourceRemoveTask:
		return q.writer.CompleteTask(ctx, op.SourceID)
	case SourceAddGoal:
		id, err := q.writer.CreateGoal(ctx, op.SourceID, op.Goal)
		if err != nil {
			return err
		}
		q.mapping[op.TempID] = id
		return nil
	case SourceLinkTask:
		return q.writer.SetTaskSyncID(ctx, q.local(op.SourceID), q.resolve(op.SyncID))
	case SourceLinkProject:
		return q.writer.SetProjectSyncID(ctx, q.local(op.SourceID), q.resolve(op.SyncID))
	case SourceLinkGoal:
		return q.writer.SetGoalSyncID(ctx, q.local(op.SourceID), q.resolve(op.SyncID))
	default:
		return fmt.Errorf("unknown source operation %q", op.Kind)
	}
}

// localParents returns t with parent temp ids created earlier in this
// commit replaced by their Source ids.
func (q *SourceQueue) localParents(t model.Task) model.Task {
	if t.Source == nil || len(t.Source.ParentIDs) == 0 {
		return t
	}
	src := *t.Source
	src.ParentIDs = make([]string, len(t.Source.ParentIDs))
	for i, id := range t.Source.ParentIDs {
		src.ParentIDs[i] = q.local(id)
	}
	t.Source = &src
	return t
}

// local resolves a Source temp id created earlier in this commit.
func (q *SourceQueue) local(id string) string {
	if real, ok := q.mapping[id]; ok {
		return real
	}
	return id
}
