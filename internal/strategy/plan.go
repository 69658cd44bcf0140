// Package strategy turns diff results into per-store mutation plans.
//
// Every strategy is a pure function of the two entity collections and,
// optionally, the Target's changes since the last agreed boundary. The plans
// say what each store must add, remove and update; they never touch a store.
package strategy

import (
	"fmt"
	"time"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/snapshot"
)

// Plan lists the operations one store must apply for one entity class.
type Plan[T any] struct {
	Add    []T
	Remove []T
	Update []T
}

// Len is the number of operations in the plan.
func (p Plan[T]) Len() int { return len(p.Add) + len(p.Remove) + len(p.Update) }

// Empty reports whether the plan has no operations.
func (p Plan[T]) Empty() bool { return p.Len() == 0 }

// TaskPlan holds the task plans of both stores.
type TaskPlan struct {
	Source Plan[model.Task]
	Target Plan[model.Task]
}

// GoalPlan is the nested plan for the goals of one matched project.
type GoalPlan struct {
	Plan[model.Goal]
	// OnlySyncGoals is set when the project itself is unchanged and only its
	// goal operations must be applied.
	OnlySyncGoals bool
}

// ProjectUpdate is an updated project together with its goal plan.
type ProjectUpdate struct {
	Project model.Project
	Goals   GoalPlan
}

// ProjectSide is the project plan of one store.
type ProjectSide struct {
	Add    []model.Project
	Remove []model.Project
	Update []ProjectUpdate
}

// Len is the number of project and goal operations on this side.
func (s ProjectSide) Len() int {
	n := len(s.Add) + len(s.Remove)
	for _, u := range s.Update {
		if !u.Goals.OnlySyncGoals {
			n++
		}
		n += u.Goals.Len()
	}
	return n
}

// ProjectPlan holds the project plans of both stores.
type ProjectPlan struct {
	Source ProjectSide
	Target ProjectSide
}

// Boundary is the context a snapshot-aware strategy resolves against. A nil
// *Boundary means no pass has completed yet.
type Boundary struct {
	Date time.Time
	// Tasks classifies Target items changed since Date.
	Tasks snapshot.Changes
	// Sections classifies Target sections changed since Date.
	Sections snapshot.Changes
}

// NewBoundary classifies recent against the persisted boundary. It returns
// nil when b is zero.
func NewBoundary(b snapshot.Boundary, recent *snapshot.Snapshot) *Boundary {
	if b.IsZero() {
		return nil
	}
	return &Boundary{
		Date:     b.Date,
		Tasks:    recent.TaskChanges(b.Date),
		Sections: recent.SectionChanges(b.Date),
	}
}

// TaskStrategy resolves source and target tasks into a task plan.
type TaskStrategy func(source, target []model.Task, b *Boundary) (TaskPlan, error)

// ProjectStrategy resolves source and target projects into a project plan.
type ProjectStrategy func(source, target []model.Project, b *Boundary) (ProjectPlan, error)

// Strategy names accepted by the lookups.
const (
	NameNoOp         = "noop"
	NameFollowSource = "follow-source"
	NamePreferSource = "prefer-source"
	NameSnapshot     = "snapshot"
)

// TaskStrategyByName returns the task strategy registered under name.
func TaskStrategyByName(name string) (TaskStrategy, error) {
	switch name {
	case NameNoOp:
		return NoOpTasks, nil
	case NameFollowSource:
		return FollowSourceTasks, nil
	case NameSnapshot:
		return SnapshotTasks, nil
	default:
		return nil, fmt.Errorf("unknown task strategy %q", name)
	}
}

// ProjectStrategyByName returns the project strategy registered under name.
func ProjectStrategyByName(name string) (ProjectStrategy, error) {
	switch name {
	case NameNoOp:
		return NoOpProjects, nil
	case NameFollowSource:
		return FollowSourceProjects, nil
	case NamePreferSource:
		return PreferSourceProjects(nil), nil
	case NameSnapshot:
		return SnapshotProjects, nil
	default:
		return nil, fmt.Errorf("unknown project strategy %q", name)
	}
}
