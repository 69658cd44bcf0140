package strategy

import (
	"fmt"
	"slices"

	"github.com/soimon/notion-todoist/internal/diff"
	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/stamp"
)

// DiffTasks pairs tasks, comparing labels as a set in addition to the
// shallow fields.
func DiffTasks(source, target []model.Task) (*diff.Result[model.Task], error) {
	res, err := diff.Diff(source, target, diff.WithComparator(labelComparator))
	if err != nil {
		return nil, fmt.Errorf("diff tasks: %w", err)
	}
	return res, nil
}

func labelComparator(s, t model.Task) []string {
	if slices.Equal(s.SortedLabels(), t.SortedLabels()) {
		return nil
	}
	return []string{"labels"}
}

// NoOpTasks never plans anything.
func NoOpTasks(_, _ []model.Task, _ *Boundary) (TaskPlan, error) {
	return TaskPlan{}, nil
}

// FollowSourceTasks treats the Source as authoritative: Target copies are
// added, removed and overwritten until they match.
func FollowSourceTasks(source, target []model.Task, _ *Boundary) (TaskPlan, error) {
	res, err := DiffTasks(source, target)
	if err != nil {
		return TaskPlan{}, err
	}

	var plan TaskPlan
	plan.Target.Add = res.SourceLoners()
	plan.Target.Remove = res.TargetLoners()
	for _, p := range res.Changed() {
		plan.Target.Update = append(plan.Target.Update, sourceWins(p))
	}
	return plan, nil
}

// SnapshotTasks resolves conflicts with the Target's mutation log: whichever
// side touched a task after the boundary wins, and Source wins otherwise.
//
// Without a boundary it behaves like FollowSourceTasks.
func SnapshotTasks(source, target []model.Task, b *Boundary) (TaskPlan, error) {
	if b == nil {
		return FollowSourceTasks(source, target, nil)
	}
	res, err := DiffTasks(source, target)
	if err != nil {
		return TaskPlan{}, err
	}

	changes := b.Tasks
	var plan TaskPlan

	for _, t := range res.TargetLoners() {
		if changes.Added.Has(t.SyncID) {
			plan.Source.Add = append(plan.Source.Add, t)
		} else {
			plan.Target.Remove = append(plan.Target.Remove, t)
		}
	}

	for _, s := range res.SourceLoners() {
		switch {
		case changes.Deleted.Has(s.SyncID) || changes.Completed.Has(s.SyncID):
			plan.Source.Remove = append(plan.Source.Remove, s)
		case s.IsCompleted:
			// Finished on Source and never made it to Target.
		default:
			plan.Target.Add = append(plan.Target.Add, s)
		}
	}

	for _, p := range res.Changed() {
		if changes.ChangedSince(p.Target.SyncID) || stamp.Diverged(p.Target) {
			plan.Source.Update = append(plan.Source.Update, targetWins(p))
		} else {
			plan.Target.Update = append(plan.Target.Update, sourceWins(p))
		}
	}
	return plan, nil
}

// sourceWins returns the Source values addressed at the Target record. Both
// origin tags are kept so writers can reach either store.
func sourceWins(p diff.Pair[model.Task]) model.Task {
	out := p.Source
	out.Target = p.Target.Target
	return out
}

// targetWins returns the Target values addressed at the Source record.
func targetWins(p diff.Pair[model.Task]) model.Task {
	out := p.Target
	out.Source = p.Source.Source
	return out
}
