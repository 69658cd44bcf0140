package strategy

import (
	"fmt"

	"github.com/soimon/notion-todoist/internal/diff"
	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/snapshot"
)

// ProjectPair is a matched project pair with its goals diffed.
type ProjectPair struct {
	diff.Pair[model.Project]
	Goals *diff.Result[model.Goal]
}

// ProjectDiff is the result of DiffProjects.
type ProjectDiff struct {
	Loners []model.Project
	Pairs  []ProjectPair
}

// DiffProjects pairs projects and, inside every pair, their goals.
func DiffProjects(source, target []model.Project) (*ProjectDiff, error) {
	res, err := diff.Diff(source, target)
	if err != nil {
		return nil, fmt.Errorf("diff projects: %w", err)
	}
	out := &ProjectDiff{Loners: res.Loners}
	for _, p := range res.Pairs {
		goals, err := diff.Diff(p.Source.Goals, p.Target.Goals)
		if err != nil {
			return nil, fmt.Errorf("diff goals of project %q: %w", p.Source.SyncID, err)
		}
		out.Pairs = append(out.Pairs, ProjectPair{Pair: p, Goals: goals})
	}
	return out, nil
}

func (d *ProjectDiff) byOrigin(o model.Origin) []model.Project {
	var out []model.Project
	for _, p := range d.Loners {
		if p.Origin() == o {
			out = append(out, p)
		}
	}
	return out
}

// GoalStrategy resolves the goal diff of one matched project into the goal
// operations for the Target store.
type GoalStrategy func(goals *diff.Result[model.Goal]) Plan[model.Goal]

// FollowSourceGoals mirrors Source goals onto the Target project.
func FollowSourceGoals(goals *diff.Result[model.Goal]) Plan[model.Goal] {
	var plan Plan[model.Goal]
	plan.Add = goals.SourceLoners()
	plan.Remove = goals.TargetLoners()
	for _, p := range goals.Changed() {
		g := p.Source
		g.Target = p.Target.Target
		plan.Update = append(plan.Update, g)
	}
	return plan
}

// NoOpGoals leaves goals alone.
func NoOpGoals(*diff.Result[model.Goal]) Plan[model.Goal] {
	return Plan[model.Goal]{}
}

// NoOpProjects never plans anything.
func NoOpProjects(_, _ []model.Project, _ *Boundary) (ProjectPlan, error) {
	return ProjectPlan{}, nil
}

// FollowSourceProjects mirrors Source projects and their goals onto Target.
// A pair whose project fields match but whose goals differ is emitted with
// OnlySyncGoals set.
func FollowSourceProjects(source, target []model.Project, _ *Boundary) (ProjectPlan, error) {
	d, err := DiffProjects(source, target)
	if err != nil {
		return ProjectPlan{}, err
	}
	var plan ProjectPlan
	plan.Target.Add = d.byOrigin(model.OriginSource)
	plan.Target.Remove = d.byOrigin(model.OriginTarget)
	plan.Target.Update = applyGoalStrategy(d.Pairs, FollowSourceGoals)
	return plan, nil
}

// PreferSourceProjects mirrors Source projects but only updates pairs whose
// project fields differ, resolving their goals with goals. A nil goals leaves
// goals untouched.
func PreferSourceProjects(goals GoalStrategy) ProjectStrategy {
	if goals == nil {
		goals = NoOpGoals
	}
	return func(source, target []model.Project, _ *Boundary) (ProjectPlan, error) {
		d, err := DiffProjects(source, target)
		if err != nil {
			return ProjectPlan{}, err
		}
		var plan ProjectPlan
		plan.Target.Add = d.byOrigin(model.OriginSource)
		plan.Target.Remove = d.byOrigin(model.OriginTarget)
		for _, p := range d.Pairs {
			if !p.Changed() {
				continue
			}
			plan.Target.Update = append(plan.Target.Update, ProjectUpdate{
				Project: projectSourceWins(p.Pair),
				Goals:   GoalPlan{Plan: goals(p.Goals)},
			})
		}
		return plan, nil
	}
}

// SnapshotProjects mirrors Source projects onto Target, except that goals
// created on Target after the boundary are pushed to the Source instead of
// being removed.
//
// Without a boundary it behaves like FollowSourceProjects.
func SnapshotProjects(source, target []model.Project, b *Boundary) (ProjectPlan, error) {
	if b == nil {
		return FollowSourceProjects(source, target, nil)
	}
	d, err := DiffProjects(source, target)
	if err != nil {
		return ProjectPlan{}, err
	}

	added := b.Sections.Added
	var plan ProjectPlan

	for _, p := range d.Pairs {
		var born []model.Goal
		for _, g := range p.Goals.TargetLoners() {
			if added.Has(g.SyncID) {
				born = append(born, g)
			}
		}
		if len(born) == 0 {
			continue
		}
		proj := p.Target
		proj.Source = p.Source.Source
		plan.Source.Update = append(plan.Source.Update, ProjectUpdate{
			Project: proj,
			Goals:   GoalPlan{Plan: Plan[model.Goal]{Add: born}, OnlySyncGoals: true},
		})
	}

	plan.Target.Add = d.byOrigin(model.OriginSource)
	plan.Target.Remove = d.byOrigin(model.OriginTarget)
	plan.Target.Update = applyGoalStrategy(d.Pairs, snapshotGoals(added))
	return plan, nil
}

func snapshotGoals(addedOnTarget snapshot.IDSet) GoalStrategy {
	return func(goals *diff.Result[model.Goal]) Plan[model.Goal] {
		plan := FollowSourceGoals(goals)
		var keep []model.Goal
		for _, g := range plan.Remove {
			if !addedOnTarget.Has(g.SyncID) {
				keep = append(keep, g)
			}
		}
		plan.Remove = keep
		return plan
	}
}

// applyGoalStrategy resolves goals for every pair and keeps the pairs that
// need at least one project or goal operation.
func applyGoalStrategy(pairs []ProjectPair, goals GoalStrategy) []ProjectUpdate {
	var out []ProjectUpdate
	for _, p := range pairs {
		gp := goals(p.Goals)
		if len(p.Differences)+gp.Len() == 0 {
			continue
		}
		out = append(out, ProjectUpdate{
			Project: projectSourceWins(p.Pair),
			Goals:   GoalPlan{Plan: gp, OnlySyncGoals: len(p.Differences) == 0},
		})
	}
	return out
}

func projectSourceWins(p diff.Pair[model.Project]) model.Project {
	out := p.Source
	out.Target = p.Target.Target
	return out
}
