package engine

import (
	"slices"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/strategy"
)

// syncProjects resolves the Source projects against the Target projects
// below the configured root. Without a root, project sync is off and the
// Source projects only serve task placement.
func (p *pass) syncProjects() error {
	if p.e.root == "" {
		return nil
	}
	target := p.relocate(targetProjects(p.snap, p.e.root))
	plan, err := p.e.projects(p.sourceProjects, target, p.boundary)
	if err != nil {
		return pairingError("projects", err)
	}
	p.applyProjects(plan)
	p.reorder(plan, target)
	return nil
}

// relocate moves linked Target projects that left the root back under it,
// and linked sections that sit in another project back into the project
// their Source goal belongs to. The returned list reflects the moves.
func (p *pass) relocate(target []model.Project) []model.Project {
	at := make(map[string]int, len(target))
	for i, proj := range target {
		at[proj.SyncID] = i
	}
	projects := make(map[string]snapshot.Project)
	for _, proj := range p.snap.ActiveProjects() {
		projects[proj.ID] = proj
	}
	sections := sectionsByProject(p.snap)

	for _, proj := range p.sourceProjects {
		if proj.SyncID == "" {
			continue
		}
		if _, ok := at[proj.SyncID]; ok {
			continue
		}
		stray, ok := projects[proj.SyncID]
		if !ok || stray.ID == p.e.root {
			continue
		}
		p.log.Info("moving project back under the root", "id", stray.ID, "parent_id", stray.ParentID)
		p.target.MoveProject(stray.ID, p.e.root)
		p.report.Target.Projects.Update++
		moved := targetProject(stray, sections[stray.ID])
		moved.Target.ParentID = p.e.root
		at[moved.SyncID] = len(target)
		target = append(target, moved)
	}

	home := make(map[string]string)
	for _, proj := range target {
		for _, g := range proj.Goals {
			home[g.SyncID] = proj.SyncID
		}
	}
	loose := make(map[string]snapshot.Section)
	for _, s := range p.snap.ActiveSections() {
		loose[s.ID] = s
	}
	for _, proj := range p.sourceProjects {
		i, ok := at[proj.SyncID]
		if proj.SyncID == "" || !ok {
			continue
		}
		for _, g := range proj.Goals {
			if g.SyncID == "" {
				continue
			}
			from, listed := home[g.SyncID]
			if listed && from == proj.SyncID {
				continue
			}
			sec, exists := loose[g.SyncID]
			if !exists {
				continue
			}
			p.log.Info("moving section to its project", "id", g.SyncID, "project_id", proj.SyncID)
			p.target.MoveSection(g.SyncID, proj.SyncID)
			p.report.Target.Goals.Update++
			if listed {
				j := at[from]
				target[j].Goals = slices.DeleteFunc(slices.Clone(target[j].Goals), func(x model.Goal) bool { return x.SyncID == g.SyncID })
			}
			sec.ProjectID = proj.SyncID
			target[i].Goals = append(slices.Clone(target[i].Goals), targetGoal(sec))
			home[g.SyncID] = proj.SyncID
		}
	}
	return target
}

// reorder puts the Target projects, and the sections of each project, in
// Source order. Entities created or removed by this pass are left out and
// settle on the next one.
func (p *pass) reorder(plan strategy.ProjectPlan, target []model.Project) {
	removed := make(map[string]bool)
	for _, proj := range plan.Target.Remove {
		removed[proj.SyncID] = true
	}
	for _, u := range plan.Target.Update {
		for _, g := range u.Goals.Remove {
			removed[g.SyncID] = true
		}
	}
	onTarget := make(map[string]model.Project, len(target))
	for _, proj := range target {
		if !removed[proj.SyncID] {
			onTarget[proj.SyncID] = proj
		}
	}

	var want []string
	for _, proj := range p.sourceProjects {
		if _, ok := onTarget[proj.SyncID]; ok && !slices.Contains(want, proj.SyncID) {
			want = append(want, proj.SyncID)
		}
	}
	if have := inOrder(target, want, func(proj model.Project) string { return proj.SyncID }); !slices.Equal(want, have) {
		p.log.Info("reordering projects", "projects", len(want))
		p.target.ReorderProjects(want)
	}

	for _, proj := range p.sourceProjects {
		tp, ok := onTarget[proj.SyncID]
		if !ok {
			continue
		}
		present := make(map[string]bool, len(tp.Goals))
		for _, g := range tp.Goals {
			present[g.SyncID] = !removed[g.SyncID]
		}
		var goals []string
		for _, g := range proj.Goals {
			if present[g.SyncID] && !slices.Contains(goals, g.SyncID) {
				goals = append(goals, g.SyncID)
			}
		}
		if have := inOrder(tp.Goals, goals, func(g model.Goal) string { return g.SyncID }); !slices.Equal(goals, have) {
			p.log.Info("reordering sections", "project_id", proj.SyncID, "sections", len(goals))
			p.target.ReorderSections(goals)
		}
	}
}

// inOrder lists the ids of items, in their order, that appear in ids.
func inOrder[T any](items []T, ids []string, id func(T) string) []string {
	var out []string
	for _, it := range items {
		if slices.Contains(ids, id(it)) {
			out = append(out, id(it))
		}
	}
	return out
}

func (p *pass) applyProjects(plan strategy.ProjectPlan) {
	for _, proj := range plan.Target.Add {
		temp := p.target.AddProject(map[string]any{
			"name":      model.ApplyBlockedPrefix(proj.Name, proj.BlockedState),
			"parent_id": p.e.root,
		})
		p.report.Target.Projects.Add++
		if id := proj.SourceID(); id != "" {
			p.links.LinkProject(id, temp)
		}
		for _, g := range proj.Goals {
			p.addSection(temp, g)
		}
	}

	for _, proj := range plan.Target.Remove {
		p.target.DeleteProject(proj.SyncID)
		p.report.Target.Projects.Remove++
		p.report.Target.Goals.Remove += len(proj.Goals)
	}

	for _, u := range plan.Target.Update {
		if !u.Goals.OnlySyncGoals {
			p.target.UpdateProject(u.Project.SyncID, map[string]any{
				"name": model.ApplyBlockedPrefix(u.Project.Name, u.Project.BlockedState),
			})
			p.report.Target.Projects.Update++
		}
		for _, g := range u.Goals.Add {
			p.addSection(u.Project.SyncID, g)
		}
		for _, g := range u.Goals.Remove {
			p.target.DeleteSection(g.SyncID)
			p.report.Target.Goals.Remove++
		}
		for _, g := range u.Goals.Update {
			p.target.UpdateSection(g.SyncID, map[string]any{
				"name": model.ApplyBlockedPrefix(g.Name, g.BlockedState),
			})
			p.report.Target.Goals.Update++
		}
	}

	// The Source side only ever receives goals created on Target.
	for _, u := range plan.Source.Update {
		projectID := u.Project.SourceID()
		for _, g := range u.Goals.Add {
			p.source.AddGoal(projectID, g)
			p.report.Source.Goals.Add++
		}
	}
}

func (p *pass) addSection(projectID string, g model.Goal) {
	temp := p.target.AddSection(map[string]any{
		"name":       model.ApplyBlockedPrefix(g.Name, g.BlockedState),
		"project_id": projectID,
	})
	p.report.Target.Goals.Add++
	if id := g.SourceID(); id != "" {
		p.links.LinkGoal(id, temp)
	}
}
