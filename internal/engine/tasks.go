package engine

import (
	"slices"

	"github.com/soimon/notion-todoist/internal/diff"
	"github.com/soimon/notion-todoist/internal/hierarchy"
	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/stamp"
	"github.com/soimon/notion-todoist/internal/strategy"
)

// placement is where a task lives, in SyncID space.
type placement struct {
	project string
	goal    string
	// pending is set when the goal or project is not on Target yet.
	pending bool
}

// taskContext holds the lookups built for one task sync.
type taskContext struct {
	idx *targetIndex

	// tasks are the prepared Source tasks.
	tasks []model.Task
	// sourceBySync maps a task SyncID to its Source id.
	sourceBySync map[string]string
	// goalBySync maps a goal SyncID to its Source id.
	goalBySync map[string]string
	// projectBySync maps a project SyncID to its Source id.
	projectBySync map[string]string
	// pending holds Source ids whose placement is not on Target yet.
	pending map[string]bool
	// parent is the first parent of each Source task present in the pass.
	parent map[string]string
}

// managedProjects are the Target projects whose tasks the engine owns.
func (p *pass) managedProjects() map[string]bool {
	managed := make(map[string]bool)
	if p.e.inbox != "" {
		managed[p.e.inbox] = true
	}
	if p.e.root != "" {
		for _, proj := range p.snap.ActiveProjects() {
			if proj.ParentID == p.e.root {
				managed[proj.ID] = true
			}
		}
	}
	return managed
}

func (p *pass) syncTasks() error {
	idx := indexTargetTasks(p.snap, p.managedProjects(), p.e.symbols)
	for _, d := range idx.duplicates {
		p.log.Info("deleting duplicate target task",
			"id", d.SyncID,
			"source_id", d.Target.StampSourceID,
		)
		p.target.DeleteItem(d.SyncID)
		p.report.Target.Tasks.Remove++
	}
	for _, id := range idx.extraStamps {
		p.log.Info("deleting extra stamp note", "note_id", id)
		p.target.DeleteNote(id)
	}

	tc := p.prepareTasks(idx)
	plan, err := p.e.tasks(tc.candidates(), idx.tasks, p.boundary)
	if err != nil {
		return pairingError("tasks", err)
	}
	p.applyTasks(plan, tc)
	return nil
}

// prepareTasks normalizes the Source tasks for diffing: symbols are stripped
// from names, web links to Source records become app links, sync ids lost before a back-link landed are recovered from
// Target stamps, and placement fields are projected into SyncID space.
func (p *pass) prepareTasks(idx *targetIndex) *taskContext {
	tc := &taskContext{
		idx:           idx,
		tasks:         make([]model.Task, len(p.sourceTasks)),
		sourceBySync:  make(map[string]string),
		goalBySync:    make(map[string]string),
		projectBySync: make(map[string]string),
		pending:       make(map[string]bool),
		parent:        make(map[string]string),
	}

	used := make(map[string]bool)
	for i, t := range p.sourceTasks {
		t.Content = stamp.AppifyLinks(p.e.symbols.Strip(t.Content))
		t.Labels = slices.Clone(t.Labels)
		tc.tasks[i] = t
		if t.SyncID != "" {
			used[t.SyncID] = true
		}
	}

	for i := range tc.tasks {
		t := &tc.tasks[i]
		if t.SyncID != "" || t.Source == nil {
			continue
		}
		linked, ok := idx.bySource[stamp.NormalizeID(t.SourceID())]
		if !ok || used[linked.SyncID] {
			continue
		}
		p.log.Info("recovered sync id from stamp", "source_id", t.SourceID(), "sync_id", linked.SyncID)
		t.SyncID = linked.SyncID
		used[linked.SyncID] = true
		p.links.LinkTask(t.SourceID(), linked.SyncID)
	}

	goals := make(map[string]placement)
	projects := make(map[string]placement)
	for _, proj := range p.sourceProjects {
		if proj.SyncID != "" {
			tc.projectBySync[proj.SyncID] = proj.SourceID()
		}
		projects[proj.SourceID()] = placement{project: proj.SyncID, pending: proj.SyncID == ""}
		for _, g := range proj.Goals {
			if g.SyncID != "" {
				tc.goalBySync[g.SyncID] = g.SourceID()
			}
			goals[g.SourceID()] = placement{
				project: proj.SyncID,
				goal:    g.SyncID,
				pending: proj.SyncID == "" || g.SyncID == "",
			}
		}
	}

	bySource := make(map[string]*model.Task, len(tc.tasks))
	for i := range tc.tasks {
		t := &tc.tasks[i]
		bySource[t.SourceID()] = t
		if t.SyncID != "" {
			tc.sourceBySync[t.SyncID] = t.SourceID()
		}
	}
	for _, t := range tc.tasks {
		if t.Source == nil {
			continue
		}
		for _, pid := range t.Source.ParentIDs {
			if _, ok := bySource[pid]; ok && pid != t.SourceID() {
				tc.parent[t.SourceID()] = pid
				break
			}
		}
	}

	// Subtasks share their root ancestor's project and goal on Target.
	memo := make(map[string]placement)
	var place func(id string, depth int) placement
	place = func(id string, depth int) placement {
		if pl, ok := memo[id]; ok {
			return pl
		}
		t := bySource[id]
		var pl placement
		switch parent, ok := tc.parent[id]; {
		case ok && depth < len(tc.tasks):
			pl = place(parent, depth+1)
		case t.Source.GoalID != "":
			if g, ok := goals[t.Source.GoalID]; ok {
				pl = g
			} else {
				pl = placement{project: p.e.inbox}
			}
		case t.Source.ProjectID != "":
			if pr, ok := projects[t.Source.ProjectID]; ok {
				pl = pr
			} else {
				pl = placement{project: p.e.inbox}
			}
		default:
			pl = placement{project: p.e.inbox}
		}
		memo[id] = pl
		return pl
	}

	for i := range tc.tasks {
		t := &tc.tasks[i]
		if t.Source == nil {
			continue
		}
		pl := place(t.SourceID(), 0)
		t.ProjectSyncID, t.GoalSyncID = pl.project, pl.goal
		t.ParentSyncID = ""
		if parent, ok := tc.parent[t.SourceID()]; ok {
			t.ParentSyncID = bySource[parent].SyncID
			if t.ParentSyncID == "" {
				pl.pending = true
			}
		}
		if !pl.pending {
			continue
		}
		tc.pending[t.SourceID()] = true
		// Leave a linked task where it is until its new home exists.
		if cur, ok := idx.byID[t.SyncID]; ok {
			t.ProjectSyncID, t.GoalSyncID, t.ParentSyncID = cur.ProjectSyncID, cur.GoalSyncID, cur.ParentSyncID
		}
	}
	return tc
}

// candidates are the Source tasks handed to the task strategy. A completed
// task with no open Target copy is settled: the Target view only holds open
// items, so it would otherwise read as a loner on every pass.
func (tc *taskContext) candidates() []model.Task {
	out := make([]model.Task, 0, len(tc.tasks))
	for _, t := range tc.tasks {
		if t.IsCompleted {
			if _, open := tc.idx.byID[t.SyncID]; !open {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func (p *pass) applyTasks(plan strategy.TaskPlan, tc *taskContext) {
	p.addTargetTasks(plan.Target.Add, tc)

	for _, t := range plan.Target.Remove {
		p.target.DeleteItem(t.SyncID)
		p.report.Target.Tasks.Remove++
	}
	for _, t := range plan.Target.Update {
		p.updateTargetTask(t, tc.idx.byID[t.SyncID])
	}

	p.addSourceTasks(plan.Source.Add, tc)
	for _, t := range plan.Source.Remove {
		p.source.RemoveTask(t.SourceID())
		p.report.Source.Tasks.Remove++
	}
	for _, t := range plan.Source.Update {
		p.updateSourceTask(t, tc)
	}
}

// addTargetTasks creates Source loners on Target parent-first. A task whose
// parent has no real Target id yet waits for a later pass.
func (p *pass) addTargetTasks(adds []model.Task, tc *taskContext) {
	if len(adds) == 0 {
		return
	}
	planned := make(map[string]model.Task, len(adds))
	for _, t := range adds {
		planned[t.SourceID()] = t
	}

	tree := hierarchy.Build(tc.tasks, func(t model.Task) hierarchy.Key {
		k := hierarchy.Key{ID: t.SourceID()}
		if t.Source != nil {
			k.Areas = t.Source.AreaIDs
		}
		if parent, ok := tc.parent[t.SourceID()]; ok {
			k.Parents = []string{parent}
		}
		return k
	})

	hierarchy.Walk(tree, func(parent hierarchy.Ref, t model.Task) hierarchy.Ref {
		add, ok := planned[t.SourceID()]
		if !ok {
			return hierarchy.Ref{ID: t.SyncID}
		}
		if parent.Deferred() || tc.pending[t.SourceID()] {
			p.deferred++
			p.log.Debug("deferring task until its parent exists on target", "source_id", t.SourceID())
			return hierarchy.Ref{}
		}
		return hierarchy.Ref{ID: p.addTargetTask(add, parent), Temporary: true}
	})
}

func (p *pass) addTargetTask(t model.Task, parent hierarchy.Ref) string {
	args := map[string]any{
		"content": p.e.symbols.WithPostponed(t.Content, postponed(t)),
		"labels":  labelsArg(t.Labels),
	}
	if parent.Root {
		args["project_id"] = t.ProjectSyncID
		if t.GoalSyncID != "" {
			args["section_id"] = t.GoalSyncID
		}
	} else {
		args["parent_id"] = parent.ID
	}
	if t.Scheduled != nil {
		args["due"] = map[string]any{"date": formatDate(t.Scheduled, t.ScheduledWithTime)}
	}
	if t.Deadline != nil {
		args["deadline"] = map[string]any{"date": formatDate(t.Deadline, false)}
	}

	temp := p.target.AddItem(args)
	p.target.AddNote(temp, stamp.Stamp{SourceID: t.SourceID(), ContentHash: stamp.HashTask(t)}.String())
	if t.IsCompleted {
		p.target.CloseItem(temp)
	}
	p.links.LinkTask(t.SourceID(), temp)
	p.report.Target.Tasks.Add++
	return temp
}

// updateTargetTask overwrites cur with the Source values in t, sending only
// the fields that differ.
func (p *pass) updateTargetTask(t, cur model.Task) {
	if cur.Target == nil {
		return
	}
	changed := diff.Fields(t, cur)
	if !slices.Equal(t.SortedLabels(), cur.SortedLabels()) {
		changed = append(changed, "labels")
	}

	fields := make(map[string]any)
	moved := false
	for _, name := range changed {
		switch name {
		case "content":
			fields["content"] = p.e.symbols.WithPostponed(t.Content, postponed(t))
		case "labels":
			fields["labels"] = labelsArg(t.Labels)
		case "scheduled", "scheduled_with_time":
			if t.Scheduled == nil {
				fields["due"] = nil
			} else {
				fields["due"] = map[string]any{"date": formatDate(t.Scheduled, t.ScheduledWithTime)}
			}
		case "deadline":
			if t.Deadline == nil {
				fields["deadline"] = nil
			} else {
				fields["deadline"] = map[string]any{"date": formatDate(t.Deadline, false)}
			}
		case "project_sync_id", "goal_sync_id", "parent_sync_id":
			moved = true
		}
	}

	id := cur.SyncID
	if len(fields) > 0 {
		p.target.UpdateItem(id, fields)
	}
	if moved {
		switch {
		case t.ParentSyncID != "":
			p.target.MoveItem(id, map[string]any{"parent_id": t.ParentSyncID})
		case t.GoalSyncID != "":
			p.target.MoveItem(id, map[string]any{"section_id": t.GoalSyncID})
		default:
			p.target.MoveItem(id, map[string]any{"project_id": t.ProjectSyncID})
		}
	}
	switch {
	case t.IsCompleted && !cur.IsCompleted:
		p.target.CloseItem(id)
	case !t.IsCompleted && cur.IsCompleted:
		p.target.UncompleteItem(id)
	}

	note := stamp.Stamp{SourceID: t.SourceID(), ContentHash: stamp.HashTask(t)}
	switch {
	case cur.Target.StampNoteID == "":
		p.target.AddNote(id, note.String())
	case cur.Target.StampHash != note.ContentHash:
		p.target.UpdateNote(cur.Target.StampNoteID, note.String())
	}
	p.report.Target.Tasks.Update++
}

// addSourceTasks creates Target-born tasks on Source parent-first. A subtask
// whose parent is created in the same pass points at the parent's Source
// temp id, which the Source queue resolves as it commits in order. A subtask
// whose parent is neither linked nor being created waits for a later pass.
func (p *pass) addSourceTasks(adds []model.Task, tc *taskContext) {
	if len(adds) == 0 {
		return
	}
	tree := hierarchy.Build(adds, func(t model.Task) hierarchy.Key {
		k := hierarchy.Key{ID: t.SyncID}
		if t.ParentSyncID != "" {
			k.Parents = []string{t.ParentSyncID}
		}
		return k
	})

	hierarchy.Walk(tree, func(parent hierarchy.Ref, t model.Task) hierarchy.Ref {
		var parents []string
		switch {
		case !parent.Root && parent.ID == "":
			p.deferred++
			p.log.Debug("deferring target task until its parent is linked", "id", t.SyncID)
			return hierarchy.Ref{}
		case !parent.Root:
			parents = []string{parent.ID}
		case t.ParentSyncID != "":
			linked, ok := tc.sourceBySync[t.ParentSyncID]
			if !ok {
				p.deferred++
				p.log.Debug("deferring target task until its parent is linked", "id", t.SyncID)
				return hierarchy.Ref{}
			}
			parents = []string{linked}
		}
		return hierarchy.Ref{ID: p.addSourceTask(t, tc, parents), Temporary: true}
	})
}

func (p *pass) addSourceTask(t model.Task, tc *taskContext, parents []string) string {
	out := t
	out.Content = p.e.symbols.WithRecurring(t.Content, t.Target.IsRecurring)
	out.Source = &model.SourceTask{
		GoalID:    tc.goalBySync[t.GoalSyncID],
		ProjectID: tc.projectBySync[t.ProjectSyncID],
		ParentIDs: parents,
	}
	temp := p.source.AddTask(out)
	p.born = append(p.born, bornTask{
		temp:   temp,
		itemID: t.SyncID,
		noteID: t.Target.StampNoteID,
		hash:   t.Target.ContentHash,
	})
	p.report.Source.Tasks.Add++
	return temp
}

// updateSourceTask overwrites the Source record with Target values and
// re-stamps the Target task so it no longer reads as diverged.
func (p *pass) updateSourceTask(t model.Task, tc *taskContext) {
	if t.Source == nil || t.Target == nil {
		return
	}
	src := *t.Source
	src.GoalID = tc.goalBySync[t.GoalSyncID]
	src.ProjectID = tc.projectBySync[t.ProjectSyncID]
	src.ParentIDs = nil
	if parent, ok := tc.sourceBySync[t.ParentSyncID]; ok {
		src.ParentIDs = []string{parent}
	}

	out := t
	out.Content = p.e.symbols.WithRecurring(t.Content, t.Target.IsRecurring)
	out.Source = &src
	p.source.UpdateTask(out)
	p.report.Source.Tasks.Update++

	note := stamp.Stamp{SourceID: src.ID, ContentHash: t.Target.ContentHash}
	switch {
	case t.Target.StampNoteID == "":
		p.target.AddNote(t.SyncID, note.String())
	case t.Target.StampHash != t.Target.ContentHash:
		p.target.UpdateNote(t.Target.StampNoteID, note.String())
	}
}

func postponed(t model.Task) bool {
	return t.Source != nil && t.Source.Postponed
}

func labelsArg(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return slices.Clone(labels)
}
