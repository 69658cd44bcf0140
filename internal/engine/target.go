package engine

import (
	"cmp"
	"slices"
	"time"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/stamp"
)

const (
	dayLayout      = "2006-01-02"
	floatingLayout = "2006-01-02T15:04:05"
	utcLayout      = "2006-01-02T15:04:05Z"
)

// targetProjects converts the direct children of root, with their sections
// as goals, ordered as on Target.
func targetProjects(snap *snapshot.Snapshot, root string) []model.Project {
	sections := sectionsByProject(snap)
	var out []model.Project
	for _, p := range snap.ActiveProjects() {
		if root == "" || p.ParentID != root {
			continue
		}
		out = append(out, targetProject(p, sections[p.ID]))
	}
	slices.SortStableFunc(out, func(a, b model.Project) int { return cmp.Compare(a.Target.Order, b.Target.Order) })
	return out
}

func sectionsByProject(snap *snapshot.Snapshot) map[string][]snapshot.Section {
	sections := make(map[string][]snapshot.Section)
	for _, s := range snap.ActiveSections() {
		sections[s.ProjectID] = append(sections[s.ProjectID], s)
	}
	return sections
}

func targetProject(p snapshot.Project, secs []snapshot.Section) model.Project {
	name, state := model.ParseBlockedName(p.Name)
	proj := model.Project{
		SyncID:       p.ID,
		Name:         name,
		BlockedState: state,
		Target:       &model.TargetProject{ParentID: p.ParentID, Order: p.ChildOrder},
	}
	secs = slices.Clone(secs)
	slices.SortStableFunc(secs, func(a, b snapshot.Section) int { return cmp.Compare(a.SectionOrder, b.SectionOrder) })
	for _, s := range secs {
		proj.Goals = append(proj.Goals, targetGoal(s))
	}
	return proj
}

func targetGoal(s snapshot.Section) model.Goal {
	name, state := model.ParseBlockedName(s.Name)
	return model.Goal{
		SyncID:       s.ID,
		Name:         name,
		BlockedState: state,
		Target:       &model.TargetGoal{ProjectID: s.ProjectID, Order: s.SectionOrder},
	}
}

// targetIndex is the Target task set of one pass.
type targetIndex struct {
	// tasks are the open tasks in managed projects, duplicates removed.
	tasks []model.Task
	byID  map[string]model.Task
	// bySource maps a normalized Source id to the task stamped with it.
	bySource map[string]model.Task
	// duplicates are stamped tasks that lost to another task stamped with
	// the same Source id.
	duplicates []model.Task
	// extraStamps are stamp notes beyond the first on a kept task.
	extraStamps []string
}

// indexTargetTasks converts the open items of the managed projects and
// reads their stamps.
func indexTargetTasks(snap *snapshot.Snapshot, managed map[string]bool, symbols model.Symbols) *targetIndex {
	notes := snap.NotesByItem()
	idx := &targetIndex{
		byID:     make(map[string]model.Task),
		bySource: make(map[string]model.Task),
	}

	var all []model.Task
	extra := make(map[string][]string)
	for _, it := range snap.ActiveItems() {
		if !managed[it.ProjectID] {
			continue
		}
		t := targetTask(it, symbols)
		for _, n := range notes[it.ID] {
			st, ok := stamp.Extract(n.Content)
			if !ok {
				continue
			}
			if t.Target.StampNoteID != "" {
				extra[it.ID] = append(extra[it.ID], n.ID)
				continue
			}
			t.Target.StampSourceID = stamp.NormalizeID(st.SourceID)
			t.Target.StampHash = st.ContentHash
			t.Target.StampNoteID = n.ID
		}
		all = append(all, t)
	}

	losers := make(map[string]bool)
	for _, t := range all {
		src := t.Target.StampSourceID
		if src == "" {
			continue
		}
		existing, ok := idx.bySource[src]
		if !ok {
			idx.bySource[src] = t
			continue
		}
		keep, toss := preferDuplicate(existing, t)
		idx.bySource[src] = keep
		losers[toss.SyncID] = true
		idx.duplicates = append(idx.duplicates, toss)
	}

	for _, t := range all {
		if losers[t.SyncID] {
			continue
		}
		idx.tasks = append(idx.tasks, t)
		idx.byID[t.SyncID] = t
		idx.extraStamps = append(idx.extraStamps, extra[t.SyncID]...)
	}
	return idx
}

// preferDuplicate picks which of two tasks stamped with the same Source id
// survives: recurring first, then dated, then the more recently added.
func preferDuplicate(a, b model.Task) (keep, toss model.Task) {
	switch {
	case a.Target.IsRecurring != b.Target.IsRecurring:
		if a.Target.IsRecurring {
			return a, b
		}
		return b, a
	case (a.Scheduled != nil) != (b.Scheduled != nil):
		if a.Scheduled != nil {
			return a, b
		}
		return b, a
	case a.Target.AddedAt.After(b.Target.AddedAt):
		return a, b
	default:
		return b, a
	}
}

func targetTask(it snapshot.Item, symbols model.Symbols) model.Task {
	t := model.Task{
		SyncID:        it.ID,
		ProjectSyncID: it.ProjectID,
		GoalSyncID:    it.SectionID,
		ParentSyncID:  it.ParentID,
		IsCompleted:   it.Checked,
		Content:       symbols.Strip(it.Content),
		Labels:        slices.Clone(it.Labels),
		Target: &model.TargetTask{
			ProjectID:   it.ProjectID,
			SectionID:   it.SectionID,
			ParentID:    it.ParentID,
			Description: it.Description,
		},
	}
	if it.AddedAt != nil {
		t.Target.AddedAt = *it.AddedAt
	}
	if it.Due != nil {
		t.Scheduled, t.ScheduledWithTime = parseDate(it.Due.Date)
		t.Target.IsRecurring = it.Due.IsRecurring
	}
	if it.Deadline != nil {
		t.Deadline, _ = parseDate(it.Deadline.Date)
	}
	t.Target.ContentHash = stamp.HashTask(t)
	return t
}

// parseDate reads a Target date: a calendar day, a floating local time or a
// UTC timestamp. Unparseable dates read as absent.
func parseDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, false
	}
	if d, err := time.Parse(dayLayout, s); err == nil {
		return &d, false
	}
	for _, layout := range []string{time.RFC3339, floatingLayout} {
		if d, err := time.Parse(layout, s); err == nil {
			d = d.UTC()
			return &d, true
		}
	}
	return nil, false
}

// formatDate renders a date the way the Target expects it.
func formatDate(d *time.Time, withTime bool) string {
	if d == nil {
		return ""
	}
	if withTime {
		return d.UTC().Format(utcLayout)
	}
	return d.UTC().Format(dayLayout)
}
