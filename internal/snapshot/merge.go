package snapshot

import "time"

// Merge combines snapshots, keeping per resource kind and id the record with
// the newest mutation time. On equal times the later snapshot wins. Record
// order follows first appearance. Nil snapshots are skipped; the result is
// nil only when every input is nil.
func Merge(snapshots ...*Snapshot) *Snapshot {
	var out *Snapshot
	for _, s := range snapshots {
		if s == nil {
			continue
		}
		if out == nil {
			out = &Snapshot{}
		}
		out.Projects = mergeRecords(out.Projects, s.Projects, func(p Project) string { return p.ID }, projectMutation)
		out.Sections = mergeRecords(out.Sections, s.Sections, func(p Section) string { return p.ID }, sectionMutation)
		out.Items = mergeRecords(out.Items, s.Items, func(p Item) string { return p.ID }, itemMutation)
		out.Labels = mergeRecords(out.Labels, s.Labels, func(p Label) string { return p.ID }, func(Label) time.Time { return time.Time{} })
		out.Notes = mergeRecords(out.Notes, s.Notes, func(p Note) string { return p.ID }, func(n Note) time.Time { return latest(n.PostedAt) })
		out.ProjectNotes = mergeRecords(out.ProjectNotes, s.ProjectNotes, func(p ProjectNote) string { return p.ID }, func(n ProjectNote) time.Time { return latest(n.PostedAt) })
	}
	return out
}

func mergeRecords[T any](base, next []T, id func(T) string, mutated func(T) time.Time) []T {
	if len(next) == 0 {
		return base
	}
	out := make([]T, len(base), len(base)+len(next))
	copy(out, base)

	index := make(map[string]int, len(out))
	for i, r := range out {
		index[id(r)] = i
	}
	for _, r := range next {
		i, ok := index[id(r)]
		if !ok {
			index[id(r)] = len(out)
			out = append(out, r)
			continue
		}
		if !mutated(r).Before(mutated(out[i])) {
			out[i] = r
		}
	}
	return out
}

func projectMutation(p Project) time.Time { return latest(p.AddedAt, p.UpdatedAt) }
func sectionMutation(s Section) time.Time { return latest(s.AddedAt, s.UpdatedAt) }
func itemMutation(i Item) time.Time       { return latest(i.AddedAt, i.UpdatedAt, i.CompletedAt) }

func latest(ts ...*time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t != nil && t.After(out) {
			out = *t
		}
	}
	return out
}
