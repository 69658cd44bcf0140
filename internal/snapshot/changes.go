package snapshot

import "time"

// IDSet is a set of record ids.
type IDSet map[string]struct{}

// Has reports whether id is in the set. A nil set is empty.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) add(id string) { s[id] = struct{}{} }

// Changes classifies Target records relative to a boundary date. Every set
// except Deleted excludes deleted records.
type Changes struct {
	Deleted   IDSet
	Added     IDSet
	Updated   IDSet // updated or completed after the boundary
	Completed IDSet
}

// ChangedSince reports whether the record was touched on Target after the
// boundary.
func (c Changes) ChangedSince(id string) bool {
	return c.Updated.Has(id)
}

// TaskChanges classifies items against since.
func (s *Snapshot) TaskChanges(since time.Time) Changes {
	c := newChanges()
	if s == nil {
		return c
	}
	for _, it := range s.Items {
		if it.IsDeleted {
			c.Deleted.add(it.ID)
		}
	}
	for _, it := range s.Items {
		if c.Deleted.Has(it.ID) {
			continue
		}
		if after(it.AddedAt, since) {
			c.Added.add(it.ID)
		}
		if after(it.CompletedAt, since) {
			c.Completed.add(it.ID)
		}
		if after(it.UpdatedAt, since) || after(it.CompletedAt, since) {
			c.Updated.add(it.ID)
		}
	}
	return c
}

// SectionChanges classifies sections against since.
func (s *Snapshot) SectionChanges(since time.Time) Changes {
	c := newChanges()
	if s == nil {
		return c
	}
	for _, sec := range s.Sections {
		if sec.IsDeleted {
			c.Deleted.add(sec.ID)
		}
	}
	for _, sec := range s.Sections {
		if c.Deleted.Has(sec.ID) {
			continue
		}
		if after(sec.AddedAt, since) {
			c.Added.add(sec.ID)
		}
		if after(sec.UpdatedAt, since) {
			c.Updated.add(sec.ID)
		}
	}
	return c
}

func newChanges() Changes {
	return Changes{
		Deleted:   IDSet{},
		Added:     IDSet{},
		Updated:   IDSet{},
		Completed: IDSet{},
	}
}

func after(t *time.Time, ref time.Time) bool {
	return t != nil && t.After(ref)
}
