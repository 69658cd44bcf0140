// Package snapshot holds the Target store's resource state and recent
// mutation log, and classifies what changed on Target since the last pass.
//
// Records mirror the Target Sync API resources. A snapshot is rebuilt every
// pass by merging full or incremental fetches and is never persisted; only
// the Boundary (sync token and date) survives between runs.
package snapshot

import "time"

// Snapshot is the set of Target resources known to the engine.
type Snapshot struct {
	Projects     []Project     `json:"projects"`
	Sections     []Section     `json:"sections"`
	Items        []Item        `json:"items"`
	Labels       []Label       `json:"labels"`
	Notes        []Note        `json:"notes"`
	ProjectNotes []ProjectNote `json:"project_notes"`
}

// Project is a Target project.
type Project struct {
	ID         string     `json:"id"`
	ParentID   string     `json:"parent_id"`
	Name       string     `json:"name"`
	Color      string     `json:"color,omitempty"`
	ChildOrder int        `json:"child_order"`
	IsDeleted  bool       `json:"is_deleted"`
	IsArchived bool       `json:"is_archived"`
	AddedAt    *time.Time `json:"added_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Section is a Target section.
type Section struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Name         string     `json:"name"`
	SectionOrder int        `json:"section_order"`
	IsDeleted    bool       `json:"is_deleted"`
	IsArchived   bool       `json:"is_archived"`
	AddedAt      *time.Time `json:"added_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Due is the due date of an item. Date is either YYYY-MM-DD or a full
// timestamp when the item is scheduled with a time.
type Due struct {
	Date        string `json:"date"`
	IsRecurring bool   `json:"is_recurring"`
	String      string `json:"string,omitempty"`
}

// Deadline is the deadline of an item.
type Deadline struct {
	Date string `json:"date"`
}

// Item is a Target task.
type Item struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	SectionID   string     `json:"section_id,omitempty"`
	ParentID    string     `json:"parent_id,omitempty"`
	Content     string     `json:"content"`
	Description string     `json:"description"`
	Checked     bool       `json:"checked"`
	IsDeleted   bool       `json:"is_deleted"`
	Labels      []string   `json:"labels"`
	Due         *Due       `json:"due,omitempty"`
	Deadline    *Deadline  `json:"deadline,omitempty"`
	ChildOrder  int        `json:"child_order"`
	AddedAt     *time.Time `json:"added_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Label is a Target personal label.
type Label struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	ItemOrder int    `json:"item_order"`
	IsDeleted bool   `json:"is_deleted"`
}

// Note is a comment attached to an item.
type Note struct {
	ID        string     `json:"id"`
	ItemID    string     `json:"item_id"`
	Content   string     `json:"content"`
	IsDeleted bool       `json:"is_deleted"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
}

// ProjectNote is a comment attached to a project.
type ProjectNote struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Content   string     `json:"content"`
	IsDeleted bool       `json:"is_deleted"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
}

// Boundary is the persisted agreement point of the last completed pass.
type Boundary struct {
	Token string    `json:"token"`
	Date  time.Time `json:"date"`
}

// IsZero reports whether no pass has completed yet.
func (b Boundary) IsZero() bool {
	return b.Token == "" && b.Date.IsZero()
}

// ActiveItems returns items that are neither deleted nor checked.
func (s *Snapshot) ActiveItems() []Item {
	if s == nil {
		return nil
	}
	var out []Item
	for _, it := range s.Items {
		if !it.IsDeleted && !it.Checked {
			out = append(out, it)
		}
	}
	return out
}

// ActiveSections returns sections that are neither deleted nor archived.
func (s *Snapshot) ActiveSections() []Section {
	if s == nil {
		return nil
	}
	var out []Section
	for _, sec := range s.Sections {
		if !sec.IsDeleted && !sec.IsArchived {
			out = append(out, sec)
		}
	}
	return out
}

// ActiveProjects returns projects that are neither deleted nor archived.
func (s *Snapshot) ActiveProjects() []Project {
	if s == nil {
		return nil
	}
	var out []Project
	for _, p := range s.Projects {
		if !p.IsDeleted && !p.IsArchived {
			out = append(out, p)
		}
	}
	return out
}

// NotesByItem groups live notes by item id, preserving order.
func (s *Snapshot) NotesByItem() map[string][]Note {
	out := make(map[string][]Note)
	if s == nil {
		return out
	}
	for _, n := range s.Notes {
		if n.IsDeleted {
			continue
		}
		out[n.ItemID] = append(out[n.ItemID], n)
	}
	return out
}
