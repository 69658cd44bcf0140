package model

import (
	"slices"
	"time"
)

// BlockedState marks projects and goals that cannot currently progress.
type BlockedState string

const (
	BlockedFree    BlockedState = "free"
	BlockedBlocked BlockedState = "blocked"
	BlockedPaused  BlockedState = "paused"
)

// Progression is the workflow stage of a task.
type Progression string

const (
	ProgressionNotStarted     Progression = "not-started"
	ProgressionShouldDelegate Progression = "should-delegate"
	ProgressionDelegated      Progression = "delegated"
	ProgressionInProgress     Progression = "in-progress"
	ProgressionBlocked        Progression = "blocked"
)

// Origin identifies which store an entity value was read from.
type Origin int

const (
	// OriginAmbiguous means both or neither origin tag is set.
	OriginAmbiguous Origin = iota
	OriginSource
	OriginTarget
)

func (o Origin) String() string {
	switch o {
	case OriginSource:
		return "source"
	case OriginTarget:
		return "target"
	default:
		return "ambiguous"
	}
}

func originOf(source, target bool) Origin {
	switch {
	case source && !target:
		return OriginSource
	case target && !source:
		return OriginTarget
	default:
		return OriginAmbiguous
	}
}

// Project is a top-level container. On the Target side it is a project below
// the configured root project; on the Source side a row in the projects database.
type Project struct {
	SyncID       string       `json:"sync_id"`
	Name         string       `json:"name"`
	BlockedState BlockedState `json:"blocked_state"`
	Goals        []Goal       `json:"goals"`

	Source *SourceProject `json:"source,omitempty"`
	Target *TargetProject `json:"target,omitempty"`
}

// SourceProject is the Source origin tag of a project.
type SourceProject struct {
	ID string `json:"id"`
}

// TargetProject is the Target origin tag of a project.
type TargetProject struct {
	ParentID string `json:"parent_id"`
	Order    int    `json:"order"`
}

func (p Project) Identity() string { return p.SyncID }
func (p Project) Origin() Origin   { return originOf(p.Source != nil, p.Target != nil) }

// SourceID returns the Source page id, or "" for Target values.
func (p Project) SourceID() string {
	if p.Source == nil {
		return ""
	}
	return p.Source.ID
}

// Goal groups tasks inside a project. Target sections map to goals.
type Goal struct {
	SyncID       string       `json:"sync_id"`
	Name         string       `json:"name"`
	BlockedState BlockedState `json:"blocked_state"`

	Source *SourceGoal `json:"source,omitempty"`
	Target *TargetGoal `json:"target,omitempty"`
}

// SourceGoal is the Source origin tag of a goal.
type SourceGoal struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
}

// TargetGoal is the Target origin tag of a goal.
type TargetGoal struct {
	ProjectID string `json:"project_id"`
	Order     int    `json:"order"`
}

func (g Goal) Identity() string { return g.SyncID }
func (g Goal) Origin() Origin   { return originOf(g.Source != nil, g.Target != nil) }

// SourceID returns the Source page id, or "" for Target values.
func (g Goal) SourceID() string {
	if g.Source == nil {
		return ""
	}
	return g.Source.ID
}

// Task is the flat unit synchronized between both stores.
//
// ProjectSyncID, GoalSyncID and ParentSyncID are expressed in SyncID space so
// a pair can be compared field by field: a differing ParentSyncID means the
// task moved.
type Task struct {
	SyncID            string     `json:"sync_id"`
	ProjectSyncID     string     `json:"project_sync_id"`
	GoalSyncID        string     `json:"goal_sync_id"`
	ParentSyncID      string     `json:"parent_sync_id"`
	IsCompleted       bool       `json:"is_completed"`
	Content           string     `json:"content"`
	Scheduled         *time.Time `json:"scheduled,omitempty"`
	ScheduledWithTime bool       `json:"scheduled_with_time"`
	Deadline          *time.Time `json:"deadline,omitempty"`
	Labels            []string   `json:"labels"`

	Source *SourceTask `json:"source,omitempty"`
	Target *TargetTask `json:"target,omitempty"`
}

// SourceTask is the Source origin tag of a task.
type SourceTask struct {
	ID         string    `json:"id"`
	GoalID     string    `json:"goal_id,omitempty"`
	ParentIDs  []string  `json:"parent_ids,omitempty"`
	AreaIDs    []string  `json:"area_ids,omitempty"`
	LastEdited time.Time `json:"last_edited"`
	Status     string    `json:"status,omitempty"`

	// ProjectID is the Source project of a task filed without a goal.
	ProjectID   string      `json:"project_id,omitempty"`
	// Progression has no Target counterpart and is never compared.
	Progression Progression `json:"progression,omitempty"`
	// Postponed tasks are shown on Target behind the postponed symbol.
	Postponed   bool        `json:"postponed,omitempty"`
}

// TargetTask is the Target origin tag of a task.
type TargetTask struct {
	ProjectID   string    `json:"project_id"`
	SectionID   string    `json:"section_id,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	Description string    `json:"description,omitempty"`
	IsRecurring bool      `json:"is_recurring"`
	AddedAt     time.Time `json:"added_at"`

	// StampHash is the content hash recorded in the task's sync stamp note.
	StampHash string `json:"stamp_hash,omitempty"`
	// StampNoteID is the id of the note holding the stamp, if any.
	StampNoteID string `json:"stamp_note_id,omitempty"`
	// StampSourceID is the Source id the stamp links to.
	StampSourceID string `json:"stamp_source_id,omitempty"`
	// ContentHash is the hash of the task as currently stored on Target.
	ContentHash string `json:"content_hash,omitempty"`
}

func (t Task) Identity() string { return t.SyncID }
func (t Task) Origin() Origin   { return originOf(t.Source != nil, t.Target != nil) }

// SourceID returns the Source page id, or "" for Target values.
func (t Task) SourceID() string {
	if t.Source == nil {
		return ""
	}
	return t.Source.ID
}

// SortedLabels returns a sorted copy of the task's labels.
func (t Task) SortedLabels() []string {
	out := slices.Clone(t.Labels)
	slices.Sort(out)
	return out
}

// LabelKind groups Source label options. Each kind gets its own Target color.
type LabelKind string

const (
	LabelVerb  LabelKind = "verb"
	LabelPlace LabelKind = "place"
)

// Label is a Source option mirrored as a Target label. Color is the option's
// Source color and only orders labels within a kind.
type Label struct {
	Name  string    `json:"name"`
	Kind  LabelKind `json:"kind"`
	Color string    `json:"color,omitempty"`
}
