package notion

import (
	"slices"

	"github.com/soimon/notion-todoist/internal/model"
)

// Schema names the databases and properties the adapter reads and writes.
// Optional property names may be left empty to skip that field.
type Schema struct {
	ProjectsDB string `mapstructure:"projects_db" yaml:"projects_db" json:"projects_db"`
	GoalsDB    string `mapstructure:"goals_db" yaml:"goals_db" json:"goals_db"`
	TasksDB    string `mapstructure:"tasks_db" yaml:"tasks_db" json:"tasks_db"`

	Project ProjectProps `mapstructure:"project" yaml:"project" json:"project"`
	Goal    GoalProps    `mapstructure:"goal" yaml:"goal" json:"goal"`
	Task    TaskProps    `mapstructure:"task" yaml:"task" json:"task"`

	States States `mapstructure:"states" yaml:"states" json:"states"`
}

// ProjectProps are property names in the projects database.
type ProjectProps struct {
	Name   string `mapstructure:"name" yaml:"name" json:"name"`
	Status string `mapstructure:"status" yaml:"status" json:"status"`
	SyncID string `mapstructure:"sync_id" yaml:"sync_id" json:"sync_id"`
}

// GoalProps are property names in the goals database.
type GoalProps struct {
	Name       string `mapstructure:"name" yaml:"name" json:"name"`
	Status     string `mapstructure:"status" yaml:"status" json:"status"`
	SyncID     string `mapstructure:"sync_id" yaml:"sync_id" json:"sync_id"`
	Project    string `mapstructure:"project" yaml:"project" json:"project"`
	WaitingFor string `mapstructure:"waiting_for" yaml:"waiting_for" json:"waiting_for"`
}

// TaskProps are property names in the tasks database.
type TaskProps struct {
	Title     string `mapstructure:"title" yaml:"title" json:"title"`
	Status    string `mapstructure:"status" yaml:"status" json:"status"`
	SyncID    string `mapstructure:"sync_id" yaml:"sync_id" json:"sync_id"`
	Scheduled string `mapstructure:"scheduled" yaml:"scheduled" json:"scheduled"`
	Deadline  string `mapstructure:"deadline" yaml:"deadline" json:"deadline"`
	Goal      string `mapstructure:"goal" yaml:"goal" json:"goal"`
	Project   string `mapstructure:"project" yaml:"project" json:"project"`
	Parent    string `mapstructure:"parent" yaml:"parent" json:"parent"`
	Area      string `mapstructure:"area" yaml:"area" json:"area"`
	Labels    string `mapstructure:"labels" yaml:"labels" json:"labels"`
	// Verb is an optional select whose options become verb labels. The
	// options of Labels become place labels.
	Verb      string `mapstructure:"verb" yaml:"verb" json:"verb"`
	Postponed string `mapstructure:"postponed" yaml:"postponed" json:"postponed"`
}

// States names the status options with a meaning to the sync.
type States struct {
	// ActiveProjects are the project statuses worth synchronizing. Empty
	// means every project.
	ActiveProjects []string `mapstructure:"active_projects" yaml:"active_projects" json:"active_projects"`
	ClosedGoals    []string `mapstructure:"closed_goals" yaml:"closed_goals" json:"closed_goals"`
	PausedGoals    []string `mapstructure:"paused_goals" yaml:"paused_goals" json:"paused_goals"`
	ClosedTasks    []string `mapstructure:"closed_tasks" yaml:"closed_tasks" json:"closed_tasks"`
	CompletedTask  string   `mapstructure:"completed_task" yaml:"completed_task" json:"completed_task"`
	NewTask        string   `mapstructure:"new_task" yaml:"new_task" json:"new_task"`

	// Progression maps workflow stages to the task status shown for them.
	Progression map[model.Progression]string `mapstructure:"progression" yaml:"progression" json:"progression"`
}

// DefaultSchema returns the property layout of the reference workspace.
// Database ids are left empty.
func DefaultSchema() Schema {
	return Schema{
		Project: ProjectProps{Name: "Name", Status: "Status", SyncID: "Sync ID"},
		Goal: GoalProps{
			Name:       "Name",
			Status:     "Status",
			SyncID:     "Sync ID",
			Project:    "Project",
			WaitingFor: "Waiting for",
		},
		Task: TaskProps{
			Title:     "Action",
			Status:    "Status",
			SyncID:    "Sync ID",
			Scheduled: "Do",
			Deadline:  "Deadline",
			Goal:      "Goal",
			Project:   "Project",
			Parent:    "Parent item",
			Area:      "Area",
			Labels:    "Labels",
			Postponed: "Postponed",
		},
		States: States{
			ActiveProjects: []string{"2: Outlining", "3: In progress", "Wrapping"},
			ClosedGoals:    []string{"Done"},
			PausedGoals:    []string{"Paused"},
			ClosedTasks:    []string{"Done", "Cut"},
			CompletedTask:  "Done",
			NewTask:        "Not started",
			Progression: map[model.Progression]string{
				model.ProgressionNotStarted:     "Not started",
				model.ProgressionShouldDelegate: "To delegate",
				model.ProgressionDelegated:      "Delegated",
				model.ProgressionInProgress:     "In progress",
				model.ProgressionBlocked:        "Blocked",
			},
		},
	}
}

func (s States) taskClosed(status string) bool { return slices.Contains(s.ClosedTasks, status) }
func (s States) goalPaused(status string) bool { return slices.Contains(s.PausedGoals, status) }

func (s States) progression(status string) model.Progression {
	for p, name := range s.Progression {
		if name == status {
			return p
		}
	}
	return ""
}
