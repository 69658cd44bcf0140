package notion

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/soimon/notion-todoist/internal/model"
)

// FetchProjects returns the active projects with their open goals. Goals
// without a project are skipped. Free projects and goals sort first.
func (c *Client) FetchProjects(ctx context.Context) ([]model.Project, error) {
	s := c.schema
	goalPages, err := c.query(ctx, s.GoalsDB, c.openGoalsFilter())
	if err != nil {
		return nil, fmt.Errorf("fetch goals: %w", err)
	}
	projectPages, err := c.query(ctx, s.ProjectsDB, c.activeProjectsFilter())
	if err != nil {
		return nil, fmt.Errorf("fetch projects: %w", err)
	}

	goals := make(map[string][]model.Goal)
	for _, pg := range goalPages {
		if pg.Archived || pg.InTrash {
			continue
		}
		g := c.goalFromPage(pg)
		if g.Source.ProjectID == "" {
			continue
		}
		goals[g.Source.ProjectID] = append(goals[g.Source.ProjectID], g)
	}

	projects := make([]model.Project, 0, len(projectPages))
	for _, pg := range projectPages {
		if pg.Archived || pg.InTrash {
			continue
		}
		id := normalizeID(pg.ID)
		gs := goals[id]
		slices.SortStableFunc(gs, func(a, b model.Goal) int { return blockedRank(a.BlockedState) - blockedRank(b.BlockedState) })
		projects = append(projects, model.Project{
			SyncID:       pg.prop(s.Project.SyncID).text(),
			Name:         pg.prop(s.Project.Name).text(),
			BlockedState: projectState(gs),
			Goals:        gs,
			Source:       &model.SourceProject{ID: id},
		})
	}
	slices.SortStableFunc(projects, func(a, b model.Project) int {
		return blockedRank(a.BlockedState) - blockedRank(b.BlockedState)
	})

	c.logger.Debug("notion projects fetched", "projects", len(projects), "goals", len(goalPages))
	return projects, nil
}

// FetchTasks returns open tasks and tasks edited within the lookback
// window, which carries recent completions over to the Target.
func (c *Client) FetchTasks(ctx context.Context) ([]model.Task, error) {
	pages, err := c.query(ctx, c.schema.TasksDB, c.taskCandidatesFilter())
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	seen := make(map[string]bool, len(pages))
	tasks := make([]model.Task, 0, len(pages))
	for _, pg := range pages {
		if pg.Archived || pg.InTrash {
			continue
		}
		t := c.taskFromPage(pg)
		if seen[t.Source.ID] {
			continue
		}
		seen[t.Source.ID] = true
		tasks = append(tasks, t)
	}
	c.logger.Debug("notion tasks fetched", "tasks", len(tasks))
	return tasks, nil
}

func (c *Client) goalFromPage(pg page) model.Goal {
	s := c.schema
	state := model.BlockedFree
	switch {
	case s.States.goalPaused(pg.prop(s.Goal.Status).choice()):
		state = model.BlockedPaused
	case len(pg.prop(s.Goal.WaitingFor).Relation) > 0:
		state = model.BlockedBlocked
	}
	return model.Goal{
		SyncID:       pg.prop(s.Goal.SyncID).text(),
		Name:         pg.prop(s.Goal.Name).text(),
		BlockedState: state,
		Source: &model.SourceGoal{
			ID:        normalizeID(pg.ID),
			ProjectID: pg.prop(s.Goal.Project).firstRelation(),
		},
	}
}

func (c *Client) taskFromPage(pg page) model.Task {
	s := c.schema
	status := pg.prop(s.Task.Status).choice()
	scheduled, withTime := pg.prop(s.Task.Scheduled).date()
	deadline, _ := pg.prop(s.Task.Deadline).date()

	return model.Task{
		SyncID:            pg.prop(s.Task.SyncID).text(),
		Content:           pg.prop(s.Task.Title).text(),
		IsCompleted:       s.States.taskClosed(status),
		Scheduled:         scheduled,
		ScheduledWithTime: withTime,
		Deadline:          deadline,
		Labels:            taskLabels(pg.prop(s.Task.Verb).choice(), pg.prop(s.Task.Labels).names()),
		Source: &model.SourceTask{
			ID:          normalizeID(pg.ID),
			GoalID:      pg.prop(s.Task.Goal).firstRelation(),
			ProjectID:   pg.prop(s.Task.Project).firstRelation(),
			ParentIDs:   pg.prop(s.Task.Parent).relations(),
			AreaIDs:     pg.prop(s.Task.Area).relations(),
			LastEdited:  pg.lastEdited(),
			Status:      status,
			Progression: s.States.progression(status),
			Postponed:   pg.prop(s.Task.Postponed).flag(),
		},
	}
}

// taskLabels puts the verb, when set, ahead of the other labels.
func taskLabels(verb string, labels []string) []string {
	if verb == "" || slices.Contains(labels, verb) {
		return labels
	}
	return append([]string{verb}, labels...)
}

// projectState is blocked or paused when every goal is; a project without
// goals is free.
func projectState(goals []model.Goal) model.BlockedState {
	if len(goals) == 0 {
		return model.BlockedFree
	}
	state := model.BlockedPaused
	for _, g := range goals {
		switch g.BlockedState {
		case model.BlockedFree:
			return model.BlockedFree
		case model.BlockedBlocked:
			state = model.BlockedBlocked
		}
	}
	return state
}

func blockedRank(s model.BlockedState) int {
	if s == model.BlockedFree || s == "" {
		return 0
	}
	return 1
}

// Filters

func (c *Client) activeProjectsFilter() any {
	s := c.schema
	if len(s.States.ActiveProjects) == 0 || s.Project.Status == "" {
		return nil
	}
	or := make([]any, 0, len(s.States.ActiveProjects))
	for _, state := range s.States.ActiveProjects {
		or = append(or, map[string]any{
			"property": s.Project.Status,
			"status":   map[string]any{"equals": state},
		})
	}
	return map[string]any{"or": or}
}

func (c *Client) openGoalsFilter() any {
	s := c.schema
	and := []any{map[string]any{
		"property": s.Goal.Project,
		"relation": map[string]any{"is_not_empty": true},
	}}
	if s.Goal.Status != "" {
		for _, state := range s.States.ClosedGoals {
			and = append(and, map[string]any{
				"property": s.Goal.Status,
				"status":   map[string]any{"does_not_equal": state},
			})
		}
	}
	return map[string]any{"and": and}
}

func (c *Client) taskCandidatesFilter() any {
	s := c.schema
	since := c.now().Add(-c.lookback).UTC().Format(time.RFC3339)
	recent := map[string]any{
		"timestamp":        "last_edited_time",
		"last_edited_time": map[string]any{"on_or_after": since},
	}
	if s.Task.Status == "" || len(s.States.ClosedTasks) == 0 {
		return nil
	}
	open := make([]any, 0, len(s.States.ClosedTasks))
	for _, state := range s.States.ClosedTasks {
		open = append(open, map[string]any{
			"property": s.Task.Status,
			"status":   map[string]any{"does_not_equal": state},
		})
	}
	return map[string]any{"or": []any{
		map[string]any{"and": open},
		recent,
	}}
}
