package notion

import (
	"context"
	"fmt"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/queue"
)

// CreateTask adds a Target-born task to the tasks database, linked to its
// sync id, and returns the new page id.
func (c *Client) CreateTask(ctx context.Context, t model.Task) (string, error) {
	s := c.schema
	p := c.taskProps(t)
	p.set(s.Task.SyncID, richTextValue(t.SyncID))
	state := s.States.NewTask
	if t.IsCompleted {
		state = s.States.CompletedTask
	}
	if state != "" {
		p.set(s.Task.Status, statusValue(state))
	}
	id, err := c.createPage(ctx, s.TasksDB, p)
	if err != nil {
		return "", err
	}
	c.logger.Debug("notion task created", "id", id, "sync_id", t.SyncID)
	return id, nil
}

// UpdateTask overwrites the synchronized fields of an existing task. A
// completed task is moved to the completed status; a closed task that is
// open again is moved back to the new status.
func (c *Client) UpdateTask(ctx context.Context, t model.Task) error {
	s := c.schema
	id := t.SourceID()
	if id == "" {
		return fmt.Errorf("update task %q: no source id", t.Content)
	}
	p := c.taskProps(t)
	switch {
	case t.IsCompleted && s.States.CompletedTask != "":
		p.set(s.Task.Status, statusValue(s.States.CompletedTask))
	case !t.IsCompleted && s.States.taskClosed(t.Source.Status) && s.States.NewTask != "":
		p.set(s.Task.Status, statusValue(s.States.NewTask))
	}
	return c.updatePage(ctx, id, p)
}

// CompleteTask moves a task to the completed status. Without a configured
// completed status the write is rejected.
func (c *Client) CompleteTask(ctx context.Context, sourceID string) error {
	s := c.schema
	if s.States.CompletedTask == "" {
		return fmt.Errorf("complete task %s: no completed status configured: %w", sourceID, queue.ErrRejected)
	}
	p := props{}
	p.set(s.Task.Status, statusValue(s.States.CompletedTask))
	return c.updatePage(ctx, sourceID, p)
}

// CreateGoal adds a goal under the project, linked to its sync id.
func (c *Client) CreateGoal(ctx context.Context, projectSourceID string, g model.Goal) (string, error) {
	s := c.schema
	p := props{}
	p.set(s.Goal.Name, titleValue(g.Name))
	p.set(s.Goal.Project, relationValue(projectSourceID))
	p.set(s.Goal.SyncID, richTextValue(g.SyncID))
	return c.createPage(ctx, s.GoalsDB, p)
}

// SetTaskSyncID links a task to a Target id.
func (c *Client) SetTaskSyncID(ctx context.Context, sourceID, syncID string) error {
	return c.setSyncID(ctx, c.schema.Task.SyncID, sourceID, syncID)
}

// SetProjectSyncID links a project to a Target id.
func (c *Client) SetProjectSyncID(ctx context.Context, sourceID, syncID string) error {
	return c.setSyncID(ctx, c.schema.Project.SyncID, sourceID, syncID)
}

// SetGoalSyncID links a goal to a Target id.
func (c *Client) SetGoalSyncID(ctx context.Context, sourceID, syncID string) error {
	return c.setSyncID(ctx, c.schema.Goal.SyncID, sourceID, syncID)
}

func (c *Client) setSyncID(ctx context.Context, prop, sourceID, syncID string) error {
	p := props{}
	p.set(prop, richTextValue(syncID))
	return c.updatePage(ctx, sourceID, p)
}

// taskProps renders the fields shared by create and update.
func (c *Client) taskProps(t model.Task) props {
	s := c.schema.Task
	p := props{}
	p.set(s.Title, titleValue(t.Content))
	p.set(s.Scheduled, dateValueOf(t.Scheduled, t.ScheduledWithTime))
	p.set(s.Deadline, dateValueOf(t.Deadline, false))
	verb, rest := c.splitLabels(t.Labels)
	p.set(s.Verb, selectValue(verb))
	p.set(s.Labels, multiSelectValue(rest))
	if src := t.Source; src != nil {
		p.set(s.Goal, relationValue(src.GoalID))
		p.set(s.Project, relationValue(src.ProjectID))
		p.set(s.Parent, relationValue(src.ParentIDs...))
	}
	return p
}
