// Package testutil provides in-memory stores and a manual clock for
// exercising reconciliation passes without network access.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/queue"
)

// FakeSource is an in-memory Source store. It satisfies the engine's
// SourceStore and queue.SourceWriter.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeSource struct {
	mu       sync.Mutex
	now      func() time.Time
	next     int
	projects []model.Project
	tasks    []model.Task
	labels   []model.Label
	calls    []string
	reject   map[string]bool

	// FetchErr, when set, fails every fetch.
	FetchErr error
}

// NewFakeSource creates an empty Source store. now stamps LastEdited on
// every write; nil uses time.Now.
func NewFakeSource(now func() time.Time) *FakeSource {
	if now == nil {
		now = time.Now
	}
	return &FakeSource{now: now, reject: make(map[string]bool)}
}

// SeedProject stores a project as if the user had created it. Projects and
// goals need their Source tags set.
func (s *FakeSource) SeedProject(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, p)
}

// SeedLabel adds a label option.
func (s *FakeSource) SeedLabel(l model.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = append(s.labels, l)
}

// SeedTask stores a task as if the user had created it. A missing Source
// tag or id is filled in; the id is returned.
func (s *FakeSource) SeedTask(t model.Task) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Source == nil {
		t.Source = &model.SourceTask{}
	} else {
		src := *t.Source
		t.Source = &src
	}
	if t.Source.ID == "" {
		t.Source.ID = s.mint()
	}
	if t.Source.LastEdited.IsZero() {
		t.Source.LastEdited = s.now()
	}
	s.tasks = append(s.tasks, t)
	return t.Source.ID
}

// EditTask applies fn to the stored task as a user edit.
func (s *FakeSource) EditTask(id string, fn func(*model.Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(id)
	if t == nil {
		panic(fmt.Sprintf("FakeSource: no task %q", id))
	}
	fn(t)
	t.Source.LastEdited = s.now()
}

// DropTask removes a task as if the user had archived it on the Source.
func (s *FakeSource) DropTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].SourceID() == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// Reject makes every write addressed at sourceID fail with queue.ErrRejected.
// Creations are addressed by their content.
func (s *FakeSource) Reject(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[sourceID] = true
}

// Task returns a copy of the stored task.
func (s *FakeSource) Task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.find(id); t != nil {
		return cloneTask(*t), true
	}
	return model.Task{}, false
}

// Tasks returns copies of every stored task in creation order.
func (s *FakeSource) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = cloneTask(t)
	}
	return out
}

// Projects returns copies of every stored project.
func (s *FakeSource) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProjects(s.projects)
}

// Calls lists the writes received, as "method:id" in arrival order.
func (s *FakeSource) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// FetchProjects returns the stored projects.
func (s *FakeSource) FetchProjects(ctx context.Context) ([]model.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	return cloneProjects(s.projects), nil
}

// FetchTasks returns the stored tasks, completed ones included.
func (s *FakeSource) FetchTasks(ctx context.Context) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	out := make([]model.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = cloneTask(t)
	}
	return out, nil
}

// FetchLabels returns the stored label options.
func (s *FakeSource) FetchLabels(ctx context.Context) ([]model.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	return slices.Clone(s.labels), nil
}

// CreateTask stores a Target-born task, keeping its sync id, and returns its
// new Source id.
func (s *FakeSource) CreateTask(_ context.Context, t model.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "create_task:"+t.Content)
	if s.reject[t.Content] {
		return "", fmt.Errorf("create %q: %w", t.Content, queue.ErrRejected)
	}

	src := model.SourceTask{}
	if t.Source != nil {
		src = *t.Source
	}
	src.ID = s.mint()
	src.ParentIDs = slices.Clone(src.ParentIDs)
	src.LastEdited = s.now()

	stored := cloneTask(t)
	stored.Source = &src
	stored.Target = nil
	s.tasks = append(s.tasks, stored)
	return src.ID, nil
}

// UpdateTask overwrites the synchronized fields of the addressed task.
func (s *FakeSource) UpdateTask(_ context.Context, t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := t.SourceID()
	s.calls = append(s.calls, "update_task:"+id)
	cur, err := s.writable(id)
	if err != nil {
		return err
	}
	cur.Content = t.Content
	cur.IsCompleted = t.IsCompleted
	cur.Scheduled = t.Scheduled
	cur.ScheduledWithTime = t.ScheduledWithTime
	cur.Deadline = t.Deadline
	cur.Labels = slices.Clone(t.Labels)
	if t.Source != nil {
		cur.Source.GoalID = t.Source.GoalID
		cur.Source.ProjectID = t.Source.ProjectID
		cur.Source.ParentIDs = slices.Clone(t.Source.ParentIDs)
	}
	cur.Source.LastEdited = s.now()
	return nil
}

// CompleteTask marks the addressed task done.
func (s *FakeSource) CompleteTask(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "complete_task:"+sourceID)
	cur, err := s.writable(sourceID)
	if err != nil {
		return err
	}
	cur.IsCompleted = true
	cur.Source.LastEdited = s.now()
	return nil
}

// CreateGoal adds a goal, keeping its sync id, to the addressed project and
// returns its id.
func (s *FakeSource) CreateGoal(_ context.Context, projectSourceID string, g model.Goal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "create_goal:"+projectSourceID)
	if s.reject[projectSourceID] {
		return "", fmt.Errorf("create goal in %s: %w", projectSourceID, queue.ErrRejected)
	}
	for i := range s.projects {
		p := &s.projects[i]
		if p.SourceID() != projectSourceID {
			continue
		}
		id := s.mint()
		g.Target = nil
		g.Source = &model.SourceGoal{ID: id, ProjectID: projectSourceID}
		p.Goals = append(p.Goals, g)
		return id, nil
	}
	return "", fmt.Errorf("project %s not found: %w", projectSourceID, queue.ErrRejected)
}

// SetTaskSyncID links the task to a Target id.
func (s *FakeSource) SetTaskSyncID(_ context.Context, sourceID, syncID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "link_task:"+sourceID)
	cur, err := s.writable(sourceID)
	if err != nil {
		return err
	}
	cur.SyncID = syncID
	return nil
}

// SetProjectSyncID links the project to a Target id.
func (s *FakeSource) SetProjectSyncID(_ context.Context, sourceID, syncID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "link_project:"+sourceID)
	if s.reject[sourceID] {
		return fmt.Errorf("link project %s: %w", sourceID, queue.ErrRejected)
	}
	for i := range s.projects {
		if s.projects[i].SourceID() == sourceID {
			s.projects[i].SyncID = syncID
			return nil
		}
	}
	return fmt.Errorf("project %s not found: %w", sourceID, queue.ErrRejected)
}

// SetGoalSyncID links the goal to a Target id.
func (s *FakeSource) SetGoalSyncID(_ context.Context, sourceID, syncID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "link_goal:"+sourceID)
	if s.reject[sourceID] {
		return fmt.Errorf("link goal %s: %w", sourceID, queue.ErrRejected)
	}
	for i := range s.projects {
		for j := range s.projects[i].Goals {
			g := &s.projects[i].Goals[j]
			if g.SourceID() == sourceID {
				g.SyncID = syncID
				return nil
			}
		}
	}
	return fmt.Errorf("goal %s not found: %w", sourceID, queue.ErrRejected)
}

func (s *FakeSource) mint() string {
	s.next++
	return fmt.Sprintf("src%d", s.next)
}

func (s *FakeSource) find(id string) *model.Task {
	for i := range s.tasks {
		if s.tasks[i].SourceID() == id {
			return &s.tasks[i]
		}
	}
	return nil
}

func (s *FakeSource) writable(id string) (*model.Task, error) {
	if s.reject[id] {
		return nil, fmt.Errorf("write %s: %w", id, queue.ErrRejected)
	}
	t := s.find(id)
	if t == nil {
		return nil, fmt.Errorf("task %s not found: %w", id, queue.ErrRejected)
	}
	return t, nil
}

func cloneTask(t model.Task) model.Task {
	t.Labels = slices.Clone(t.Labels)
	if t.Source != nil {
		src := *t.Source
		src.ParentIDs = slices.Clone(src.ParentIDs)
		src.AreaIDs = slices.Clone(src.AreaIDs)
		t.Source = &src
	}
	if t.Target != nil {
		tgt := *t.Target
		t.Target = &tgt
	}
	return t
}

func cloneProjects(in []model.Project) []model.Project {
	out := make([]model.Project, len(in))
	for i, p := range in {
		p.Goals = slices.Clone(p.Goals)
		out[i] = p
	}
	return out
}
