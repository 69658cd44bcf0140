package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/queue"
	"github.com/soimon/notion-todoist/internal/snapshot"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestManualClock(t *testing.T) {
	c := NewManualClock(epoch)
	assert.Equal(t, epoch, c.Now())
	assert.Equal(t, epoch.Add(time.Hour), c.Advance(time.Hour))
	assert.Equal(t, epoch.Add(time.Hour), c.Now())
}

func TestMemoryState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryState()

	b, err := s.LastSyncInfo(ctx)
	require.NoError(t, err)
	assert.True(t, b.IsZero())

	require.NoError(t, s.SetLastSyncInfo(ctx, "tok-3", epoch))
	b, _ = s.LastSyncInfo(ctx)
	assert.Equal(t, snapshot.Boundary{Token: "tok-3", Date: epoch}, b)
	assert.Equal(t, 1, s.Writes())

	require.NoError(t, s.SetPaused(ctx, true))
	paused, _ := s.IsPaused(ctx)
	assert.True(t, paused)
}

func TestFakeTarget_FullAndIncrementalFetch(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(epoch)
	f := NewFakeTarget(clock.Now)
	inbox := f.SeedProject(snapshot.Project{ID: "inbox", Name: "Inbox"})
	done := f.SeedItem(snapshot.Item{ProjectID: inbox, Content: "done"})
	f.CompleteItem(done)

	full, token, err := f.Fetch(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, "tok-3", token)
	assert.Len(t, full.Projects, 1)
	assert.Empty(t, full.Items, "checked items are left out of a full fetch")

	open := f.SeedItem(snapshot.Item{ProjectID: inbox, Content: "open"})
	recent, next, err := f.Fetch(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "tok-4", next)
	require.Len(t, recent.Items, 1)
	assert.Equal(t, open, recent.Items[0].ID)
	assert.Empty(t, recent.Projects)

	since, _, err := f.Fetch(ctx, "tok-0")
	require.NoError(t, err)
	assert.Len(t, since.Items, 2, "incremental fetches include checked items")

	_, _, err = f.Fetch(ctx, "bogus")
	assert.Error(t, err)
}

func TestFakeTarget_ExecuteResolvesTempIDs(t *testing.T) {
	ctx := context.Background()
	f := NewFakeTarget(NewManualClock(epoch).Now)
	f.SeedProject(snapshot.Project{ID: "inbox"})

	q := queue.New(f, queue.WithIDGenerator(queue.NewSequenceGenerator("q")), queue.WithBatchSize(2))
	parent := q.AddItem(map[string]any{"content": "parent", "project_id": "inbox", "labels": []string{"home"}})
	q.AddNote(parent, "note")
	child := q.AddItem(map[string]any{"content": "child", "parent_id": parent, "due": map[string]any{"date": "2024-03-02"}})
	q.CloseItem(child)
	require.NoError(t, q.Commit(ctx))

	assert.Empty(t, q.Failures())
	require.Len(t, f.Batches(), 2)

	p, found := f.ItemByContent("parent")
	require.True(t, found)
	assert.Equal(t, []string{"home"}, p.Labels)
	require.Len(t, f.Notes(p.ID), 1)

	c, found := f.Item(q.Resolve(child))
	require.True(t, found)
	assert.Equal(t, p.ID, c.ParentID)
	assert.Equal(t, "inbox", c.ProjectID)
	assert.True(t, c.Checked)
	require.NotNil(t, c.Due)
	assert.Equal(t, "2024-03-02", c.Due.Date)
	assert.Equal(t, "tok-3", q.SyncToken())
}

func TestFakeTarget_RejectsUnknownIDs(t *testing.T) {
	ctx := context.Background()
	f := NewFakeTarget(nil)
	f.RejectCommands(queue.LabelAdd)

	q := queue.New(f, queue.WithIDGenerator(queue.NewSequenceGenerator("q")))
	q.UpdateItem("missing", map[string]any{"content": "x"})
	q.AddLabel(map[string]any{"name": "home"})
	require.NoError(t, q.Commit(ctx))

	failures := q.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, CodeNotFound, failures[0].Code)
	assert.Equal(t, CodeRejected, failures[1].Code)
}

func TestFakeTarget_DeleteCascadesToChildren(t *testing.T) {
	f := NewFakeTarget(nil)
	f.SeedProject(snapshot.Project{ID: "inbox"})
	parent := f.SeedItem(snapshot.Item{ProjectID: "inbox", Content: "parent"})
	child := f.SeedItem(snapshot.Item{ProjectID: "inbox", ParentID: parent, Content: "child"})

	f.DeleteItem(parent)

	_, found := f.Item(child)
	assert.False(t, found)
}

func TestFakeSource_Writes(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(epoch)
	s := NewFakeSource(clock.Now)
	s.SeedProject(model.Project{Name: "Home", Source: &model.SourceProject{ID: "p1"}})
	id := s.SeedTask(model.Task{Content: "Buy milk"})

	clock.Advance(time.Minute)
	require.NoError(t, s.SetTaskSyncID(ctx, id, "tgt1"))
	require.NoError(t, s.CompleteTask(ctx, id))
	created, err := s.CreateTask(ctx, model.Task{SyncID: "tgt2", Content: "Call mom", Target: &model.TargetTask{}})
	require.NoError(t, err)
	goal, err := s.CreateGoal(ctx, "p1", model.Goal{Name: "Garden"})
	require.NoError(t, err)
	require.NoError(t, s.SetGoalSyncID(ctx, goal, "tgt9"))

	task, found := s.Task(id)
	require.True(t, found)
	assert.Equal(t, "tgt1", task.SyncID)
	assert.True(t, task.IsCompleted)
	assert.Equal(t, epoch.Add(time.Minute), task.Source.LastEdited)

	born, _ := s.Task(created)
	assert.Equal(t, "tgt2", born.SyncID)
	assert.Nil(t, born.Target)

	s.DropTask(created)
	_, found = s.Task(created)
	assert.False(t, found)

	projects := s.Projects()
	require.Len(t, projects[0].Goals, 1)
	assert.Equal(t, "tgt9", projects[0].Goals[0].SyncID)

	assert.Equal(t, []string{
		"link_task:" + id,
		"complete_task:" + id,
		"create_task:Call mom",
		"create_goal:p1",
		"link_goal:" + goal,
	}, s.Calls())
}

func TestFakeSource_Reject(t *testing.T) {
	ctx := context.Background()
	s := NewFakeSource(nil)
	id := s.SeedTask(model.Task{Content: "x"})
	s.Reject(id)

	err := s.CompleteTask(ctx, id)
	assert.ErrorIs(t, err, queue.ErrRejected)

	err = s.UpdateTask(ctx, model.Task{Source: &model.SourceTask{ID: "nope"}})
	assert.ErrorIs(t, err, queue.ErrRejected)
}
