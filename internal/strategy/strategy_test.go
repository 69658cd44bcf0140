package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soimon/notion-todoist/internal/diff"
	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/stamp"
)

func srcTask(syncID, content string) model.Task {
	return model.Task{
		SyncID:  syncID,
		Content: content,
		Source:  &model.SourceTask{ID: "page-" + content},
	}
}

func tgtTask(syncID, content string) model.Task {
	return model.Task{
		SyncID:  syncID,
		Content: content,
		Target:  &model.TargetTask{ProjectID: "p"},
	}
}

func boundaryWith(tasks snapshot.Changes) *Boundary {
	return &Boundary{
		Date:     time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Tasks:    tasks,
		Sections: snapshot.Changes{},
	}
}

func ids(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.SyncID)
	}
	return out
}

func TestFollowSourceTasks_Converges(t *testing.T) {
	source := []model.Task{
		srcTask("", "Buy milk"),
		srcTask("t1", "Call mom"),
		srcTask("t2", "Pay rent"),
	}
	target := []model.Task{
		tgtTask("t1", "Call mum"),
		tgtTask("t2", "Pay rent"),
		tgtTask("t3", "Orphan"),
	}

	plan, err := FollowSourceTasks(source, target, nil)
	require.NoError(t, err)

	assert.True(t, plan.Source.Empty())
	require.Len(t, plan.Target.Add, 1)
	assert.Equal(t, "Buy milk", plan.Target.Add[0].Content)
	assert.Equal(t, []string{"t3"}, ids(plan.Target.Remove))
	require.Len(t, plan.Target.Update, 1)

	up := plan.Target.Update[0]
	assert.Equal(t, "Call mom", up.Content)
	require.NotNil(t, up.Target, "update keeps the Target address")
	require.NotNil(t, up.Source)
	assert.Equal(t, "p", up.Target.ProjectID)
}

func TestFollowSourceTasks_LabelsComparedAsSet(t *testing.T) {
	s := srcTask("t1", "x")
	s.Labels = []string{"b", "a"}
	g := tgtTask("t1", "x")
	g.Labels = []string{"a", "b"}

	plan, err := FollowSourceTasks([]model.Task{s}, []model.Task{g}, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Target.Update)

	g.Labels = []string{"a"}
	plan, err = FollowSourceTasks([]model.Task{s}, []model.Task{g}, nil)
	require.NoError(t, err)
	assert.Len(t, plan.Target.Update, 1)
}

func TestFollowSourceTasks_DuplicateIdentityFails(t *testing.T) {
	source := []model.Task{srcTask("t1", "a"), srcTask("t1", "b")}

	_, err := FollowSourceTasks(source, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, diff.ErrDuplicateIdentity)
}

func TestSnapshotTasks_NilBoundaryFollowsSource(t *testing.T) {
	source := []model.Task{srcTask("t1", "new")}
	target := []model.Task{tgtTask("t1", "old"), tgtTask("t2", "extra")}

	want, err := FollowSourceTasks(source, target, nil)
	require.NoError(t, err)
	got, err := SnapshotTasks(source, target, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshotTasks_TargetEditWins(t *testing.T) {
	changes := snapshot.Changes{Updated: snapshot.IDSet{"t1": {}}}
	source := []model.Task{srcTask("t1", "source text")}
	target := []model.Task{tgtTask("t1", "target text")}

	plan, err := SnapshotTasks(source, target, boundaryWith(changes))
	require.NoError(t, err)

	assert.True(t, plan.Target.Empty())
	require.Len(t, plan.Source.Update, 1)
	up := plan.Source.Update[0]
	assert.Equal(t, "target text", up.Content)
	require.NotNil(t, up.Source)
	assert.Equal(t, "page-source text", up.Source.ID)
}

func TestSnapshotTasks_SourceWinsWithoutTargetEdit(t *testing.T) {
	source := []model.Task{srcTask("t1", "source text")}
	target := []model.Task{tgtTask("t1", "target text")}

	plan, err := SnapshotTasks(source, target, boundaryWith(snapshot.Changes{}))
	require.NoError(t, err)

	assert.True(t, plan.Source.Empty())
	require.Len(t, plan.Target.Update, 1)
	assert.Equal(t, "source text", plan.Target.Update[0].Content)
}

func TestSnapshotTasks_DivergedStampCountsAsTargetEdit(t *testing.T) {
	source := []model.Task{srcTask("t1", "source text")}
	g := tgtTask("t1", "edited on target")
	g.Target.StampHash = stamp.Hash(stamp.Content{Text: "source text"})
	g.Target.ContentHash = stamp.Hash(stamp.Content{Text: "edited on target"})

	plan, err := SnapshotTasks(source, []model.Task{g}, boundaryWith(snapshot.Changes{}))
	require.NoError(t, err)

	require.Len(t, plan.Source.Update, 1)
	assert.Equal(t, "edited on target", plan.Source.Update[0].Content)
}

func TestSnapshotTasks_Loners(t *testing.T) {
	changes := snapshot.Changes{
		Added:     snapshot.IDSet{"new-on-target": {}},
		Deleted:   snapshot.IDSet{"deleted-on-target": {}},
		Completed: snapshot.IDSet{"done-on-target": {}},
	}
	finished := srcTask("", "finished")
	finished.IsCompleted = true

	source := []model.Task{
		srcTask("", "fresh"),
		srcTask("deleted-on-target", "gone"),
		srcTask("done-on-target", "done"),
		finished,
	}
	target := []model.Task{
		tgtTask("new-on-target", "captured on phone"),
		tgtTask("stale", "left over"),
	}

	plan, err := SnapshotTasks(source, target, boundaryWith(changes))
	require.NoError(t, err)

	assert.Equal(t, []string{"new-on-target"}, ids(plan.Source.Add))
	assert.Equal(t, []string{"deleted-on-target", "done-on-target"}, ids(plan.Source.Remove))
	assert.Equal(t, []string{"stale"}, ids(plan.Target.Remove))
	require.Len(t, plan.Target.Add, 1)
	assert.Equal(t, "fresh", plan.Target.Add[0].Content)
}

func TestNoOp(t *testing.T) {
	tp, err := NoOpTasks([]model.Task{srcTask("", "x")}, nil, nil)
	require.NoError(t, err)
	assert.True(t, tp.Source.Empty())
	assert.True(t, tp.Target.Empty())

	pp, err := NoOpProjects([]model.Project{srcProject("", "x")}, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, pp.Source.Len()+pp.Target.Len())
}

func srcProject(syncID, name string, goals ...model.Goal) model.Project {
	return model.Project{
		SyncID: syncID,
		Name:   name,
		Goals:  goals,
		Source: &model.SourceProject{ID: "page-" + name},
	}
}

func tgtProject(syncID, name string, goals ...model.Goal) model.Project {
	return model.Project{
		SyncID: syncID,
		Name:   name,
		Goals:  goals,
		Target: &model.TargetProject{ParentID: "root"},
	}
}

func srcGoal(syncID, name string) model.Goal {
	return model.Goal{SyncID: syncID, Name: name, Source: &model.SourceGoal{ID: "goal-" + name}}
}

func tgtGoal(syncID, name string) model.Goal {
	return model.Goal{SyncID: syncID, Name: name, Target: &model.TargetGoal{ProjectID: "p1"}}
}

func TestFollowSourceProjects(t *testing.T) {
	source := []model.Project{
		srcProject("", "New project"),
		srcProject("p1", "Home", srcGoal("", "Garden"), srcGoal("g1", "Kitchen")),
		srcProject("p2", "Renamed"),
	}
	target := []model.Project{
		tgtProject("p1", "Home", tgtGoal("g1", "Kitchen"), tgtGoal("g2", "Dropped")),
		tgtProject("p2", "Work"),
		tgtProject("p3", "Gone"),
	}

	plan, err := FollowSourceProjects(source, target, nil)
	require.NoError(t, err)

	require.Len(t, plan.Target.Add, 1)
	assert.Equal(t, "New project", plan.Target.Add[0].Name)
	require.Len(t, plan.Target.Remove, 1)
	assert.Equal(t, "p3", plan.Target.Remove[0].SyncID)

	require.Len(t, plan.Target.Update, 2)
	home := plan.Target.Update[0]
	assert.Equal(t, "p1", home.Project.SyncID)
	assert.True(t, home.Goals.OnlySyncGoals)
	require.Len(t, home.Goals.Add, 1)
	assert.Equal(t, "Garden", home.Goals.Add[0].Name)
	require.Len(t, home.Goals.Remove, 1)
	assert.Equal(t, "g2", home.Goals.Remove[0].SyncID)

	renamed := plan.Target.Update[1]
	assert.False(t, renamed.Goals.OnlySyncGoals)
	assert.Equal(t, "Renamed", renamed.Project.Name)
	require.NotNil(t, renamed.Project.Target)

	// 1 add + 1 remove + (2 goal ops) + (1 project update)
	assert.Equal(t, 5, plan.Target.Len())
	assert.Zero(t, plan.Source.Len())
}

func TestFollowSourceProjects_UnchangedPairDropped(t *testing.T) {
	source := []model.Project{srcProject("p1", "Home", srcGoal("g1", "Kitchen"))}
	target := []model.Project{tgtProject("p1", "Home", tgtGoal("g1", "Kitchen"))}

	plan, err := FollowSourceProjects(source, target, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Target.Update)
}

func TestPreferSourceProjects_IgnoresGoalOnlyChanges(t *testing.T) {
	source := []model.Project{srcProject("p1", "Home", srcGoal("", "Garden"))}
	target := []model.Project{tgtProject("p1", "Home")}

	plan, err := PreferSourceProjects(nil)(source, target, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Target.Update)

	source[0].Name = "House"
	plan, err = PreferSourceProjects(FollowSourceGoals)(source, target, nil)
	require.NoError(t, err)
	require.Len(t, plan.Target.Update, 1)
	assert.Len(t, plan.Target.Update[0].Goals.Add, 1)
}

func TestSnapshotProjects_TargetGoalPushedToSource(t *testing.T) {
	b := &Boundary{
		Date:     time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Sections: snapshot.Changes{Added: snapshot.IDSet{"g-new": {}}},
	}
	source := []model.Project{srcProject("p1", "Home")}
	target := []model.Project{tgtProject("p1", "Home", tgtGoal("g-new", "Attic"), tgtGoal("g-old", "Cellar"))}

	plan, err := SnapshotProjects(source, target, b)
	require.NoError(t, err)

	require.Len(t, plan.Source.Update, 1)
	su := plan.Source.Update[0]
	assert.True(t, su.Goals.OnlySyncGoals)
	require.Len(t, su.Goals.Add, 1)
	assert.Equal(t, "Attic", su.Goals.Add[0].Name)
	require.NotNil(t, su.Project.Source)
	assert.Equal(t, "page-Home", su.Project.Source.ID)

	require.Len(t, plan.Target.Update, 1)
	tu := plan.Target.Update[0]
	require.Len(t, tu.Goals.Remove, 1)
	assert.Equal(t, "g-old", tu.Goals.Remove[0].SyncID)
}

func TestStrategyByName(t *testing.T) {
	for _, name := range []string{NameNoOp, NameFollowSource, NameSnapshot} {
		s, err := TaskStrategyByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}
	for _, name := range []string{NameNoOp, NameFollowSource, NamePreferSource, NameSnapshot} {
		s, err := ProjectStrategyByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}

	_, err := TaskStrategyByName(NamePreferSource)
	assert.Error(t, err)
	_, err = ProjectStrategyByName("bogus")
	assert.Error(t, err)
}

func TestNewBoundary(t *testing.T) {
	assert.Nil(t, NewBoundary(snapshot.Boundary{}, nil))

	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	later := date.Add(time.Hour)
	recent := &snapshot.Snapshot{Items: []snapshot.Item{{ID: "i", AddedAt: &later}}}

	b := NewBoundary(snapshot.Boundary{Token: "tok", Date: date}, recent)
	require.NotNil(t, b)
	assert.True(t, b.Tasks.Added.Has("i"))
}
