package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/queue"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/stamp"
	"github.com/soimon/notion-todoist/internal/strategy"
	"github.com/soimon/notion-todoist/internal/testutil"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fixture wires an engine to in-memory stores. The Target starts with an
// "inbox" project.
type fixture struct {
	clock  *testutil.ManualClock
	source *testutil.FakeSource
	target *testutil.FakeTarget
	state  *testutil.MemoryState
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := testutil.NewManualClock(epoch)
	f := &fixture{
		clock:  clock,
		source: testutil.NewFakeSource(clock.Now),
		target: testutil.NewFakeTarget(clock.Now),
		state:  testutil.NewMemoryState(),
	}
	f.target.SeedProject(snapshot.Project{ID: "inbox", Name: "Inbox"})

	base := []Option{
		WithClock(clock),
		WithInbox("inbox"),
		WithIDGenerator(queue.NewSequenceGenerator("tmp")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.engine = New(f.source, f.target, f.state, append(base, opts...)...)
	return f
}

// run advances the clock a minute and runs one pass, which must succeed.
func (f *fixture) run(t *testing.T) *Result {
	t.Helper()
	f.clock.Advance(time.Minute)
	res, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	return res
}

func stampFor(sourceID, content string) string {
	return stamp.Stamp{SourceID: sourceID, ContentHash: stamp.Hash(stamp.Content{Text: content})}.String()
}

func TestRunPass_NewSourceTaskConverges(t *testing.T) {
	f := newFixture(t)
	id := f.source.SeedTask(model.Task{Content: "Buy milk"})

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Add)
	assert.True(t, res.Report.Source.Empty())
	assert.Zero(t, res.Failed())

	item, found := f.target.ItemByContent("Buy milk")
	require.True(t, found)
	assert.Equal(t, "inbox", item.ProjectID)
	notes := f.target.Notes(item.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, stampFor(id, "Buy milk"), notes[0].Content)

	task, _ := f.source.Task(id)
	assert.Equal(t, item.ID, task.SyncID, "the Source record is linked to the new item")

	b, err := f.state.LastSyncInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Boundary, b)
	assert.Equal(t, epoch.Add(time.Minute), b.Date)
	assert.NotEmpty(t, b.Token)

	res = f.run(t)
	assert.True(t, res.Report.Empty(), "second pass plans nothing")
	assert.Len(t, f.target.Batches(), 1)
}

func TestRunPass_Paused(t *testing.T) {
	f := newFixture(t)
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	require.NoError(t, f.state.SetPaused(context.Background(), true))

	res := f.run(t)
	assert.True(t, res.Skipped)
	assert.Empty(t, f.target.Batches())
	assert.Empty(t, f.source.Calls())
	assert.Zero(t, f.state.Writes())
}

func TestRunPass_DryRun(t *testing.T) {
	var out bytes.Buffer
	f := newFixture(t, WithDryRun(true), WithReport(&out))
	f.source.SeedTask(model.Task{Content: "Buy milk"})

	res := f.run(t)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Report.Target.Tasks.Add)
	assert.True(t, res.Boundary.IsZero())
	assert.Empty(t, f.target.Batches())
	assert.Zero(t, f.state.Writes())
	assert.Equal(t, "SOURCE\n  No changes\nTARGET\n  Tasks     add 1\n", out.String())
}

func TestRunPass_SourceEditOverwritesTarget(t *testing.T) {
	f := newFixture(t)
	id := f.source.SeedTask(model.Task{Content: "Buy milk"})
	f.run(t)

	f.source.EditTask(id, func(t *model.Task) { t.Content = "Buy bread" })
	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Update)

	item, found := f.target.ItemByContent("Buy bread")
	require.True(t, found)
	assert.Equal(t, stampFor(id, "Buy bread"), f.target.Notes(item.ID)[0].Content)

	res = f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_TargetEditWins(t *testing.T) {
	f := newFixture(t)
	id := f.source.SeedTask(model.Task{Content: "Buy milk"})
	f.run(t)

	item, _ := f.target.ItemByContent("Buy milk")
	f.clock.Advance(30 * time.Second)
	f.target.EditItem(item.ID, func(it *snapshot.Item) { it.Content = "Buy oat milk" })

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Source.Tasks.Update)
	assert.Zero(t, res.Report.Target.Tasks.Total())

	task, _ := f.source.Task(id)
	assert.Equal(t, "Buy oat milk", task.Content)
	assert.Equal(t, stampFor(id, "Buy oat milk"), f.target.Notes(item.ID)[0].Content, "the stamp is refreshed")

	res = f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_DivergedStampWinsWithoutLog(t *testing.T) {
	f := newFixture(t)
	id := f.source.SeedTask(model.Task{Content: "Buy milk", SyncID: "item1"})
	f.target.SeedItem(snapshot.Item{ID: "item1", ProjectID: "inbox", Content: "Buy oat milk"})
	f.target.SeedNote("item1", stampFor(id, "Buy milk"))
	require.NoError(t, f.state.SetLastSyncInfo(context.Background(), "tok-99", epoch.Add(time.Hour)))

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Source.Tasks.Update)

	task, _ := f.source.Task(id)
	assert.Equal(t, "Buy oat milk", task.Content)
}

func TestRunPass_TargetBornTaskReachesSource(t *testing.T) {
	f := newFixture(t)
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	f.run(t)

	f.clock.Advance(30 * time.Second)
	itemID := f.target.SeedItem(snapshot.Item{ProjectID: "inbox", Content: "Call mom"})

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Source.Tasks.Add)

	var born model.Task
	for _, task := range f.source.Tasks() {
		if task.Content == "Call mom" {
			born = task
		}
	}
	require.NotNil(t, born.Source)
	assert.Equal(t, itemID, born.SyncID)
	assert.Equal(t, stampFor(born.SourceID(), "Call mom"), f.target.Notes(itemID)[0].Content)

	res = f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_RecurringTargetTaskGetsSymbolOnSource(t *testing.T) {
	f := newFixture(t)
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	f.run(t)

	f.clock.Advance(30 * time.Second)
	f.target.SeedItem(snapshot.Item{
		ProjectID: "inbox",
		Content:   "Water plants",
		Due:       &snapshot.Due{Date: "2024-03-04", IsRecurring: true, String: "every monday"},
	})
	f.run(t)

	var born model.Task
	for _, task := range f.source.Tasks() {
		if task.SyncID != "" && task.Content != "Buy milk" {
			born = task
		}
	}
	assert.Equal(t, model.DefaultRecurringSymbol+" Water plants", born.Content)
	require.NotNil(t, born.Scheduled)
	assert.Equal(t, "2024-03-04", stamp.FormatDay(*born.Scheduled))

	res := f.run(t)
	assert.True(t, res.Report.Empty(), "the symbol is stripped before comparing")
}

func TestRunPass_TargetCompletionCompletesSource(t *testing.T) {
	f := newFixture(t)
	id := f.source.SeedTask(model.Task{Content: "Buy milk"})
	f.run(t)

	item, _ := f.target.ItemByContent("Buy milk")
	f.clock.Advance(30 * time.Second)
	f.target.CompleteItem(item.ID)

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Source.Tasks.Remove)
	task, _ := f.source.Task(id)
	assert.True(t, task.IsCompleted)

	res = f.run(t)
	assert.True(t, res.Report.Empty(), "a completed Source loner is left alone")
}

func TestRunPass_CompletedSourceTaskSettles(t *testing.T) {
	f := newFixture(t, WithTaskStrategy(strategy.FollowSourceTasks))
	f.source.SeedTask(model.Task{Content: "Done already", IsCompleted: true})
	id := f.source.SeedTask(model.Task{Content: "Buy milk"})

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Add, "only the open task is created")
	_, found := f.target.ItemByContent("Done already")
	assert.False(t, found)

	f.source.EditTask(id, func(task *model.Task) { task.IsCompleted = true })
	res = f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Update)
	item, _ := f.target.ItemByContent("Buy milk")
	assert.True(t, item.Checked)

	for range 3 {
		res = f.run(t)
		assert.True(t, res.Report.Empty())
	}
	assert.Len(t, f.target.State().Items, 1)
}

func TestRunPass_TargetBornSubtaskFollowsItsParent(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	f.clock.Advance(30 * time.Second)
	parentItem := f.target.SeedItem(snapshot.Item{ProjectID: "inbox", Content: "Trip"})
	childItem := f.target.SeedItem(snapshot.Item{ProjectID: "inbox", ParentID: parentItem, Content: "Book hotel"})

	res := f.run(t)
	assert.Equal(t, 2, res.Report.Source.Tasks.Add)
	assert.Zero(t, res.Deferred)
	assert.Equal(t, []string{"create_task:Trip", "create_task:Book hotel"}, f.source.Calls())

	var parent, child model.Task
	for _, task := range f.source.Tasks() {
		switch task.SyncID {
		case parentItem:
			parent = task
		case childItem:
			child = task
		}
	}
	require.NotNil(t, parent.Source)
	require.NotNil(t, child.Source)
	assert.Equal(t, []string{parent.SourceID()}, child.Source.ParentIDs)

	res = f.run(t)
	assert.True(t, res.Report.Empty())
	_, found := f.target.Item(childItem)
	assert.True(t, found, "the subtask stays on Target")
}

func TestRunPass_SourceRemovalDeletesTarget(t *testing.T) {
	f := newFixture(t)
	id := f.source.SeedTask(model.Task{Content: "Buy milk"})
	f.run(t)
	item, _ := f.target.ItemByContent("Buy milk")

	f.source.DropTask(id)
	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Remove)
	_, found := f.target.Item(item.ID)
	assert.False(t, found)
}

func TestRunPass_ProjectsAndGoals(t *testing.T) {
	f := newFixture(t, WithTargetRoot("root"))
	f.target.SeedProject(snapshot.Project{ID: "root", Name: "Projects"})
	f.source.SeedProject(model.Project{
		Name:         "Home",
		BlockedState: model.BlockedPaused,
		Source:       &model.SourceProject{ID: "p1"},
		Goals: []model.Goal{
			{Name: "Garden", Source: &model.SourceGoal{ID: "g1", ProjectID: "p1"}},
		},
	})
	f.source.SeedTask(model.Task{Content: "Plant roses", Source: &model.SourceTask{GoalID: "g1"}})

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Projects.Add)
	assert.Equal(t, 1, res.Report.Target.Goals.Add)
	assert.Zero(t, res.Report.Target.Tasks.Add)
	assert.Equal(t, 1, res.Deferred, "the task waits for its goal")

	projects := f.source.Projects()
	require.NotEmpty(t, projects[0].SyncID)
	require.NotEmpty(t, projects[0].Goals[0].SyncID)

	res = f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Add)
	assert.Zero(t, res.Report.Target.Projects.Total(), "an unchanged project is left alone")

	item, found := f.target.ItemByContent("Plant roses")
	require.True(t, found)
	assert.Equal(t, projects[0].SyncID, item.ProjectID)
	assert.Equal(t, projects[0].Goals[0].SyncID, item.SectionID)

	var home snapshot.Project
	for _, p := range f.target.State().Projects {
		if p.ID == projects[0].SyncID {
			home = p
		}
	}
	assert.Equal(t, model.IndicatorPaused+" Home", home.Name)

	res = f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_TargetSectionBecomesSourceGoal(t *testing.T) {
	f := newFixture(t, WithTargetRoot("root"), WithProjectStrategy(strategy.SnapshotProjects))
	f.target.SeedProject(snapshot.Project{ID: "root", Name: "Projects"})
	f.source.SeedProject(model.Project{Name: "Home", Source: &model.SourceProject{ID: "p1"}})
	f.run(t)

	projectID := f.source.Projects()[0].SyncID
	f.clock.Advance(30 * time.Second)
	sectionID := f.target.SeedSection(snapshot.Section{ProjectID: projectID, Name: "Kitchen"})

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Source.Goals.Add)
	goals := f.source.Projects()[0].Goals
	require.Len(t, goals, 1)
	assert.Equal(t, "Kitchen", goals[0].Name)
	assert.Equal(t, sectionID, goals[0].SyncID)

	res = f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_SubtasksAreCreatedParentFirst(t *testing.T) {
	f := newFixture(t)
	parent := f.source.SeedTask(model.Task{Content: "Plan trip"})
	f.source.SeedTask(model.Task{Content: "Book hotel", Source: &model.SourceTask{ParentIDs: []string{parent}}})

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Add)
	assert.Equal(t, 1, res.Deferred)

	res = f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Add)
	assert.Zero(t, res.Deferred)

	p, _ := f.target.ItemByContent("Plan trip")
	c, found := f.target.ItemByContent("Book hotel")
	require.True(t, found)
	assert.Equal(t, p.ID, c.ParentID)

	res = f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_DuplicateStampsKeepOneTask(t *testing.T) {
	f := newFixture(t)
	id := f.source.SeedTask(model.Task{Content: "Buy milk"})
	older := f.target.SeedItem(snapshot.Item{ProjectID: "inbox", Content: "Buy milk"})
	f.target.SeedNote(older, stampFor(id, "Buy milk"))
	f.clock.Advance(time.Second)
	newer := f.target.SeedItem(snapshot.Item{ProjectID: "inbox", Content: "Buy milk"})
	f.target.SeedNote(newer, stampFor(id, "Buy milk"))

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Tasks.Remove)
	assert.Zero(t, res.Report.Target.Tasks.Add)

	_, found := f.target.Item(older)
	assert.False(t, found)
	task, _ := f.source.Task(id)
	assert.Equal(t, newer, task.SyncID, "the sync id is recovered from the stamp")
}

func TestRunPass_LabelsAreMirrored(t *testing.T) {
	f := newFixture(t, WithLabelColor("charcoal"))
	f.target.SeedLabel("home")
	f.source.SeedTask(model.Task{Content: "Buy milk", Labels: []string{"errand", "home"}})

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Labels.Add)

	var added []map[string]any
	for _, c := range f.target.Commands() {
		if c.Type == queue.LabelAdd {
			added = append(added, c.Args)
		}
	}
	require.Len(t, added, 1)
	assert.Equal(t, "errand", added[0]["name"])
	assert.Equal(t, "charcoal", added[0]["color"])

	item, _ := f.target.ItemByContent("Buy milk")
	assert.ElementsMatch(t, []string{"errand", "home"}, item.Labels)
}

func TestRunPass_LabelOptionsKeepKindColorAndOrder(t *testing.T) {
	f := newFixture(t, WithLabelColor("charcoal"), WithVerbColor("grape"))
	for _, l := range []model.Label{
		{Name: "Fix", Kind: model.LabelVerb, Color: "red"},
		{Name: "Buy", Kind: model.LabelVerb, Color: "blue"},
		{Name: "Call", Kind: model.LabelVerb, Color: "blue"},
		{Name: "attic", Kind: model.LabelPlace, Color: "green"},
		{Name: "home", Kind: model.LabelPlace, Color: "green"},
	} {
		f.source.SeedLabel(l)
	}
	fix := f.target.SeedLabel("Fix")

	res := f.run(t)
	assert.Equal(t, 4, res.Report.Target.Labels.Add)
	assert.Equal(t, 1, res.Report.Target.Labels.Update)

	var added []map[string]any
	var updated map[string]any
	for _, c := range f.target.Commands() {
		switch c.Type {
		case queue.LabelAdd:
			added = append(added, c.Args)
		case queue.LabelUpdate:
			updated = c.Args
		}
	}
	require.Len(t, added, 4)
	want := []struct {
		name  string
		color string
		order int
	}{
		{"Call", "grape", 0},
		{"Buy", "grape", 1},
		{"home", "charcoal", 3},
		{"attic", "charcoal", 4},
	}
	for i, w := range want {
		assert.Equal(t, w.name, added[i]["name"])
		assert.Equal(t, w.color, added[i]["color"])
		assert.EqualValues(t, w.order, added[i]["item_order"])
	}
	require.NotNil(t, updated)
	assert.Equal(t, fix, updated["id"])
	assert.Equal(t, "grape", updated["color"])
	assert.EqualValues(t, 2, updated["item_order"])

	res = f.run(t)
	assert.Zero(t, res.Report.Target.Labels.Total(), "mirrored labels settle")
}

func TestRunPass_TargetFollowsSourceOrder(t *testing.T) {
	f := newFixture(t, WithTargetRoot("root"))
	f.target.SeedProject(snapshot.Project{ID: "root", Name: "Projects"})
	b := f.target.SeedProject(snapshot.Project{Name: "Work", ParentID: "root", ChildOrder: 1})
	a := f.target.SeedProject(snapshot.Project{Name: "Home", ParentID: "root", ChildOrder: 2})
	two := f.target.SeedSection(snapshot.Section{ProjectID: a, Name: "Kitchen", SectionOrder: 1})
	one := f.target.SeedSection(snapshot.Section{ProjectID: a, Name: "Garden", SectionOrder: 2})
	f.source.SeedProject(model.Project{
		Name:   "Home",
		SyncID: a,
		Source: &model.SourceProject{ID: "p1"},
		Goals: []model.Goal{
			{Name: "Garden", SyncID: one, Source: &model.SourceGoal{ID: "g1", ProjectID: "p1"}},
			{Name: "Kitchen", SyncID: two, Source: &model.SourceGoal{ID: "g2", ProjectID: "p1"}},
		},
	})
	f.source.SeedProject(model.Project{Name: "Work", SyncID: b, Source: &model.SourceProject{ID: "p2"}})

	f.run(t)
	var kinds []queue.CommandType
	for _, c := range f.target.Commands() {
		kinds = append(kinds, c.Type)
	}
	assert.Equal(t, []queue.CommandType{queue.ProjectReorder, queue.SectionReorder}, kinds)

	order := make(map[string]int)
	for _, p := range f.target.State().Projects {
		order[p.ID] = p.ChildOrder
	}
	for _, s := range f.target.State().Sections {
		order[s.ID] = s.SectionOrder
	}
	assert.Less(t, order[a], order[b])
	assert.Less(t, order[one], order[two])

	sent := len(f.target.Commands())
	f.run(t)
	assert.Len(t, f.target.Commands(), sent, "a settled order sends nothing")
}

func TestRunPass_LinkedProjectAndSectionMoveBack(t *testing.T) {
	f := newFixture(t, WithTargetRoot("root"))
	f.target.SeedProject(snapshot.Project{ID: "root", Name: "Projects"})
	f.target.SeedProject(snapshot.Project{ID: "archive", Name: "Archive"})
	home := f.target.SeedProject(snapshot.Project{Name: "Home", ParentID: "archive"})
	work := f.target.SeedProject(snapshot.Project{Name: "Work", ParentID: "root"})
	garden := f.target.SeedSection(snapshot.Section{ProjectID: work, Name: "Garden"})
	f.source.SeedProject(model.Project{
		Name:   "Home",
		SyncID: home,
		Source: &model.SourceProject{ID: "p1"},
		Goals: []model.Goal{
			{Name: "Garden", SyncID: garden, Source: &model.SourceGoal{ID: "g1", ProjectID: "p1"}},
		},
	})
	f.source.SeedProject(model.Project{Name: "Work", SyncID: work, Source: &model.SourceProject{ID: "p2"}})

	res := f.run(t)
	assert.Equal(t, 1, res.Report.Target.Projects.Update)
	assert.Equal(t, 1, res.Report.Target.Goals.Update)
	assert.Zero(t, res.Report.Target.Projects.Add+res.Report.Target.Projects.Remove)
	assert.Zero(t, res.Report.Target.Goals.Add+res.Report.Target.Goals.Remove)

	state := f.target.State()
	for _, p := range state.Projects {
		if p.ID == home {
			assert.Equal(t, "root", p.ParentID)
		}
	}
	for _, s := range state.Sections {
		if s.ID == garden {
			assert.Equal(t, home, s.ProjectID)
		}
	}

	res = f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_SourceWebLinksBecomeAppLinks(t *testing.T) {
	f := newFixture(t)
	f.source.SeedTask(model.Task{Content: "Read https://www.notion.so/Plan-0123abcd"})

	f.run(t)
	_, found := f.target.ItemByContent("Read notion://notion.so/Plan-0123abcd")
	assert.True(t, found)

	res := f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_ExtraStampNotesAreDeleted(t *testing.T) {
	f := newFixture(t)
	id := f.source.SeedTask(model.Task{Content: "Buy milk"})
	item := f.target.SeedItem(snapshot.Item{ProjectID: "inbox", Content: "Buy milk"})
	first := f.target.SeedNote(item, stampFor(id, "Buy milk"))
	extra := f.target.SeedNote(item, stampFor(id, "Buy milk"))

	f.run(t)
	notes := f.target.Notes(item)
	require.Len(t, notes, 1)
	assert.Equal(t, first, notes[0].ID)
	assert.NotEqual(t, extra, notes[0].ID)
}

func TestRunPass_PostponedSymbolOnTarget(t *testing.T) {
	f := newFixture(t, WithSymbols("R", "P"))
	f.source.SeedTask(model.Task{Content: "Renew passport", Source: &model.SourceTask{Postponed: true}})

	f.run(t)
	_, found := f.target.ItemByContent("P Renew passport")
	assert.True(t, found)

	res := f.run(t)
	assert.True(t, res.Report.Empty())
}

func TestRunPass_RejectedMutationsDoNotAbort(t *testing.T) {
	f := newFixture(t)
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	f.target.RejectCommands(queue.NoteAdd)

	res := f.run(t)
	require.Len(t, res.TargetFailures, 1)
	assert.Equal(t, queue.NoteAdd, res.TargetFailures[0].Command.Type)
	assert.Equal(t, 1, res.Failed())
	assert.False(t, res.Boundary.IsZero())
}

func TestRunPass_Errors(t *testing.T) {
	outage := errors.New("503 service unavailable")

	t.Run("source fetch", func(t *testing.T) {
		f := newFixture(t)
		f.source.FetchErr = outage
		_, err := f.engine.RunPass(context.Background())
		require.Error(t, err)
		assert.True(t, IsTransient(err))
		assert.ErrorIs(t, err, outage)
		assert.Zero(t, f.state.Writes())
	})

	t.Run("target fetch", func(t *testing.T) {
		f := newFixture(t)
		f.target.FetchErr = outage
		_, err := f.engine.RunPass(context.Background())
		assert.True(t, IsTransient(err))
	})

	t.Run("target commit", func(t *testing.T) {
		f := newFixture(t)
		f.source.SeedTask(model.Task{Content: "Buy milk"})
		f.target.ExecuteErr = outage
		res, err := f.engine.RunPass(context.Background())
		require.Error(t, err)
		assert.True(t, IsCommitFailure(err))
		assert.NotNil(t, res)
		assert.Zero(t, f.state.Writes(), "the boundary stays put")
	})

	t.Run("duplicate sync id", func(t *testing.T) {
		f := newFixture(t)
		f.source.SeedTask(model.Task{Content: "a", SyncID: "x"})
		f.source.SeedTask(model.Task{Content: "b", SyncID: "x"})
		_, err := f.engine.RunPass(context.Background())
		require.Error(t, err)
		assert.True(t, IsMalformed(err))
		var se *SyncError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, ErrCodeMalformedData, se.Code)
		assert.Empty(t, f.target.Batches(), "nothing is written")
	})

	t.Run("ambiguous origin", func(t *testing.T) {
		f := newFixture(t)
		f.source.SeedTask(model.Task{Content: "a", Target: &model.TargetTask{}})
		_, err := f.engine.RunPass(context.Background())
		var se *SyncError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, ErrCodeAmbiguousDiscriminator, se.Code)
		assert.True(t, IsMalformed(err))
	})
}

func TestRehash(t *testing.T) {
	f := newFixture(t)
	item := f.target.SeedItem(snapshot.Item{ProjectID: "inbox", Content: "Buy milk"})
	note := f.target.SeedNote(item, stampFor("src1", "Buy old milk"))
	fresh := f.target.SeedItem(snapshot.Item{ProjectID: "inbox", Content: "Call mom"})
	f.target.SeedNote(fresh, stampFor("src2", "Call mom"))

	n, err := f.engine.Rehash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	notes := f.target.Notes(item)
	require.Len(t, notes, 1)
	assert.Equal(t, note, notes[0].ID)
	assert.Equal(t, stampFor("src1", "Buy milk"), notes[0].Content)
}

func TestResult_Failed(t *testing.T) {
	r := &Result{
		TargetFailures: []queue.Failure{{}},
		SourceFailures: []queue.SourceFailure{{}, {}},
	}
	assert.Equal(t, 3, r.Failed())
}
