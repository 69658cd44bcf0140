package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/soimon/notion-todoist/internal/engine"
	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/queue"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/strategy"
	"github.com/soimon/notion-todoist/internal/testutil"
)

// Epoch is the fixed start time of every scenario.
var Epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Inbox is the id of the Target project every scenario starts with.
const Inbox = "inbox"

const dayLayout = "2006-01-02"

// Harness holds the stores of one scenario run.
type Harness struct {
	clock  *testutil.ManualClock
	source *testutil.FakeSource
	target *testutil.FakeTarget
	state  *testutil.MemoryState
	ids    queue.IDGenerator
	opts   []engine.Option
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh in-memory stores. A step that cannot be
// applied, or a pass that fails, aborts the run with an error; assertion
// failures are collected in the result instead.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, errMsg := range h.EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	clock := testutil.NewManualClock(Epoch)
	h := &Harness{
		clock:  clock,
		source: testutil.NewFakeSource(clock.Now),
		target: testutil.NewFakeTarget(clock.Now),
		state:  testutil.NewMemoryState(),
		ids:    queue.NewSequenceGenerator("tmp"),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	h.opts = []engine.Option{
		engine.WithClock(clock),
		engine.WithInbox(Inbox),
		engine.WithIDGenerator(h.ids),
		engine.WithLogger(h.logger),
	}
	if name := scenario.Options.TaskStrategy; name != "" {
		s, err := strategy.TaskStrategyByName(name)
		if err != nil {
			return nil, err
		}
		h.opts = append(h.opts, engine.WithTaskStrategy(s))
	}
	if name := scenario.Options.ProjectStrategy; name != "" {
		s, err := strategy.ProjectStrategyByName(name)
		if err != nil {
			return nil, err
		}
		h.opts = append(h.opts, engine.WithProjectStrategy(s))
	}
	if scenario.Options.Root != "" {
		h.opts = append(h.opts, engine.WithTargetRoot(scenario.Options.Root))
	}

	if err := h.seed(scenario); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return h, nil
}

func (h *Harness) seed(scenario *Scenario) error {
	h.target.SeedProject(snapshot.Project{ID: Inbox, Name: "Inbox"})
	for _, p := range scenario.Target.Projects {
		h.target.SeedProject(snapshot.Project{ID: p.ID, Name: p.Name, ParentID: p.Parent})
	}
	for _, it := range scenario.Target.Items {
		h.seedItem(it)
	}

	for _, t := range scenario.Source.Tasks {
		task := model.Task{Content: t.Content, IsCompleted: t.Completed, Labels: t.Labels}
		var err error
		if task.Scheduled, err = parseDay(t.Scheduled); err != nil {
			return err
		}
		if task.Deadline, err = parseDay(t.Deadline); err != nil {
			return err
		}
		h.source.SeedTask(task)
	}
	return nil
}

func (h *Harness) seedItem(it TargetItem) {
	project := it.Project
	if project == "" {
		project = Inbox
	}
	item := snapshot.Item{ProjectID: project, Content: it.Content, Checked: it.Checked, Labels: it.Labels}
	if it.Date != "" {
		item.Due = &snapshot.Due{Date: it.Date}
	}
	h.target.SeedItem(item)
}

// execute applies one step.
func (h *Harness) execute(ctx context.Context, step Step, result *Result) error {
	switch {
	case step.Pass != nil:
		return h.runPass(ctx, step.Pass.DryRun, result)
	case step.EditSource != nil:
		return h.editSource(*step.EditSource)
	case step.EditTarget != nil:
		return h.editTarget(*step.EditTarget)
	case step.AddTarget != nil:
		h.clock.Advance(30 * time.Second)
		h.seedItem(*step.AddTarget)
	case step.CompleteTarget != "":
		it, err := h.item(step.CompleteTarget)
		if err != nil {
			return err
		}
		h.clock.Advance(30 * time.Second)
		h.target.CompleteItem(it.ID)
	case step.DropSource != "":
		id, err := h.taskID(step.DropSource)
		if err != nil {
			return err
		}
		h.source.DropTask(id)
	case step.DeleteTarget != "":
		it, err := h.item(step.DeleteTarget)
		if err != nil {
			return err
		}
		h.clock.Advance(30 * time.Second)
		h.target.DeleteItem(it.ID)
	case step.Pause != nil:
		return h.state.SetPaused(ctx, *step.Pause)
	}
	return nil
}

func (h *Harness) runPass(ctx context.Context, dryRun bool, result *Result) error {
	h.clock.Advance(time.Minute)
	opts := append([]engine.Option{engine.WithDryRun(dryRun)}, h.opts...)
	res, err := engine.New(h.source, h.target, h.state, opts...).RunPass(ctx)
	if err != nil {
		return fmt.Errorf("pass %d: %w", len(result.Passes)+1, err)
	}
	result.AddPass(res)
	h.logger.Info("pass completed", "pass", len(result.Passes), "skipped", res.Skipped, "failed", res.Failed())
	return nil
}

func (h *Harness) editSource(e SourceEdit) error {
	id, err := h.taskID(e.Task)
	if err != nil {
		return err
	}
	scheduled, err := parseDay(e.Scheduled)
	if err != nil {
		return err
	}
	h.source.EditTask(id, func(t *model.Task) {
		if e.Content != "" {
			t.Content = e.Content
		}
		if e.Completed != nil {
			t.IsCompleted = *e.Completed
		}
		if scheduled != nil {
			t.Scheduled = scheduled
		}
		if e.Labels != nil {
			t.Labels = e.Labels
		}
	})
	return nil
}

func (h *Harness) editTarget(e TargetEdit) error {
	it, err := h.item(e.Item)
	if err != nil {
		return err
	}
	h.clock.Advance(30 * time.Second)
	h.target.EditItem(it.ID, func(it *snapshot.Item) {
		if e.Content != "" {
			it.Content = e.Content
		}
		if e.Date != "" {
			it.Due = &snapshot.Due{Date: e.Date}
		}
		if e.Labels != nil {
			it.Labels = e.Labels
		}
	})
	return nil
}

func (h *Harness) taskID(content string) (string, error) {
	if t, ok := h.task(content); ok {
		return t.SourceID(), nil
	}
	return "", fmt.Errorf("no source task %q", content)
}

func (h *Harness) task(content string) (model.Task, bool) {
	for _, t := range h.source.Tasks() {
		if t.Content == content {
			return t, true
		}
	}
	return model.Task{}, false
}

func (h *Harness) item(content string) (snapshot.Item, error) {
	it, ok := h.target.ItemByContent(content)
	if !ok {
		return snapshot.Item{}, fmt.Errorf("no target item %q", content)
	}
	return it, nil
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(dayLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return &d, nil
}
