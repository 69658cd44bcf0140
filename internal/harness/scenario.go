package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a reconciliation scenario: seeded stores, a sequence of
// user edits and passes, and assertions on the final stores.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Options Options    `yaml:"options,omitempty"`
	Source  SourceSeed `yaml:"source,omitempty"`
	Target  TargetSeed `yaml:"target,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Options configures the engine under test.
type Options struct {
	TaskStrategy    string `yaml:"task_strategy,omitempty"`
	ProjectStrategy string `yaml:"project_strategy,omitempty"`
	// Root is the Target project mirroring Source projects.
	Root string `yaml:"root,omitempty"`
}

// SourceSeed lists the Source records present before the first step.
type SourceSeed struct {
	Tasks []SourceTask `yaml:"tasks,omitempty"`
}

// SourceTask is a seeded Source task.
type SourceTask struct {
	Content   string   `yaml:"content"`
	Completed bool     `yaml:"completed,omitempty"`
	Scheduled string   `yaml:"scheduled,omitempty"`
	Deadline  string   `yaml:"deadline,omitempty"`
	Labels    []string `yaml:"labels,omitempty"`
}

// TargetSeed lists the Target records present before the first step.
type TargetSeed struct {
	Projects []TargetProject `yaml:"projects,omitempty"`
	Items    []TargetItem    `yaml:"items,omitempty"`
}

// TargetProject is a seeded Target project.
type TargetProject struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
}

// TargetItem is a seeded Target item.
type TargetItem struct {
	Content string   `yaml:"content"`
	Project string   `yaml:"project,omitempty"`
	Checked bool     `yaml:"checked,omitempty"`
	Date    string   `yaml:"date,omitempty"`
	Labels  []string `yaml:"labels,omitempty"`
}

// Step is one scenario step. Exactly one field is set.
type Step struct {
	Pass           *PassStep   `yaml:"pass,omitempty"`
	EditSource     *SourceEdit `yaml:"edit_source,omitempty"`
	EditTarget     *TargetEdit `yaml:"edit_target,omitempty"`
	AddTarget      *TargetItem `yaml:"add_target,omitempty"`
	CompleteTarget string      `yaml:"complete_target,omitempty"`
	DropSource     string      `yaml:"drop_source,omitempty"`
	DeleteTarget   string      `yaml:"delete_target,omitempty"`
	Pause          *bool       `yaml:"pause,omitempty"`
}

// PassStep runs one pass.
type PassStep struct {
	DryRun bool `yaml:"dry_run,omitempty"`
}

// SourceEdit changes the Source task whose content is Task.
type SourceEdit struct {
	Task      string   `yaml:"task"`
	Content   string   `yaml:"content,omitempty"`
	Completed *bool    `yaml:"completed,omitempty"`
	Scheduled string   `yaml:"scheduled,omitempty"`
	Labels    []string `yaml:"labels,omitempty"`
}

// TargetEdit changes the Target item whose content is Item.
type TargetEdit struct {
	Item    string   `yaml:"item"`
	Content string   `yaml:"content,omitempty"`
	Date    string   `yaml:"date,omitempty"`
	Labels  []string `yaml:"labels,omitempty"`
}

// Assertion validates the final stores or a pass report.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Content addresses a task or item.
	Content string `yaml:"content,omitempty"`

	// Pass selects a report, 1-based; 0 is the last pass.
	Pass int `yaml:"pass,omitempty"`

	// Action is the Source write kind counted by call_count.
	Action string `yaml:"action,omitempty"`

	// Count is the expected number of writes (call_count).
	Count int `yaml:"count,omitempty"`

	// Expect holds expected values; a subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTargetItem   = "target_item"
	AssertNoTargetItem = "no_target_item"
	AssertSourceTask   = "source_task"
	AssertNoSourceTask = "no_source_task"
	AssertReport       = "report"
	AssertReportEmpty  = "report_empty"
	AssertCallCount    = "call_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, t := range s.Source.Tasks {
		if t.Content == "" {
			return fmt.Errorf("source.tasks[%d]: content is required", i)
		}
	}
	for i, it := range s.Target.Items {
		if it.Content == "" {
			return fmt.Errorf("target.items[%d]: content is required", i)
		}
	}
	for i, p := range s.Target.Projects {
		if p.ID == "" {
			return fmt.Errorf("target.projects[%d]: id is required", i)
		}
	}

	for i, step := range s.Steps {
		if n := step.kinds(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one action is required, got %d", i, n)
		}
		if step.EditSource != nil && step.EditSource.Task == "" {
			return fmt.Errorf("steps[%d].edit_source: task is required", i)
		}
		if step.EditTarget != nil && step.EditTarget.Item == "" {
			return fmt.Errorf("steps[%d].edit_target: item is required", i)
		}
		if step.AddTarget != nil && step.AddTarget.Content == "" {
			return fmt.Errorf("steps[%d].add_target: content is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func (s Step) kinds() int {
	n := 0
	for _, set := range []bool{
		s.Pass != nil,
		s.EditSource != nil,
		s.EditTarget != nil,
		s.AddTarget != nil,
		s.CompleteTarget != "",
		s.DropSource != "",
		s.DeleteTarget != "",
		s.Pause != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTargetItem, AssertNoTargetItem, AssertSourceTask, AssertNoSourceTask:
		if a.Content == "" {
			return fmt.Errorf("assertions[%d]: content is required for %s", index, a.Type)
		}
	case AssertReport:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for report", index)
		}
	case AssertReportEmpty:
	case AssertCallCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Pass < 0 {
		return fmt.Errorf("assertions[%d]: pass must be non-negative", index)
	}
	return nil
}
