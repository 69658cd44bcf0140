package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/soimon/notion-todoist/internal/engine"
	"github.com/soimon/notion-todoist/internal/stamp"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  expected: %s\n  actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the stores and the
// recorded passes, and returns the failure messages.
func (h *Harness) EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTargetItem:
		fields, ok := h.itemFields(a.Content)
		if !ok {
			return missing(a.Type, "target item", a.Content)
		}
		return matchFields(a.Type, fields, a.Expect)
	case AssertNoTargetItem:
		if _, ok := h.target.ItemByContent(a.Content); ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("no target item %q", a.Content), Actual: "found"}
		}
	case AssertSourceTask:
		fields, ok := h.taskFields(a.Content)
		if !ok {
			return missing(a.Type, "source task", a.Content)
		}
		return matchFields(a.Type, fields, a.Expect)
	case AssertNoSourceTask:
		if _, ok := h.task(a.Content); ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("no source task %q", a.Content), Actual: "found"}
		}
	case AssertReport, AssertReportEmpty:
		report, ok := result.report(a.Pass)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("pass %d", a.Pass), Actual: fmt.Sprintf("%d passes ran", len(result.Passes))}
		}
		if a.Type == AssertReportEmpty {
			if !report.Empty() {
				var buf strings.Builder
				_, _ = report.WriteTo(&buf)
				return &AssertionError{Type: a.Type, Expected: "empty report", Actual: buf.String()}
			}
			return nil
		}
		fields, err := flattenReport(report)
		if err != nil {
			return err
		}
		return matchFields(a.Type, fields, a.Expect)
	case AssertCallCount:
		n := 0
		for _, call := range h.source.Calls() {
			if strings.HasPrefix(call, a.Action+":") {
				n++
			}
		}
		if n != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d %s calls", a.Count, a.Action), Actual: fmt.Sprintf("%d", n)}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func missing(kind, what, content string) error {
	return &AssertionError{Type: kind, Expected: fmt.Sprintf("%s %q", what, content), Actual: "not found"}
}

// itemFields exposes the assertable fields of a Target item.
func (h *Harness) itemFields(content string) (map[string]any, bool) {
	it, ok := h.target.ItemByContent(content)
	if !ok {
		return nil, false
	}
	fields := map[string]any{
		"project": it.ProjectID,
		"checked": it.Checked,
		"labels":  it.Labels,
		"date":    "",
		"parent":  "",
		"stamped": len(h.target.Notes(it.ID)) > 0,
	}
	if it.Due != nil {
		fields["date"] = it.Due.Date
	}
	if it.ParentID != "" {
		if parent, ok := h.target.Item(it.ParentID); ok {
			fields["parent"] = parent.Content
		}
	}
	return fields, true
}

// taskFields exposes the assertable fields of a Source task.
func (h *Harness) taskFields(content string) (map[string]any, bool) {
	t, ok := h.task(content)
	if !ok {
		return nil, false
	}
	fields := map[string]any{
		"completed": t.IsCompleted,
		"linked":    t.SyncID != "",
		"labels":    t.Labels,
		"scheduled": "",
		"deadline":  "",
	}
	if t.Scheduled != nil {
		fields["scheduled"] = stamp.FormatDay(*t.Scheduled)
	}
	if t.Deadline != nil {
		fields["deadline"] = stamp.FormatDay(*t.Deadline)
	}
	return fields, true
}

// flattenReport turns a report into dotted counter keys such as
// "target.tasks.add".
func flattenReport(r engine.Report) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	out := make(map[string]any)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, tree map[string]any, out map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

// matchFields checks expected against actual with subset semantics.
// Values are compared in their printed form, so YAML ints match JSON
// floats and YAML sequences match string slices.
func matchFields(kind string, actual, expected map[string]any) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var diffs []string
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: unknown field", k))
			continue
		}
		if !valuesEqual(got, expected[k]) {
			diffs = append(diffs, fmt.Sprintf("%s: want %v, got %v", k, expected[k], got))
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%v", expected),
		Actual:   strings.Join(diffs, "; "),
	}
}

func valuesEqual(actual, expected any) bool {
	if expected == nil {
		return actual == nil || fmt.Sprint(actual) == "" || fmt.Sprint(actual) == "[]"
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}
