package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one pass"
source:
  tasks:
    - content: Buy milk
      scheduled: 2024-03-02
      labels: [home]
steps:
  - pass: {}
assertions:
  - type: target_item
    content: Buy milk
`

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Source.Tasks, 1)
	assert.Equal(t, "2024-03-02", s.Source.Tasks[0].Scheduled)
	assert.Equal(t, []string{"home"}, s.Source.Tasks[0].Labels)
	require.Len(t, s.Steps, 1)
	require.NotNil(t, s.Steps[0].Pass)
	assert.False(t, s.Steps[0].Pass.DryRun)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown field",
			doc:  minimalScenario + "asertions: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			doc:  "description: x\nsteps: [{pass: {}}]\nassertions: [{type: report_empty}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			doc:  "name: x\nsteps: [{pass: {}}]\nassertions: [{type: report_empty}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			doc:  "name: x\ndescription: x\nassertions: [{type: report_empty}]\n",
			want: "steps list is required",
		},
		{
			name: "no assertions",
			doc:  "name: x\ndescription: x\nsteps: [{pass: {}}]\n",
			want: "assertions list is required",
		},
		{
			name: "two actions in one step",
			doc:  "name: x\ndescription: x\nsteps: [{pass: {}, drop_source: a}]\nassertions: [{type: report_empty}]\n",
			want: "exactly one action",
		},
		{
			name: "edit without task",
			doc:  "name: x\ndescription: x\nsteps: [{edit_source: {content: b}}]\nassertions: [{type: report_empty}]\n",
			want: "edit_source: task is required",
		},
		{
			name: "unknown assertion",
			doc:  "name: x\ndescription: x\nsteps: [{pass: {}}]\nassertions: [{type: trace_order}]\n",
			want: "unknown assertion type",
		},
		{
			name: "report without expect",
			doc:  "name: x\ndescription: x\nsteps: [{pass: {}}]\nassertions: [{type: report}]\n",
			want: "expect is required for report",
		},
		{
			name: "item assertion without content",
			doc:  "name: x\ndescription: x\nsteps: [{pass: {}}]\nassertions: [{type: target_item}]\n",
			want: "content is required for target_item",
		},
		{
			name: "call count without action",
			doc:  "name: x\ndescription: x\nsteps: [{pass: {}}]\nassertions: [{type: call_count, count: 1}]\n",
			want: "action is required for call_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
