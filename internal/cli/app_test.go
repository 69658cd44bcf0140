package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soimon/notion-todoist/internal/config"
	"github.com/soimon/notion-todoist/internal/engine"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/testutil"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

const configTemplate = `
notion:
  token: secret_notion
  schema:
    projects_db: projects
    goals_db: goals
    tasks_db: tasks
todoist:
  token: secret_todoist
  inbox: inbox
sync:
  project_strategy: noop
state:
  backend: %s
  path: %s
`

// cliFixture runs commands against a temp config and in-memory stores.
// The Target starts with an "inbox" project.
type cliFixture struct {
	dir        string
	configPath string
	statePath  string
	clock      *testutil.ManualClock
	source     *testutil.FakeSource
	target     *testutil.FakeTarget
	opts       *RootOptions
}

func newCLIFixture(t *testing.T, backend string) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	f := &cliFixture{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		statePath:  filepath.Join(dir, "state.db"),
		clock:      testutil.NewManualClock(epoch),
	}
	f.source = testutil.NewFakeSource(f.clock.Now)
	f.target = testutil.NewFakeTarget(f.clock.Now)
	f.target.SeedProject(snapshot.Project{ID: "inbox", Name: "Inbox"})

	content := fmt.Sprintf(configTemplate, backend, f.statePath)
	require.NoError(t, os.WriteFile(f.configPath, []byte(content), 0o600))

	f.opts = &RootOptions{
		Stores: func(*config.Config, *slog.Logger) (engine.SourceStore, engine.TargetStore) {
			return f.source, f.target
		},
		Clock: f.clock,
	}
	return f
}

// exec runs the CLI with args and returns stdout and the command error.
func (f *cliFixture) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(f.opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", f.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

// execJSON runs the CLI with --format json and decodes the payload into data.
func (f *cliFixture) execJSON(t *testing.T, data any, args ...string) {
	t.Helper()
	out, err := f.exec(t, append([]string{"--format", "json"}, args...)...)
	require.NoError(t, err)

	resp := struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, data))
}
