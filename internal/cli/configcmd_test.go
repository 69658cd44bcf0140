package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit(t *testing.T) {
	f := newCLIFixture(t, "sqlite")
	f.configPath = filepath.Join(f.dir, "fresh.yaml")

	out, err := f.exec(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	data, err := os.ReadFile(f.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "task_strategy: snapshot")

	_, err = f.exec(t, "config", "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = f.exec(t, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfigShow_MasksTokens(t *testing.T) {
	f := newCLIFixture(t, "sqlite")

	out, err := f.exec(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "secret_notion")
	assert.NotContains(t, out, "secret_todoist")
	assert.Contains(t, out, "project_strategy: noop")
}

func TestConfigValidate(t *testing.T) {
	f := newCLIFixture(t, "sqlite")

	out, err := f.exec(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	data, err := os.ReadFile(f.configPath)
	require.NoError(t, err)
	bad := strings.Replace(string(data), "project_strategy: noop\n", "project_strategy: noop\n  interval: 1s\n", 1)
	require.NoError(t, os.WriteFile(f.configPath, []byte(bad), 0o600))

	out, err = f.exec(t, "config", "validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "interval")
}
