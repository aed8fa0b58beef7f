package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weekConfig = `scope: term-1
strategy: CSP_BACKTRACK
grid:
  days: 2
  slotsPerDay: 3
rooms:
  - id: hall
    capacity: 60
  - id: lab
    capacity: 30
invigilators:
  - id: inv-1
  - id: inv-2
tasks:
  - id: math-10
    cohorts: [10A]
    duration: 1
    requiredCapacity: 25
    rooms: [hall, lab]
    invigilators: [inv-1, inv-2]
  - id: chem-10
    cohorts: [10A]
    duration: 1
    requiredCapacity: 25
    rooms: [hall, lab]
    invigilators: [inv-1, inv-2]
  - id: math-11
    cohorts: [11B]
    duration: 2
    requiredCapacity: 40
    rooms: [hall]
    invigilators: [inv-1, inv-2]
budget:
  maxSteps: 10000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	generateApply, showPrevious, rollbackRun = false, false, ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadRunConfigRejectsUnknownKeys(t *testing.T) {
	req, err := loadRunConfig(writeConfig(t, weekConfig))
	require.NoError(t, err)
	assert.Equal(t, "term-1", req.Scope)
	require.Len(t, req.Tasks, 3)
	assert.Equal(t, 2, req.Tasks[2].Duration)
	assert.Equal(t, int64(10000), req.Budget.MaxSteps)

	_, err = loadRunConfig(writeConfig(t, weekConfig+"budgett:\n  seed: 1\n"))
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "-f", writeConfig(t, weekConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "3 tasks")

	_, err = execute(t, "validate", "-f", writeConfig(t, "scope: term-1\ngrid:\n  days: 1\n  slotsPerDay: 1\n"))
	assert.Error(t, err, "missing task list")
}

func TestGenerateApplyShowRollback(t *testing.T) {
	db := filepath.Join(t.TempDir(), "engine.db")
	cfg := writeConfig(t, weekConfig)

	out, err := execute(t, "--db", db, "-o", "table", "generate", "-f", cfg, "--apply")
	require.NoError(t, err)
	assert.Contains(t, out, "math-11")
	assert.Contains(t, out, "Committed version")

	out, err = execute(t, "--db", db, "-o", "json", "generate", "-f", cfg, "--apply")
	require.NoError(t, err)
	var second struct {
		Run struct {
			ID string `json:"id"`
		} `json:"run"`
		Apply struct {
			Version int64 `json:"version"`
		} `json:"apply"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Equal(t, int64(2), second.Apply.Version)

	out, err = execute(t, "--db", db, "-o", "json", "show", "--scope", "term-1", "--previous")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": 1`)

	out, err = execute(t, "--db", db, "-o", "table", "rollback", "--run", second.Run.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "restored to version 1")

	out, err = execute(t, "--db", db, "-o", "json", "show", "--scope", "term-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": 1`)

	out, err = execute(t, "--db", db, "-o", "csv", "show", "--scope", "term-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "day,slot,room,task,invigilators\n"))
	assert.Contains(t, out, ",math-11,")

	out, err = execute(t, "--db", db, "-o", "table", "runs", "--status", "rolled_back")
	require.NoError(t, err)
	assert.Contains(t, out, second.Run.ID)
}
