package main

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/statum"
	"github.com/anggasct/statum/pkg/config"
)

type harness struct {
	adapter *statum.MemoryAdapter
}

func newHarness() *harness {
	return &harness{adapter: statum.NewMemoryAdapter()}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{
		adapter: h.adapter,
		cfg:     &config.Config{LogLevel: "error", LogFormat: "text", Backend: config.BackendMemory},
	}
	root := newRootCmd(a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if !slices.Contains(args, "--file") {
		args = append(args, "--file", "testdata/ticket.yaml")
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := newHarness().run(t, "validate")
	require.NoError(t, err)
	assert.Equal(t, "machine \"ticket\" is valid: 5 states, 6 transitions\n", out)
}

func TestValidateCommandInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transitions:\n  - from: a\n"), 0o600))

	_, err := newHarness().run(t, "validate", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "machine name is required")
}

func TestMissingDefinition(t *testing.T) {
	root := newRootCmd(&app{})
	root.SetArgs([]string{"validate"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	assert.ErrorContains(t, err, "no definition file given")
}

func TestGraphCommand(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, `digraph "ticket"`)
	assert.Contains(t, out, `"regex:/^(open|triaged)$/" -> "closed"`)

	out, err = h.run(t, "graph", "--expanded")
	require.NoError(t, err)
	assert.Contains(t, out, `"triaged" -> "closed" [label="reject"]`)
	assert.NotContains(t, out, "regex:")

	out, err = h.run(t, "graph", "--entity", "T-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"open" [shape=box style="filled,bold" fillcolor=gold`)

	_, err = h.run(t, "graph", "--format", "png")
	assert.ErrorContains(t, err, "unknown format")
}

func TestTransitionCommands(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "state", "-e", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "open\n", out)

	out, err = h.run(t, "handle", "triage", "-e", "T-1", "--deny", "HasOwner")
	require.NoError(t, err)
	assert.Equal(t, "event triage not performed, state is open\n", out)

	out, err = h.run(t, "handle", "triage", "-e", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "event triage performed, state is triaged\n", out)

	out, err = h.run(t, "apply", "triaged_to_in_progress", "-e", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "transition triaged_to_in_progress performed, state is in_progress\n", out)

	out, err = h.run(t, "run", "-e", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "run performed, state is resolved\n", out)

	out, err = h.run(t, "handle", "close", "-e", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "event close performed, state is closed\n", out)

	out, err = h.run(t, "history", "-e", "T-1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "TRANSITION")
	assert.Contains(t, lines[4], "closed")

	out, err = h.run(t, "run", "-e", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "run not performed, state is closed\n", out)

	_, err = h.run(t, "apply", "open_to_nowhere", "-e", "T-1")
	assert.True(t, statum.IsTransitionNotFound(err))

	_, err = h.run(t, "handle", "close")
	assert.ErrorContains(t, err, "no entity given")
}

func TestRunToCompletionCommand(t *testing.T) {
	out, err := newHarness().run(t, "run", "-e", "T-3", "--complete", "--verbose")
	require.NoError(t, err)
	assert.Equal(t, "4 transitions performed, state is closed\n", out)
}

func TestEntitiesCommand(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "state", "-e", "T-2", "--add")
	require.NoError(t, err)
	_, err = h.run(t, "handle", "reject", "-e", "T-1")
	require.NoError(t, err)

	out, err := h.run(t, "entities")
	require.NoError(t, err)
	assert.Equal(t, "T-1\nT-2\n", out)

	out, err = h.run(t, "entities", "--state", "closed")
	require.NoError(t, err)
	assert.Equal(t, "T-1\n", out)
}
