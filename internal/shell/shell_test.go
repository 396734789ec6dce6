package shell

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelhost/fpga-ctl/internal/engine"
	"github.com/accelhost/fpga-ctl/internal/queue"
)

func newTestShell(t *testing.T, input string) (*Shell, *queue.Ring[engine.Task], *queue.Ring[engine.Command], *bytes.Buffer) {
	t.Helper()
	tasks := queue.New[engine.Task](100)
	commands := queue.New[engine.Command](10)
	var out bytes.Buffer
	s := New(strings.NewReader(input), &out, tasks, commands, nil, nil)
	return s, tasks, commands, &out
}

func TestPromptLineEnqueuesTask(t *testing.T) {
	s, tasks, _, _ := newTestShell(t, "hello\n")
	require.NoError(t, s.Run())

	task, ok := tasks.TryPop()
	require.True(t, ok)
	assert.Equal(t, "hello", task.Prompt)
	assert.Equal(t, uint32(1), task.ID)
}

func TestSlashCommandsTranslateToCommands(t *testing.T) {
	s, _, commands, _ := newTestShell(t, "/stop\n/reset\n/quit\n")
	require.NoError(t, s.Run())

	cmd, ok := commands.TryPop()
	require.True(t, ok)
	assert.Equal(t, engine.CmdStop, cmd.Kind)

	cmd, ok = commands.TryPop()
	require.True(t, ok)
	assert.Equal(t, engine.CmdReset, cmd.Kind)

	cmd, ok = commands.TryPop()
	require.True(t, ok)
	assert.Equal(t, engine.CmdShutdown, cmd.Kind)
}

func TestEOFEnqueuesImplicitShutdown(t *testing.T) {
	s, _, commands, _ := newTestShell(t, "")
	require.NoError(t, s.Run())

	cmd, ok := commands.TryPop()
	require.True(t, ok)
	assert.Equal(t, engine.CmdShutdown, cmd.Kind)
}

func TestTaskQueueFullEmitsWarningAndRejects(t *testing.T) {
	tasks := queue.New[engine.Task](1)
	commands := queue.New[engine.Command](10)
	var out bytes.Buffer
	s := New(strings.NewReader("first\nsecond\n"), &out, tasks, commands, nil, nil)
	require.NoError(t, s.Run())

	assert.Equal(t, 1, tasks.Len())
	assert.True(t, strings.Contains(out.String(), engine.NoticeTaskQueueFull))
}

func TestEmptyLineIsIgnored(t *testing.T) {
	s, tasks, commands, _ := newTestShell(t, "\n\n")
	require.NoError(t, s.Run())

	assert.Equal(t, 0, tasks.Len())
	cmd, ok := commands.TryPop()
	require.True(t, ok)
	assert.Equal(t, engine.CmdShutdown, cmd.Kind)
}
