package process

import (
	"bufio"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell commands")
	}
}

func waitDone(t *testing.T, p *Process, within time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(within):
		t.Fatalf("process %d still running after %v", p.PID(), within)
	}
}

func TestSpawnRejectsEmptyCommand(t *testing.T) {
	_, err := Spawn(Config{})
	require.Error(t, err)
}

func TestSpawnMissingBinary(t *testing.T) {
	_, err := Spawn(Config{Command: "agents-ide-no-such-binary-12345"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start language server")
}

func TestWriteAndReadStdout(t *testing.T) {
	requireUnix(t)
	p, err := Spawn(Config{Command: "cat"})
	require.NoError(t, err)
	defer p.Terminate()

	_, err = p.Write([]byte("ping\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(p.Stdout()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)
	assert.Greater(t, p.PID(), 0)
	assert.Equal(t, "cat", p.Command())
}

func TestStderrTailKeepsLastLines(t *testing.T) {
	requireUnix(t)
	p, err := Spawn(Config{
		Command: "sh",
		Args:    []string{"-c", `i=1; while [ $i -le 30 ]; do echo "line $i" >&2; i=$((i+1)); done`},
	})
	require.NoError(t, err)
	waitDone(t, p, 5*time.Second)

	require.Eventually(t, func() bool {
		tail := p.StderrTail()
		return len(tail) > 0 && tail[len(tail)-1] == "line 30"
	}, 2*time.Second, 10*time.Millisecond)

	tail := p.StderrTail()
	assert.Len(t, tail, 20)
	assert.Equal(t, "line 11", tail[0])
	p.Terminate()
}

func TestExitErrReportsStatus(t *testing.T) {
	requireUnix(t)
	p, err := Spawn(Config{Command: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	waitDone(t, p, 5*time.Second)

	require.Error(t, p.ExitErr())
	assert.Contains(t, p.ExitErr().Error(), "exit status 3")
	assert.True(t, p.Exited())

	_, err = p.Write([]byte("late"))
	assert.Error(t, err)
	p.Terminate()
}

func TestTerminateIsIdempotent(t *testing.T) {
	requireUnix(t)
	p, err := Spawn(Config{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	assert.Nil(t, p.ExitErr())

	p.Terminate()
	waitDone(t, p, time.Second)
	p.Terminate()
	assert.True(t, p.Exited())
}

func TestTerminateKillsAfterGracePeriod(t *testing.T) {
	requireUnix(t)
	p, err := Spawn(Config{
		Command:         "sh",
		Args:            []string{"-c", `trap '' TERM; while true; do sleep 0.05; done`},
		ShutdownTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	// Give the shell time to install the trap
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	p.Terminate()
	waitDone(t, p, 2*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestTerminateAfterExternalKill(t *testing.T) {
	requireUnix(t)
	p, err := Spawn(Config{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	require.NoError(t, p.cmd.Process.Kill())
	waitDone(t, p, 2*time.Second)

	p.Terminate()
	assert.Error(t, p.ExitErr())
}

func TestEnvIsPassedThrough(t *testing.T) {
	requireUnix(t)
	p, err := Spawn(Config{
		Command: "sh",
		Args:    []string{"-c", `echo "$AGENTS_IDE_TEST_VALUE"`},
		Env:     []string{"AGENTS_IDE_TEST_VALUE=hello"},
	})
	require.NoError(t, err)
	defer p.Terminate()

	line, err := bufio.NewReader(p.Stdout()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)
}
